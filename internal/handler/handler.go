package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/iurnickita/mercados/internal/auth"
	"github.com/iurnickita/mercados/internal/gzip"
	"github.com/iurnickita/mercados/internal/handler/config"
	"github.com/iurnickita/mercados/internal/logger"
	"github.com/iurnickita/mercados/internal/service"
	"github.com/iurnickita/mercados/internal/token"
)

func Serve(cfg config.Config, auth auth.Auth, service service.Service, zaplog *zap.Logger) error {
	h := newHandler(auth, service, zaplog)
	router := h.newRouter()

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: router,
	}

	zaplog.Info("server started", zap.String("addr", cfg.ServerAddr))
	return srv.ListenAndServe()
}

type handler struct {
	auth    auth.Auth
	service service.Service
	zaplog  *zap.Logger
}

func newHandler(auth auth.Auth, service service.Service, zaplog *zap.Logger) *handler {
	return &handler{
		auth:    auth,
		service: service,
		zaplog:  zaplog,
	}
}

func (h *handler) newRouter() *http.ServeMux {
	admin := func(f http.HandlerFunc) http.HandlerFunc {
		return gzip.GzipMiddleware(logger.RequestLogMdlw(h.auth.Middleware(h.auth.RequireRole(token.RoleAdmin, f)), h.zaplog))
	}
	user := func(f http.HandlerFunc) http.HandlerFunc {
		return gzip.GzipMiddleware(logger.RequestLogMdlw(h.auth.Middleware(f), h.zaplog))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.Health)
	mux.HandleFunc("GET /api/reports/reconciliation", admin(h.GetReconciliation))
	mux.HandleFunc("GET /api/reports/reconciliation/xlsx", admin(h.GetReconciliationXLSX))
	mux.HandleFunc("GET /api/dashboard/stats", admin(h.GetDashboardStats))
	mux.HandleFunc("POST /api/lookups", user(h.PostLookup))

	return mux
}

func (h *handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *handler) GetReconciliation(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	report, err := h.service.ReconciliationReport(r.Context(), q.Get("year"), q.Get("month_from"), q.Get("month_to"))
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, report)
}

func (h *handler) GetReconciliationXLSX(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data, p, err := h.service.ReconciliationXLSX(r.Context(), q.Get("year"), q.Get("month_from"), q.Get("month_to"))
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"conciliacion-%s.xlsx\"", strings.ReplaceAll(p.String(), "..", "_")))
	w.Write(data)
}

func (h *handler) GetDashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.DashboardStats(r.Context())
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, stats)
}

type PostLookupJSONRequest struct {
	Type         string `json:"type"`
	CadastralKey string `json:"clave_catastral"`
	NationalID   string `json:"dni"`
	ICSNumber    string `json:"ics"`
	Amnesty      bool   `json:"amnistia"`
}

type PostLookupJSONResponse struct {
	ConsultationID int64           `json:"consultation_id"`
	SearchKey      *string         `json:"search_key"`
	Total          *string         `json:"total"`
	Result         json.RawMessage `json:"result,omitempty"`
}

func (h *handler) PostLookup(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	_, err := buf.ReadFrom(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var lookupJSON PostLookupJSONRequest
	err = json.Unmarshal(buf.Bytes(), &lookupJSON)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.service.Lookup(r.Context(), service.LookupRequest{
		Type:         lookupJSON.Type,
		CadastralKey: lookupJSON.CadastralKey,
		NationalID:   lookupJSON.NationalID,
		ICSNumber:    lookupJSON.ICSNumber,
		Amnesty:      lookupJSON.Amnesty,
		UserCode:     r.Header.Get(auth.HeaderUserCodeKey),
		UserLocation: r.Header.Get(auth.HeaderUserLocationKey),
	})
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	response := PostLookupJSONResponse{
		ConsultationID: res.ConsultationID,
		SearchKey:      res.SearchKey,
		Total:          res.Total,
	}
	if json.Valid(res.Body) {
		response.Result = res.Body
	}
	h.writeJSON(w, response)
}

func (h *handler) writeJSON(w http.ResponseWriter, v any) {
	responseJSON, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(responseJSON)
}

func (h *handler) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrUpstreamUnavailable):
		h.zaplog.Warn("upstream unavailable",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	default:
		h.zaplog.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
