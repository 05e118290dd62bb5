package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/iurnickita/mercados/internal/dashboard"
	"github.com/iurnickita/mercados/internal/export"
	"github.com/iurnickita/mercados/internal/ledger"
	"github.com/iurnickita/mercados/internal/model"
	"github.com/iurnickita/mercados/internal/period"
	"github.com/iurnickita/mercados/internal/reconcile"
	"github.com/iurnickita/mercados/internal/service/config"
	"github.com/iurnickita/mercados/internal/service/lookupclient"
	"github.com/iurnickita/mercados/internal/store"
	"github.com/iurnickita/mercados/internal/tz"
)

type Service interface {
	ReconciliationReport(ctx context.Context, year, monthFrom, monthTo string) (reconcile.Report, error)
	ReconciliationXLSX(ctx context.Context, year, monthFrom, monthTo string) ([]byte, period.Period, error)
	DashboardStats(ctx context.Context) (dashboard.Stats, error)
	Lookup(ctx context.Context, req LookupRequest) (LookupResult, error)
}

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// Запрос консультации EC / ICS.
// UserCode и UserLocation приходят из токена, а не от клиента.
type LookupRequest struct {
	Type         string `validate:"required,oneof=EC ICS"`
	CadastralKey string `validate:"omitempty,max=40"`
	NationalID   string `validate:"omitempty,number,len=13"`
	ICSNumber    string `validate:"omitempty,number,max=20"`
	Amnesty      bool
	UserCode     string `validate:"required"`
	UserLocation string `validate:"max=100"`
}

type LookupResult struct {
	ConsultationID int64
	SearchKey      *string
	Total          *string
	Body           []byte
}

// Журнал консультаций пишется через store
type ConsultationWriter interface {
	ConsultationLogPost(ctx context.Context, log model.ConsultationLog) (int64, error)
}

type service struct {
	cfg        config.Config
	loc        *time.Location
	engine     reconcile.Engine
	aggregator dashboard.Aggregator
	lookup     lookupclient.LookupClient
	journal    ConsultationWriter
	validate   *validator.Validate
	now        func() time.Time
	zaplog     *zap.Logger
}

func NewService(cfg config.Config, store store.Store, zaplog *zap.Logger) (Service, error) {
	loc, err := tz.Load(cfg.ReportTimezone)
	if err != nil {
		return nil, err
	}

	payments := ledger.NewLedger(store, cfg.LedgerBatchSize)
	service := service{
		cfg:        cfg,
		loc:        loc,
		engine:     reconcile.NewEngine(store, payments, loc),
		aggregator: dashboard.NewAggregator(store, loc, zaplog),
		lookup:     lookupclient.NewLookupClient(cfg.LookupAddr, cfg.LookupTimeout),
		journal:    store,
		validate:   validator.New(),
		now:        time.Now,
		zaplog:     zaplog,
	}

	return &service, nil
}

func (service *service) ReconciliationReport(ctx context.Context, year, monthFrom, monthTo string) (reconcile.Report, error) {
	p, err := period.Parse(year, monthFrom, monthTo)
	if err != nil {
		return reconcile.Report{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	report, err := service.engine.Report(ctx, p)
	if err != nil {
		return reconcile.Report{}, upstream(err)
	}

	service.zaplog.Info("reconciliation report",
		zap.String("period", p.String()),
		zap.Int("consultations", report.TotalConsultations),
		zap.Int("matches", report.TotalMatches),
		zap.Int("amplified_keys", len(report.Duplicates.Amplified)),
	)
	return report, nil
}

// ReconciliationXLSX возвращает также разобранный период: по нему называется файл.
func (service *service) ReconciliationXLSX(ctx context.Context, year, monthFrom, monthTo string) ([]byte, period.Period, error) {
	report, err := service.ReconciliationReport(ctx, year, monthFrom, monthTo)
	if err != nil {
		return nil, period.Period{}, err
	}
	data, err := export.ReconciliationXLSX(report, service.loc)
	if err != nil {
		return nil, period.Period{}, err
	}
	return data, report.Period, nil
}

func (service *service) DashboardStats(ctx context.Context) (dashboard.Stats, error) {
	stats, err := service.aggregator.Stats(ctx)
	if err != nil {
		return dashboard.Stats{}, upstream(err)
	}
	return stats, nil
}

func (service *service) Lookup(ctx context.Context, req LookupRequest) (LookupResult, error) {
	// ключи проверяются и уходят во внешнюю систему без пробелов
	req.CadastralKey = strings.TrimSpace(req.CadastralKey)
	req.NationalID = strings.TrimSpace(req.NationalID)
	req.ICSNumber = strings.TrimSpace(req.ICSNumber)
	if err := service.validateLookup(req); err != nil {
		return LookupResult{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	answer, lookupErr := service.lookup.Lookup(ctx, lookupclient.Query{
		Type:         req.Type,
		CadastralKey: req.CadastralKey,
		NationalID:   req.NationalID,
		ICSNumber:    req.ICSNumber,
		Amnesty:      req.Amnesty,
	})

	// Одна запись журнала на каждый запрос, даже если внешняя система не ответила
	subtype := model.ConsultationSubtypeNormal
	if req.Amnesty {
		subtype = model.ConsultationSubtypeAmnesty
	}
	log := model.ConsultationLog{Data: model.ConsultationLogData{
		Type:         req.Type,
		Subtype:      subtype,
		SearchKey:    model.SearchKey(req.CadastralKey, req.NationalID, req.ICSNumber),
		CreatedAt:    tz.UTC(service.now()),
		ResultTotal:  answer.Total,
		UserCode:     req.UserCode,
		UserLocation: req.UserLocation,
	}}
	id, err := service.journal.ConsultationLogPost(context.WithoutCancel(ctx), log)
	if err != nil {
		service.zaplog.Error("consultation log not written",
			zap.String("type", log.Data.Type),
			zap.String("user", log.Data.UserCode),
			zap.Error(err),
		)
	}

	if lookupErr != nil {
		return LookupResult{}, upstream(lookupErr)
	}

	return LookupResult{
		ConsultationID: id,
		SearchKey:      log.Data.SearchKey,
		Total:          answer.Total,
		Body:           answer.Body,
	}, nil
}

// validateLookup: теги структуры плюс правила, зависящие от типа консультации
func (service *service) validateLookup(req LookupRequest) error {
	if err := service.validate.Struct(req); err != nil {
		return err
	}
	switch req.Type {
	case model.ConsultationTypeEC:
		if req.CadastralKey == "" && req.NationalID == "" {
			return errors.New("EC lookup needs a cadastral key or a national id")
		}
	case model.ConsultationTypeICS:
		if req.ICSNumber == "" {
			return errors.New("ICS lookup needs an ICS number")
		}
	}
	return nil
}

func upstream(err error) error {
	if errors.Is(err, store.ErrUnavailable) || errors.Is(err, lookupclient.ErrUnavailable) {
		return fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	return err
}
