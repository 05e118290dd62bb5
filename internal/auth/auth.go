package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/iurnickita/mercados/internal/auth/config"
	"github.com/iurnickita/mercados/internal/token"
)

type Auth interface {
	Middleware(h http.HandlerFunc) http.HandlerFunc
	RequireRole(role string, h http.HandlerFunc) http.HandlerFunc
}

const (
	HeaderUserCodeKey     = "X-User-Code"
	HeaderUserRoleKey     = "X-User-Role"
	HeaderUserLocationKey = "X-User-Location"
	cookieUserToken       = "mercadosUserToken"
)

var ErrNoToken = errors.New("no token")

type auth struct {
	cfg config.Config
}

func NewAuth(cfg config.Config) Auth {
	return &auth{cfg: cfg}
}

func (a *auth) Middleware(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// заголовки пользователя от клиента не принимаем
		r.Header.Del(HeaderUserCodeKey)
		r.Header.Del(HeaderUserRoleKey)
		r.Header.Del(HeaderUserLocationKey)

		// получение пользователя
		claims, err := a.getClaims(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		// записываем
		r.Header.Set(HeaderUserCodeKey, claims.UserCode)
		r.Header.Set(HeaderUserRoleKey, claims.Role)
		r.Header.Set(HeaderUserLocationKey, claims.Location)

		// передаём управление хендлеру
		h.ServeHTTP(w, r)
	}
}

// RequireRole пропускает только пользователей с ролью role.
// Используется внутри Middleware.
func (a *auth) RequireRole(role string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(HeaderUserRoleKey) != role {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		h.ServeHTTP(w, r)
	}
}

func (a *auth) getClaims(r *http.Request) (token.Claims, error) {
	// куки пользователя, затем заголовок Authorization
	var candidates []string
	if tokenCookie, err := r.Cookie(cookieUserToken); err == nil && tokenCookie.Value != "" {
		candidates = append(candidates, tokenCookie.Value)
	}
	if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		if bearer = strings.TrimSpace(bearer); bearer != "" {
			candidates = append(candidates, bearer)
		}
	}
	if len(candidates) == 0 {
		return token.Claims{}, ErrNoToken
	}

	// просроченная кука не должна перекрывать действующий Bearer
	var err error
	for _, tokenString := range candidates {
		var claims token.Claims
		claims, err = token.Parse(a.cfg.SecretKey, tokenString)
		if err == nil {
			return claims, nil
		}
	}
	return token.Claims{}, err
}
