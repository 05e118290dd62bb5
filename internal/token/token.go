package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims - утверждения токена пользователя
type Claims struct {
	jwt.RegisteredClaims
	UserCode string `json:"user_code"`
	Role     string `json:"role"`
	Location string `json:"location"`
}

// Build подписывает токен пользователя
func Build(secret string, ttl time.Duration, claims Claims) (string, error) {
	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// Parse проверяет подпись и срок действия токена
func Parse(secret string, tokenString string) (Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(secret), nil
		})
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserCode == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}
