// Выпуск токена пользователя для обращения к API.
//
//	mercados-token [-k secret] [-ttl 24h] <user_code> <ADMIN|USER> [location]
package main

import (
	"errors"
	"fmt"
	"log"

	"github.com/iurnickita/mercados/internal/config"
	"github.com/iurnickita/mercados/internal/token"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, args, err := config.GetTokenConfig()
	if err != nil {
		return err
	}

	claims, err := claimsFromArgs(args)
	if err != nil {
		return err
	}

	tokenString, err := token.Build(cfg.SecretKey, cfg.TokenTTL, claims)
	if err != nil {
		return err
	}
	fmt.Println(tokenString)
	return nil
}

func claimsFromArgs(args []string) (token.Claims, error) {
	if len(args) < 2 || len(args) > 3 {
		return token.Claims{}, errors.New("usage: mercados-token [-k secret] [-ttl 24h] <user_code> <ADMIN|USER> [location]")
	}
	claims := token.Claims{UserCode: args[0], Role: args[1]}
	if len(args) == 3 {
		claims.Location = args[2]
	}
	if claims.UserCode == "" {
		return token.Claims{}, errors.New("user code is required")
	}
	if claims.Role != token.RoleAdmin && claims.Role != token.RoleUser {
		return token.Claims{}, fmt.Errorf("unknown role %q", claims.Role)
	}
	return claims, nil
}
