package main

import (
	"log"

	"go.uber.org/zap"

	"github.com/iurnickita/mercados/internal/auth"
	"github.com/iurnickita/mercados/internal/config"
	"github.com/iurnickita/mercados/internal/handler"
	"github.com/iurnickita/mercados/internal/logger"
	"github.com/iurnickita/mercados/internal/service"
	"github.com/iurnickita/mercados/internal/store"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}

	zaplog, err := logger.NewZapLog(cfg.Logger)
	if err != nil {
		return err
	}
	defer zaplog.Sync()

	store, err := store.NewStore(cfg.Store)
	if err != nil {
		zaplog.Error("store init failed", zap.Error(err))
		return err
	}
	defer store.Close()

	auth := auth.NewAuth(cfg.Auth)
	service, err := service.NewService(cfg.Service, store, zaplog)
	if err != nil {
		return err
	}

	return handler.Serve(cfg.Handler, auth, service, zaplog)
}
