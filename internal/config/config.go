package config

import (
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	authConfig "github.com/iurnickita/mercados/internal/auth/config"
	handlerConfig "github.com/iurnickita/mercados/internal/handler/config"
	loggerConfig "github.com/iurnickita/mercados/internal/logger/config"
	serviceConfig "github.com/iurnickita/mercados/internal/service/config"
	storeConfig "github.com/iurnickita/mercados/internal/store/config"
	tokenConfig "github.com/iurnickita/mercados/internal/token/config"
	"github.com/iurnickita/mercados/internal/tz"
)

type Config struct {
	Handler handlerConfig.Config
	Service serviceConfig.Config
	Store   storeConfig.Config
	Logger  loggerConfig.Config
	Auth    authConfig.Config
}

const (
	defaultServerAddr      = ":8080"
	defaultLogLevel        = "info"
	defaultLookupTimeout   = 10 * time.Second
	defaultLedgerBatchSize = 1000
	defaultTokenTTL        = 24 * time.Hour
)

// GetConfig: .env (если есть), затем флаги, затем переменные окружения.
func GetConfig() (Config, error) {
	// .env необязателен
	_ = godotenv.Load()
	return parse(os.Args[0], os.Args[1:], os.LookupEnv)
}

func parse(name string, args []string, lookupEnv func(string) (string, bool)) (Config, error) {
	var cfg Config

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&cfg.Handler.ServerAddr, "a", defaultServerAddr, "server address")
	fs.StringVar(&cfg.Store.DBDsn, "d", "", "database connection string")
	fs.StringVar(&cfg.Logger.LogLevel, "l", defaultLogLevel, "log level")
	fs.StringVar(&cfg.Service.LookupAddr, "r", "", "lookup system address")
	fs.StringVar(&cfg.Service.ReportTimezone, "z", tz.DefaultLocation, "report timezone")
	fs.StringVar(&cfg.Auth.SecretKey, "k", "", "token secret key")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.Service.LookupTimeout = defaultLookupTimeout
	cfg.Service.LedgerBatchSize = defaultLedgerBatchSize

	if envRunAddr, ok := lookupEnv("RUN_ADDRESS"); ok {
		cfg.Handler.ServerAddr = envRunAddr
	}
	if envDBDsn, ok := lookupEnv("DATABASE_URI"); ok {
		cfg.Store.DBDsn = envDBDsn
	}
	if envLogLevel, ok := lookupEnv("LOG_LEVEL"); ok {
		cfg.Logger.LogLevel = envLogLevel
	}
	if envLookupAddr, ok := lookupEnv("LOOKUP_SYSTEM_ADDRESS"); ok {
		cfg.Service.LookupAddr = envLookupAddr
	}
	if envTimezone, ok := lookupEnv("REPORT_TIMEZONE"); ok {
		cfg.Service.ReportTimezone = envTimezone
	}
	if envSecret, ok := lookupEnv("JWT_SECRET"); ok {
		cfg.Auth.SecretKey = envSecret
	}
	if envTimeout, ok := lookupEnv("LOOKUP_TIMEOUT"); ok {
		d, err := time.ParseDuration(envTimeout)
		if err != nil {
			return Config{}, err
		}
		cfg.Service.LookupTimeout = d
	}
	if envBatch, ok := lookupEnv("LEDGER_BATCH_SIZE"); ok {
		n, err := strconv.Atoi(envBatch)
		if err != nil {
			return Config{}, err
		}
		cfg.Service.LedgerBatchSize = n
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GetTokenConfig - настройки утилиты выпуска токенов: секрет общий с сервером.
func GetTokenConfig() (tokenConfig.Config, []string, error) {
	_ = godotenv.Load()
	return parseToken(os.Args[0], os.Args[1:], os.LookupEnv)
}

// parseToken возвращает также оставшиеся аргументы (параметры пользователя).
func parseToken(name string, args []string, lookupEnv func(string) (string, bool)) (tokenConfig.Config, []string, error) {
	var cfg tokenConfig.Config

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&cfg.SecretKey, "k", "", "token secret key")
	fs.DurationVar(&cfg.TokenTTL, "ttl", defaultTokenTTL, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return tokenConfig.Config{}, nil, err
	}

	if envSecret, ok := lookupEnv("JWT_SECRET"); ok {
		cfg.SecretKey = envSecret
	}
	if envTTL, ok := lookupEnv("TOKEN_TTL"); ok {
		d, err := time.ParseDuration(envTTL)
		if err != nil {
			return tokenConfig.Config{}, nil, err
		}
		cfg.TokenTTL = d
	}

	if err := validator.New().Struct(cfg); err != nil {
		return tokenConfig.Config{}, nil, err
	}
	return cfg, fs.Args(), nil
}
