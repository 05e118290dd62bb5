package config

import "time"

// Настройки выпуска токенов (cmd/mercados-token)
type Config struct {
	SecretKey string        `validate:"required"`
	TokenTTL  time.Duration `validate:"gt=0"`
}
