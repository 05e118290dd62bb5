package config

type Config struct {
	SecretKey string `validate:"required"`
}
