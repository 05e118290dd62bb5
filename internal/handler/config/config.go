package config

type Config struct {
	ServerAddr string `validate:"required"`
}
