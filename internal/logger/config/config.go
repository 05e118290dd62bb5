package config

type Config struct {
	LogLevel string `validate:"required,oneof=debug info warn error dpanic panic fatal"`
}
