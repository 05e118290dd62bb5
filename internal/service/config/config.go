package config

import "time"

type Config struct {
	LookupAddr      string        `validate:"omitempty,url"`
	LookupTimeout   time.Duration `validate:"gt=0"`
	ReportTimezone  string        `validate:"required"`
	LedgerBatchSize int           `validate:"gt=0"`
}
