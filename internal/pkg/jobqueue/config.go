package jobqueue

import (
	"github.com/go-playground/validator/v10"

	"github.com/vitrine/storefront/internal/pkg/env"
)

// Config holds the worker and notification settings.
type Config struct {
	Workers    int    `validate:"min=1,max=64"`
	StoreName  string `validate:"required"`
	AdminEmail string `validate:"omitempty,email"`
}

// LoadConfig reads the job queue settings from the environment.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Workers:    env.GetEnvInt("JOBQUEUE_WORKERS", 3),
		StoreName:  env.GetEnv("STORE_NAME", "Vitrine"),
		AdminEmail: env.GetEnv("ADMIN_ALERT_EMAIL", ""),
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
