package archive

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vitrine/storefront/internal/pkg/env"
)

// Config holds the dead-letter archive bucket settings.
type Config struct {
	Enabled         bool
	AccessKeyID     string `validate:"required_if=Enabled true"`
	SecretAccessKey string `validate:"required_if=Enabled true"`
	Region          string
	BucketName      string `validate:"required_if=Enabled true"`
	EndpointURL     string `validate:"omitempty,url"` // Optional for S3-compatible services
}

// LoadConfig loads archive configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Enabled:         env.GetEnvBool("ARCHIVE_S3_ENABLED", false),
		AccessKeyID:     env.GetEnv("ARCHIVE_S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("ARCHIVE_S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("ARCHIVE_S3_REGION", "us-east-1"),
		BucketName:      env.GetEnv("ARCHIVE_S3_BUCKET", ""),
		EndpointURL:     env.GetEnv("ARCHIVE_S3_ENDPOINT_URL", ""),
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid archive config: %w", err)
	}
	return cfg, nil
}

// IsEnabled returns true if archiving is enabled
func (c *Config) IsEnabled() bool {
	return c != nil && c.Enabled
}

// DeadLetterKey builds the object key for an unmatched webhook payload.
// Format: dead-letters/YYYY/MM/<provider_event_id>.json
func DeadLetterKey(providerEventID string, receivedAt time.Time) string {
	id := strings.NewReplacer("/", "_", "\\", "_", " ", "_").Replace(strings.TrimSpace(providerEventID))
	if id == "" {
		id = fmt.Sprintf("unknown-%d", receivedAt.UnixNano())
	}
	t := receivedAt.UTC()
	return fmt.Sprintf("dead-letters/%04d/%02d/%s.json", t.Year(), int(t.Month()), id)
}
