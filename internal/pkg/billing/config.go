package billing

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/vitrine/storefront/internal/pkg/env"
)

var (
	// ErrMissingAccessToken is reported when no webhook token is configured.
	// The receiver refuses every request in that state.
	ErrMissingAccessToken = errors.New("ASAAS_WEBHOOK_TOKEN is not configured")
	ErrInvalidAccessToken = errors.New("invalid asaas access token")
)

// WebhookConfig is read once at startup and injected into the receiver.
type WebhookConfig struct {
	AccessToken      string
	RegressionPolicy string `validate:"omitempty,oneof=apply skip"`
}

// LoadWebhookConfig loads webhook settings from the environment. An empty
// token is not a load error; it is surfaced per request.
func LoadWebhookConfig() (*WebhookConfig, error) {
	cfg := &WebhookConfig{
		AccessToken:      env.GetEnv("ASAAS_WEBHOOK_TOKEN", ""),
		RegressionPolicy: strings.ToLower(strings.TrimSpace(env.GetEnv("ORDER_REGRESSION_POLICY", RegressionPolicyApply))),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the config fields.
func (c *WebhookConfig) Validate() error {
	return validator.New().Struct(c)
}

// CheckToken applies the authentication policy to a header value.
func (c *WebhookConfig) CheckToken(headerToken string) error {
	if c == nil || c.AccessToken == "" {
		return ErrMissingAccessToken
	}
	if !VerifyAsaasAccessToken(headerToken, c.AccessToken) {
		return ErrInvalidAccessToken
	}
	return nil
}
