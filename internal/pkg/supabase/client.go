package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vitrine/storefront/app/models"
	"github.com/vitrine/storefront/internal/pkg/billing"
	"github.com/vitrine/storefront/internal/pkg/env"
)

const defaultOrdersTable = "orders"

// Config holds the PostgREST connection settings.
type Config struct {
	URL            string `validate:"required,url"`
	ServiceRoleKey string `validate:"required"`
	OrdersTable    string `validate:"required"`
}

// LoadConfig reads the Supabase settings from the environment.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		URL:            strings.TrimRight(strings.TrimSpace(env.GetEnv("SUPABASE_URL", "")), "/"),
		ServiceRoleKey: strings.TrimSpace(env.GetEnv("SUPABASE_SERVICE_ROLE_KEY", "")),
		OrdersTable:    strings.TrimSpace(env.GetEnv("SUPABASE_ORDERS_TABLE", defaultOrdersTable)),
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid supabase config: %w", err)
	}
	return cfg, nil
}

// OrderStore reads and updates orders through the PostgREST API with the
// privileged service key, bypassing row level security.
type OrderStore struct {
	cfg        Config
	HTTPClient *http.Client
}

var _ billing.OrderRepository = (*OrderStore)(nil)

// NewOrderStore creates a REST order store.
func NewOrderStore(cfg Config) *OrderStore {
	if cfg.OrdersTable == "" {
		cfg.OrdersTable = defaultOrdersTable
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	return &OrderStore{
		cfg: cfg,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (s *OrderStore) tableURL(filter url.Values) string {
	u := s.cfg.URL + "/rest/v1/" + url.PathEscape(s.cfg.OrdersTable)
	if len(filter) > 0 {
		u += "?" + filter.Encode()
	}
	return u
}

func (s *OrderStore) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", s.cfg.ServiceRoleKey)
	req.Header.Set("Authorization", "Bearer "+s.cfg.ServiceRoleKey)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (s *OrderStore) do(req *http.Request) ([]models.Order, error) {
	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("supabase %s %s failed: status=%d body=%s", req.Method, s.cfg.OrdersTable, resp.StatusCode, string(body))
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	var orders []models.Order
	if err := json.Unmarshal(body, &orders); err != nil {
		return nil, fmt.Errorf("decode supabase response: %w", err)
	}
	return orders, nil
}

func (s *OrderStore) find(ctx context.Context, column, value string, limit int) ([]models.Order, error) {
	filter := url.Values{}
	filter.Set(column, "eq."+value)
	filter.Set("select", "*")
	filter.Set("limit", strconv.Itoa(limit))

	req, err := s.newRequest(ctx, http.MethodGet, s.tableURL(filter), nil)
	if err != nil {
		return nil, err
	}
	return s.do(req)
}

// FindOrderByID loads an order by primary key.
func (s *OrderStore) FindOrderByID(ctx context.Context, orderID string) (*models.Order, error) {
	orders, err := s.find(ctx, "id", orderID, 1)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, billing.ErrOrderNotFound
	}
	return &orders[0], nil
}

// FindOrderByPaymentID loads the order owning a gateway payment id. The REST
// schema is not guaranteed to carry the unique index, so a second match is
// reported as billing.ErrAmbiguousPayment.
func (s *OrderStore) FindOrderByPaymentID(ctx context.Context, paymentID string) (*models.Order, error) {
	orders, err := s.find(ctx, "asaas_payment_id", paymentID, 2)
	if err != nil {
		return nil, err
	}
	return billing.SingleOrder(orders, paymentID)
}

type statusPatch struct {
	Status             models.OrderStatus `json:"status"`
	PaymentConfirmedAt *time.Time         `json:"payment_confirmed_at"`
}

// UpdateOrderStatus writes status and payment_confirmed_at. The audit row of
// the update is not persisted by this store.
func (s *OrderStore) UpdateOrderStatus(ctx context.Context, orderID string, update billing.StatusUpdate) error {
	body, err := json.Marshal(statusPatch{
		Status:             update.Status,
		PaymentConfirmedAt: update.PaymentConfirmedAt,
	})
	if err != nil {
		return err
	}

	filter := url.Values{}
	filter.Set("id", "eq."+orderID)
	req, err := s.newRequest(ctx, http.MethodPatch, s.tableURL(filter), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	orders, err := s.do(req)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		return billing.ErrOrderNotFound
	}
	return nil
}
