package repository

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"gorm.io/gorm"

	"github.com/vitrine/storefront/internal/pkg/billing"
	"github.com/vitrine/storefront/internal/pkg/env"
	"github.com/vitrine/storefront/internal/pkg/supabase"
)

// Order store backends selected with ORDER_STORE.
const (
	StoreSQL      = "sql"
	StoreSupabase = "supabase"
)

// ErrNoDatabase is returned when the SQL order store is selected without a
// database connection.
var ErrNoDatabase = errors.New("ORDER_STORE=sql requires a database connection")

// Repositories holds the stores used by the webhook service.
type Repositories struct {
	Orders billing.OrderRepository
	// Ledger is nil when no SQL database is connected.
	Ledger billing.Ledger
}

// Factory builds the repositories once and hands out the same instances.
type Factory struct {
	db    *gorm.DB
	store string
	repos *Repositories
	err   error
	once  sync.Once
}

// StoreFromEnv returns the configured ORDER_STORE, lowercased.
func StoreFromEnv() string {
	return strings.ToLower(strings.TrimSpace(env.GetEnv("ORDER_STORE", StoreSQL)))
}

// NewFactory creates a repository factory. db may be nil when the order
// store is Supabase and the ledger is not wanted.
func NewFactory(db *gorm.DB, store string) *Factory {
	if store == "" {
		store = StoreSQL
	}
	return &Factory{
		db:    db,
		store: store,
	}
}

// GetRepositories returns a singleton instance of all repositories
func (f *Factory) GetRepositories() (*Repositories, error) {
	f.once.Do(func() {
		f.repos, f.err = f.build()
	})
	return f.repos, f.err
}

func (f *Factory) build() (*Repositories, error) {
	repos := &Repositories{}
	if f.db != nil {
		repos.Ledger = billing.NewLedger(f.db)
	}

	switch f.store {
	case StoreSQL:
		if f.db == nil {
			return nil, ErrNoDatabase
		}
		repos.Orders = billing.NewOrderRepository(f.db)
	case StoreSupabase:
		cfg, err := supabase.LoadConfig()
		if err != nil {
			return nil, err
		}
		repos.Orders = supabase.NewOrderStore(*cfg)
	default:
		return nil, fmt.Errorf("unsupported ORDER_STORE %q", f.store)
	}
	return repos, nil
}

// GetOrderRepository returns the order store instance
func (f *Factory) GetOrderRepository() (billing.OrderRepository, error) {
	repos, err := f.GetRepositories()
	if err != nil {
		return nil, err
	}
	return repos.Orders, nil
}

// NewService builds a reconciliation service over the factory's stores. The
// ledger is attached when available.
func (f *Factory) NewService(opts ...billing.Option) (*billing.Service, error) {
	repos, err := f.GetRepositories()
	if err != nil {
		return nil, err
	}
	if repos.Ledger != nil {
		opts = append([]billing.Option{billing.WithLedger(repos.Ledger)}, opts...)
	}
	return billing.NewService(repos.Orders, opts...), nil
}

// Global factory instance
var globalFactory *Factory
var factoryOnce sync.Once

// InitializeFactory initializes the global repository factory
func InitializeFactory(db *gorm.DB, store string) {
	factoryOnce.Do(func() {
		globalFactory = NewFactory(db, store)
	})
}

// GetGlobalFactory returns the global repository factory instance
func GetGlobalFactory() *Factory {
	if globalFactory == nil {
		panic("Repository factory not initialized. Call InitializeFactory first.")
	}
	return globalFactory
}
