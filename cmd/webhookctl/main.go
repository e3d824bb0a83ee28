package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/vitrine/storefront/app/repository"
	"github.com/vitrine/storefront/internal/pkg/billing"
	"github.com/vitrine/storefront/internal/pkg/cache"
	"github.com/vitrine/storefront/internal/pkg/database"
	"github.com/vitrine/storefront/internal/pkg/env"
	"github.com/vitrine/storefront/internal/pkg/metrics/counter"
)

var Version = "dev"

func main() {
	root := newRootCmd(&cli{
		out:        os.Stdout,
		newService: serviceFromEnv,
		newCounter: counterFromEnv,
		now:        time.Now,
	})
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// serviceFromEnv connects the same stores the server uses. The ledger
// commands need DB_DRIVER mysql or postgres.
func serviceFromEnv() (*billing.Service, error) {
	env.SetupEnvFile()

	cfg := database.LoadConfig()
	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	policy := env.GetEnv("ORDER_REGRESSION_POLICY", billing.RegressionPolicyApply)
	return repository.NewFactory(db, repository.StoreFromEnv()).NewService(billing.WithRegressionPolicy(policy))
}

// counterFromEnv connects to the Redis instance the server counts outcomes in.
func counterFromEnv() (outcomeCounter, error) {
	env.SetupEnvFile()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := cache.Ping(ctx); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return counter.Default(), nil
}
