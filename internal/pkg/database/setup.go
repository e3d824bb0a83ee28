package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/vitrine/storefront/app/models"
	"github.com/vitrine/storefront/internal/pkg/env"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

// Supported DB_DRIVER values.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

// ErrDisabled is returned when DB_DRIVER=none.
var ErrDisabled = errors.New("database is disabled (DB_DRIVER=none)")

var DB *gorm.DB

// Config holds the SQL connection settings.
type Config struct {
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// LoadConfig reads the database settings from the environment.
func LoadConfig() Config {
	driver := strings.ToLower(strings.TrimSpace(env.GetEnv("DB_DRIVER", DriverMySQL)))
	defPort := "3306"
	if driver == DriverPostgres {
		defPort = "5432"
	}
	return Config{
		Driver:   driver,
		Host:     env.GetEnv("DB_HOST", "127.0.0.1"),
		Port:     env.GetEnv("DB_PORT", defPort),
		User:     env.GetEnv("DB_USER", ""),
		Password: env.GetEnv("DB_PASSWORD", ""),
		Name:     env.GetEnv("DB_NAME", ""),
		SSLMode:  env.GetEnv("DB_SSLMODE", "disable"),
	}
}

// DSN builds the driver specific data source name.
func (c Config) DSN() string {
	if c.Driver == DriverPostgres {
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			c.Host, c.User, c.Password, c.Name, c.Port, c.SSLMode)
	}
	// "user:pass@tcp(127.0.0.1:3306)/dbname?charset=utf8mb4&parseTime=True&loc=Local"
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.Name)
}

// Dialector returns the GORM dialector for the configured driver.
func (c Config) Dialector() (gorm.Dialector, error) {
	switch c.Driver {
	case DriverMySQL, "":
		return mysql.New(mysql.Config{
			DSN:                       c.DSN(),
			DefaultStringSize:         256,
			DisableDatetimePrecision:  true,
			DontSupportRenameIndex:    true,
			DontSupportRenameColumn:   true,
			SkipInitializeWithVersion: false,
		}), nil
	case DriverPostgres:
		return postgres.Open(c.DSN()), nil
	case DriverNone:
		return nil, ErrDisabled
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", c.Driver)
	}
}

// Open connects with retries.
func Open(cfg Config) (*gorm.DB, error) {
	dialector, err := cfg.Dialector()
	if err != nil {
		return nil, err
	}

	var db *gorm.DB
	for i := 0; i < maxRetries; i++ {
		db, err = gorm.Open(dialector, &gorm.Config{})
		if err == nil {
			return db, nil
		}

		log.Warnf("[Database] Failed to connect to %s (try %d/%d): %v", cfg.Driver, i+1, maxRetries, err)
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}
	return nil, err
}

// AutoMigrate creates or updates the tables owned by this service.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Order{},
		&models.OrderStatusChange{},
		&models.PaymentWebhookEvent{},
	)
}

// SetupDatabase connects the shared handle. DB stays nil when the driver is
// disabled, which is the case for the Supabase REST order store.
func SetupDatabase() {
	cfg := LoadConfig()
	if cfg.Driver == DriverNone {
		log.Info("[Database] DB_DRIVER=none, SQL storage disabled")
		return
	}

	db, err := Open(cfg)
	if err != nil {
		panic(err)
	}
	if err := AutoMigrate(db); err != nil {
		log.Errorf("[Database] AutoMigrate failed: %v", err)
	}
	DB = db
}

// GetDB returns the shared handle, or nil when SQL storage is disabled.
func GetDB() *gorm.DB {
	return DB
}
