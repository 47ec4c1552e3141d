// Package config содержит логику чтения конфигурации сервиса лояльности.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Режимы проверки схемы БД при старте.
const (
	SchemaCheckStrict = "strict"
	SchemaCheckWarn   = "warn"
)

// Config содержит параметры конфигурации сервиса лояльности.
type Config struct {
	RunAddress               string `env:"RUN_ADDRESS"`
	DatabaseURI              string `env:"DATABASE_URI"`
	CustomerDirectoryAddress string `env:"CUSTOMER_DIRECTORY_ADDRESS"`
	AdminSecret              string `env:"ADMIN_SECRET"`
	CheckoutAPIKey           string `env:"CHECKOUT_API_KEY"`
	RequireReferredCustomer  bool   `env:"REFERRAL_REQUIRE_REFERRED_CUSTOMER" envDefault:"false"`
	SchemaCheck              string `env:"SCHEMA_CHECK" envDefault:"strict"`
	RunMigrations            bool   `env:"RUN_MIGRATIONS" envDefault:"true"`
}

// Parse считывает конфигурацию из .env, флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envDirectoryAddress := cfg.CustomerDirectoryAddress
	envAdminSecret := cfg.AdminSecret
	envCheckoutAPIKey := cfg.CheckoutAPIKey

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.CustomerDirectoryAddress, "c", "", "customer directory address")
	flag.StringVar(&cfg.AdminSecret, "s", "", "admin secret")
	flag.StringVar(&cfg.CheckoutAPIKey, "k", "", "checkout service API key")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envDirectoryAddress != "" {
		cfg.CustomerDirectoryAddress = envDirectoryAddress
	}
	if envAdminSecret != "" {
		cfg.AdminSecret = envAdminSecret
	}
	if envCheckoutAPIKey != "" {
		cfg.CheckoutAPIKey = envCheckoutAPIKey
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	switch cfg.SchemaCheck {
	case SchemaCheckStrict, SchemaCheckWarn:
	default:
		return nil, fmt.Errorf("invalid SCHEMA_CHECK %q: want %s or %s", cfg.SchemaCheck, SchemaCheckStrict, SchemaCheckWarn)
	}

	return cfg, nil
}
