package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "github.com/Zajason/ChargeNET-sub000/libs/config"
)

// Config defines the coordination service configuration.
type Config struct {
	HTTP struct {
		Port string `yaml:"port" env:"CHARGENET_HTTP_PORT"`
	} `yaml:"http"`
	Database struct {
		DSN string `yaml:"dsn" env:"CHARGENET_POSTGRES_DSN"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr" env:"CHARGENET_REDIS_ADDR"`
		Password string `yaml:"password" env:"CHARGENET_REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"CHARGENET_REDIS_DB"`
	} `yaml:"redis"`
	Payment struct {
		BaseURL       string        `yaml:"baseUrl" env:"CHARGENET_PAYMENT_BASE_URL"`
		APIKey        string        `yaml:"apiKey" env:"CHARGENET_PAYMENT_API_KEY"`
		HoldAmountEur float64       `yaml:"holdAmountEur" env:"CHARGENET_PAYMENT_HOLD_AMOUNT_EUR"`
		Timeout       time.Duration `yaml:"timeout" env:"CHARGENET_PAYMENT_TIMEOUT"`
	} `yaml:"payment"`
	Auth struct {
		JWTSecret string `yaml:"jwtSecret" env:"CHARGENET_JWT_SECRET"`
	} `yaml:"auth"`
}

// Load reads configuration via the shared helper and applies defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.HTTP.Port = "8080"
	cfg.Redis.Addr = "localhost:6379"
	cfg.Payment.HoldAmountEur = 25
	cfg.Payment.Timeout = 5 * time.Second

	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return nil, errors.New("config: database dsn required")
	}
	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		return nil, errors.New("config: redis addr required")
	}
	if strings.TrimSpace(cfg.Payment.BaseURL) == "" {
		return nil, errors.New("config: payment base url required")
	}
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return nil, errors.New("config: jwt secret required")
	}
	if cfg.Payment.HoldAmountEur <= 0 {
		return nil, errors.New("config: payment hold amount must be positive")
	}
	return cfg, nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// PaymentTimeout returns the gateway request timeout.
func (c *Config) PaymentTimeout() time.Duration {
	if c.Payment.Timeout <= 0 {
		return 5 * time.Second
	}
	return c.Payment.Timeout
}
