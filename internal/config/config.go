package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all service settings.
type Config struct {
	HTTPAddr      string
	MetricsAddr   string
	NATSURL       string
	OrdersSubject string
	TradesSubject string
	DataDir       string
	BufferSize    int
}

// Default returns the development defaults.
func Default() Config {
	return Config{
		HTTPAddr:      ":8080",
		MetricsAddr:   ":9090",
		NATSURL:       "nats://localhost:4222",
		OrdersSubject: "exchange.orders",
		TradesSubject: "exchange.trades",
		DataDir:       "data/settlement",
		BufferSize:    4096,
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv() Config {
	cfg := Default()

	_ = godotenv.Load() // optional .env in the working directory

	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NATSURL = v
	}
	if v := os.Getenv("ORDERS_SUBJECT"); v != "" {
		cfg.OrdersSubject = v
	}
	if v := os.Getenv("TRADES_SUBJECT"); v != "" {
		cfg.TradesSubject = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("BUFFER_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BufferSize = n
		}
	}

	return cfg
}
