package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is built once in main and handed to the components that need it.
type Config struct {
	Port            string
	PostgresURL     string
	DBMaxOpenConns  int
	OTLPEndpoint    string
	ServiceVersion  string
	ShutdownTimeout time.Duration

	KafkaBrokers []string

	EmailServiceURL string
	MailFrom        string
	NotifyQueueSize int
	NotifyTimeout   time.Duration

	PaymentGatewayURL string
	PaymentGatewayKey string

	OrdersServiceURL  string
	CatalogServiceURL string
}

// Load reads the environment, applying defaultPort when PORT is unset.
func Load(defaultPort string) (Config, error) {
	return load(os.Getenv, defaultPort)
}

func load(getenv func(string) string, defaultPort string) (Config, error) {
	get := func(key, fallback string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return fallback
	}

	var errs []error

	intVar := func(key string, fallback int) int {
		raw := get(key, "")
		if raw == "" {
			return fallback
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			errs = append(errs, fmt.Errorf("%s must be a non-negative integer, got %q", key, raw))
			return fallback
		}
		return n
	}

	durationVar := func(key string, fallback time.Duration) time.Duration {
		raw := get(key, "")
		if raw == "" {
			return fallback
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s must be a duration, got %q", key, raw))
			return fallback
		}
		return d
	}

	cfg := Config{
		Port:              get("PORT", defaultPort),
		PostgresURL:       get("POSTGRES_URL", ""),
		DBMaxOpenConns:    intVar("DB_MAX_OPEN_CONNS", 10),
		OTLPEndpoint:      get("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		ServiceVersion:    get("SERVICE_VERSION", "0.1.0"),
		ShutdownTimeout:   durationVar("SHUTDOWN_TIMEOUT", 10*time.Second),
		KafkaBrokers:      splitList(get("KAFKA_BROKERS", "")),
		EmailServiceURL:   strings.TrimRight(get("EMAIL_SERVICE_URL", ""), "/"),
		MailFrom:          get("MAIL_FROM", "orders@marketplace.local"),
		NotifyQueueSize:   intVar("NOTIFY_QUEUE_SIZE", 256),
		NotifyTimeout:     durationVar("NOTIFY_TIMEOUT", 10*time.Second),
		PaymentGatewayURL: strings.TrimRight(get("PAYMENT_GATEWAY_URL", ""), "/"),
		PaymentGatewayKey: get("PAYMENT_GATEWAY_KEY", ""),
		OrdersServiceURL:  strings.TrimRight(get("ORDERS_SERVICE_URL", ""), "/"),
		CatalogServiceURL: strings.TrimRight(get("CATALOG_SERVICE_URL", ""), "/"),
	}

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}

// Require returns an error naming every listed setting that is empty.
func (c Config) Require(names ...string) error {
	values := map[string]string{
		"POSTGRES_URL":        c.PostgresURL,
		"EMAIL_SERVICE_URL":   c.EmailServiceURL,
		"PAYMENT_GATEWAY_URL": c.PaymentGatewayURL,
		"ORDERS_SERVICE_URL":  c.OrdersServiceURL,
		"CATALOG_SERVICE_URL": c.CatalogServiceURL,
		"KAFKA_BROKERS":       strings.Join(c.KafkaBrokers, ","),
	}

	var missing []string
	for _, name := range names {
		if values[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

func splitList(csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
