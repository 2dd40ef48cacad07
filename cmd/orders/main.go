package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"

	"github.com/joao-fontenele/marketplace-orderflow/internal/accounts"
	"github.com/joao-fontenele/marketplace-orderflow/internal/carts"
	"github.com/joao-fontenele/marketplace-orderflow/internal/catalog"
	"github.com/joao-fontenele/marketplace-orderflow/internal/clock"
	"github.com/joao-fontenele/marketplace-orderflow/internal/config"
	"github.com/joao-fontenele/marketplace-orderflow/internal/domain"
	"github.com/joao-fontenele/marketplace-orderflow/internal/email"
	"github.com/joao-fontenele/marketplace-orderflow/internal/messaging"
	"github.com/joao-fontenele/marketplace-orderflow/internal/notify"
	"github.com/joao-fontenele/marketplace-orderflow/internal/orders"
	"github.com/joao-fontenele/marketplace-orderflow/internal/payment"
	"github.com/joao-fontenele/marketplace-orderflow/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load("8081")
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Require("POSTGRES_URL"); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.OTLPEndpoint, "orders", cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("orders", cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize metrics", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	orderMetrics, err := telemetry.NewOrderMetrics(otel.Meter("marketplace-orderflow/orders"))
	if err != nil {
		logger.Error("failed to create order metrics", "error", err)
		os.Exit(1)
	}

	db, err := telemetry.OpenDB(ctx, cfg.PostgresURL, cfg.DBMaxOpenConns)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	var sender notify.Sender
	switch {
	case len(cfg.KafkaBrokers) > 0:
		producer := messaging.NewProducer(cfg.KafkaBrokers, domain.TopicOrderConfirmation)
		defer func() { _ = producer.Close() }()
		sender = notify.NewKafkaSender(producer)
		logger.Info("order confirmations published to kafka", "brokers", cfg.KafkaBrokers, "topic", producer.Topic())
	case cfg.EmailServiceURL != "":
		sender = notify.NewEmailSender(email.NewClient(cfg.EmailServiceURL, cfg.MailFrom, httpClient))
		logger.Info("order confirmations sent directly to email service", "url", cfg.EmailServiceURL)
	default:
		logger.Warn("no notification sender configured, order confirmations disabled")
	}

	var dispatcher *notify.Dispatcher
	var notifier orders.Notifier
	if sender != nil {
		dispatcher = notify.NewDispatcher(sender, logger,
			notify.WithQueueSize(cfg.NotifyQueueSize),
			notify.WithSendTimeout(cfg.NotifyTimeout),
			notify.WithMetrics(orderMetrics),
		)
		notifier = dispatcher
	}

	var refunder orders.Refunder
	if cfg.PaymentGatewayURL != "" {
		refunder = payment.NewClient(cfg.PaymentGatewayURL, cfg.PaymentGatewayKey, httpClient)
	} else {
		logger.Warn("PAYMENT_GATEWAY_URL not set, card orders cannot be refunded")
	}

	catalogRepo := catalog.NewRepository(db)
	cartRepo := carts.NewRepository(db)

	service := orders.NewService(orders.Dependencies{
		Store:    orders.NewOrderRepository(db),
		Catalog:  catalogRepo,
		Stock:    catalogRepo,
		Accounts: accounts.NewRepository(db),
		Carts:    cartRepo,
		Refunder: refunder,
		Notifier: notifier,
		Clock:    clock.NewSystem(),
		Logger:   logger,
		Metrics:  orderMetrics,
	})
	handler := orders.NewHandler(service, logger)
	cartHandler := carts.NewHandler(cartRepo, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /orders", telemetry.WithHTTPRoute(handler.HandleCreate))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(handler.HandleGet))
	mux.HandleFunc("DELETE /orders/{id}", telemetry.WithHTTPRoute(handler.HandleDelete))
	mux.HandleFunc("PATCH /orders/{id}/suborders/{suborderId}/status", telemetry.WithHTTPRoute(handler.HandleUpdateSuborderStatus))
	mux.HandleFunc("GET /users/{userId}/orders", telemetry.WithHTTPRoute(handler.HandleListUserOrders))
	mux.HandleFunc("GET /sellers/{sellerId}/suborders", telemetry.WithHTTPRoute(handler.HandleSellerSuborders))
	mux.HandleFunc("GET /sellers/{sellerId}/stats", telemetry.WithHTTPRoute(handler.HandleSellerStats))
	mux.HandleFunc("GET /carts/{userId}", telemetry.WithHTTPRoute(cartHandler.HandleGet))
	mux.HandleFunc("POST /carts/{userId}/items", telemetry.WithHTTPRoute(cartHandler.HandleAddItem))
	mux.HandleFunc("DELETE /carts/{userId}/items", telemetry.WithHTTPRoute(cartHandler.HandleRemoveItems))
	mux.HandleFunc("GET /health", handler.HandleHealth)
	mux.Handle("GET /metrics", metricsHandler)

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: otelhttp.NewHandler(mux, "orders",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting orders service", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	if dispatcher != nil {
		if err := dispatcher.Close(shutdownCtx); err != nil {
			logger.Error("pending notifications not delivered", "error", err)
		}
	}
}
