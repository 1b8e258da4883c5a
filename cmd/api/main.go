package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/modadz/marketplace/internal/catalog"
	"github.com/modadz/marketplace/internal/config"
	"github.com/modadz/marketplace/internal/customers"
	"github.com/modadz/marketplace/internal/httpx"
	"github.com/modadz/marketplace/internal/inventory"
	kafkax "github.com/modadz/marketplace/internal/kafka"
	"github.com/modadz/marketplace/internal/orders"
	"github.com/modadz/marketplace/internal/payments"
	"github.com/modadz/marketplace/internal/postgres"
	"github.com/modadz/marketplace/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	setupLogger(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	pub := kafkax.NewPublisher(cfg.KafkaBrokers, 1024,
		orders.TopicOrderCreated,
		orders.TopicOrderConfirmed,
		orders.TopicOrderCancelled,
		orders.TopicOrderStatusChanged,
	)
	pub.Start(ctx)

	dispatcher := &payments.Dispatcher{
		Gateways: map[orders.PaymentMethod]payments.Gateway{
			orders.PaymentCIB:      &payments.SandboxGateway{Prefix: "CIB", Limit: cfg.GatewayAmountLimit},
			orders.PaymentEdahabia: &payments.SandboxGateway{Prefix: "EDH", Limit: cfg.GatewayAmountLimit},
		},
	}

	svc := &orders.Service{
		Catalog:   &catalog.Repo{DB: db},
		Customers: &customers.Repo{DB: db},
		Inventory: &inventory.Repo{DB: db},
		Payments:  dispatcher,
		Repo:      &orders.Repo{DB: db},
		Events:    pub,
		Pricing:   cfg.Pricing(),
		Producer:  cfg.ServiceName,
	}

	router := httpx.NewRouter()
	(&httpx.OrdersHandler{Service: svc, Redis: rdb}).Register(router)
	(&httpx.ProductsHandler{Repo: &catalog.Repo{DB: db}}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	pub.Close() // close inboxes -> flush & close writers
	pub.WaitClosed()
}

func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
