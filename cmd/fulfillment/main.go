package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/modadz/marketplace/internal/config"
	"github.com/modadz/marketplace/internal/fulfillment"
	kafkax "github.com/modadz/marketplace/internal/kafka"
	"github.com/modadz/marketplace/internal/orders"
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

	worker := &fulfillment.Worker{
		Repo:  &orders.Repo{DB: db},
		Redis: rdb,
		Name:  cfg.ServiceName + "-fulfillment",
	}

	group := getenv("FULFILLMENT_GROUP", "fulfillment-svc")
	workers := atoiDefault(os.Getenv("FULFILLMENT_WORKERS"), 8)
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, orders.TopicOrderConfirmed, workers)

	go func() {
		log.Info().Str("group", group).Str("topic", orders.TopicOrderConfirmed).Int("workers", workers).
			Msg("fulfillment consumer started")
		if err := cons.Start(ctx, worker.HandleOrderConfirmed); err != nil {
			log.Error().Err(err).Msg("consumer exit")
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down consumer")
	cancel()
	time.Sleep(500 * time.Millisecond)
}

func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
