package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/shoplite/catalog-orders/internal/config"
	"github.com/shoplite/catalog-orders/internal/httpx"
	kafkax "github.com/shoplite/catalog-orders/internal/kafka"
	"github.com/shoplite/catalog-orders/internal/obs"
	"github.com/shoplite/catalog-orders/internal/orders"
	"github.com/shoplite/catalog-orders/internal/postgres"
	"github.com/shoplite/catalog-orders/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := obs.Logger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN, 8)
	if err != nil {
		log.Error("db connect", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	producer := kafkax.NewProducer(cfg.KafkaBrokers)
	defer producer.Close()

	repo := &orders.Repo{DB: db}
	dispatcher := &orders.Dispatcher{
		Outbox:      &orders.OutboxRepo{DB: db},
		Producer:    producer,
		Interval:    cfg.OutboxInterval,
		BatchSize:   cfg.OutboxBatchSize,
		MaxAttempts: cfg.PublishMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		Log:         log,
	}

	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{
		Store:   repo,
		Cache:   redisx.Cache{RDB: rdb},
		Service: cfg.ServiceName,
	}
	oh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	g.Go(func() error {
		log.Info("outbox dispatcher started", "interval", cfg.OutboxInterval.String(), "batch", cfg.OutboxBatchSize)
		return dispatcher.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		log.Error("orders service exit", "err", err)
		os.Exit(1)
	}
	log.Info("orders service stopped")
}
