package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/freshfold/laundry-orders/internal/catalog"
	"github.com/freshfold/laundry-orders/internal/config"
	"github.com/freshfold/laundry-orders/internal/httpx"
	kafkax "github.com/freshfold/laundry-orders/internal/kafka"
	"github.com/freshfold/laundry-orders/internal/notify"
	"github.com/freshfold/laundry-orders/internal/orders"
	"github.com/freshfold/laundry-orders/internal/postgres"
	"github.com/freshfold/laundry-orders/internal/redisx"
	"github.com/freshfold/laundry-orders/internal/rewards"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer for the notification topic
	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderNotifications, 1024)
	prod.Start(ctx)

	// Core wiring
	cat := &catalog.Repo{DB: db}
	ledger := &rewards.Ledger{DB: db}
	fx := &orders.Orchestrator{
		Rewards:    ledger,
		Catalog:    cat,
		Notifier:   &notify.KafkaNotifier{Producer: prod, Service: cfg.ServiceName},
		PointsRate: cfg.PointsRate,
		Log:        logger,
	}
	svc := &orders.Service{
		Store:   &orders.Repo{DB: db},
		Catalog: cat,
		Effects: fx,
		Log:     logger,
	}

	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{Svc: svc, Redis: rdb, Log: logger}
	oh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		logger.Info("HTTP listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close() // flush remaining notifications, then close the writer
	prod.WaitClosed()
}
