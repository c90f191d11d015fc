package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/freshfold/laundry-orders/internal/config"
	kafkax "github.com/freshfold/laundry-orders/internal/kafka"
	"github.com/freshfold/laundry-orders/internal/notify"
	"github.com/freshfold/laundry-orders/internal/orders"
	"github.com/freshfold/laundry-orders/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	disp := &notify.Dispatcher{
		Redis:   rdb,
		Deliver: notify.LogDelivery(logger),
		Log:     logger,
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroup, orders.TopicOrderNotifications, cfg.NotifierWorkers)

	go func() {
		logger.Info("notifier consumer started",
			"group", cfg.NotifierGroup, "topic", orders.TopicOrderNotifications, "workers", cfg.NotifierWorkers)
		if err := cons.Start(ctx, disp.HandleMessage); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down notifier")
	cancel()
	time.Sleep(500 * time.Millisecond)
}
