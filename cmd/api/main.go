package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/safar/go-sql-shop/internal/cache"
	"github.com/safar/go-sql-shop/internal/config"
	"github.com/safar/go-sql-shop/internal/database"
	"github.com/safar/go-sql-shop/internal/httpx"
	"github.com/safar/go-sql-shop/internal/notify"
	"github.com/safar/go-sql-shop/internal/orders"
	"github.com/sirupsen/logrus"
)

const serviceName = "sqlshop-api"

func newLogger(cfg config.LogConfig) *logrus.Logger {
	log := logrus.New()
	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		log.WithField("level", cfg.Level).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Load config: %v", err)
	}

	log := newLogger(cfg.Log)

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	log.Info("Connected to database successfully")

	ctx := context.Background()

	var statusCache *cache.StatusCache
	if cfg.Redis.Addr != "" {
		rdb := cache.NewRedisClient(cfg.Redis.Addr)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.WithError(err).Warn("Redis unreachable, order status cache disabled")
		} else {
			statusCache = cache.NewStatusCache(rdb, cfg.Redis.StatusTTL)
			log.WithField("addr", cfg.Redis.Addr).Info("Order status cache enabled")
		}
	}

	var channels []notify.Channel

	if len(cfg.Kafka.Brokers) > 0 {
		writer := notify.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.PushTopic)
		defer writer.Close()
		channels = append(channels, notify.NewPushChannel(writer, serviceName))
		log.WithField("topic", cfg.Kafka.PushTopic).Info("Push channel enabled")
	}

	if cfg.RabbitMQ.URL != "" {
		conn, ch, err := notify.DialRabbitMQ(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			log.WithError(err).Warn("RabbitMQ unavailable, event channel disabled")
		} else {
			defer conn.Close()
			defer ch.Close()
			channels = append(channels, notify.NewEventChannel(ch, cfg.RabbitMQ.Exchange, serviceName))
			log.WithField("exchange", cfg.RabbitMQ.Exchange).Info("Event channel enabled")
		}
	}

	if cfg.Email.SenderEmail != "" {
		client, err := notify.NewSESClient(ctx, cfg.Email)
		if err != nil {
			log.WithError(err).Warn("SES unavailable, email channel disabled")
		} else {
			channels = append(channels, notify.NewEmailChannel(client, cfg.Email.SenderEmail))
			log.WithField("sender", cfg.Email.SenderEmail).Info("Email channel enabled")
		}
	}

	dispatcher := notify.NewDispatcher(notify.DBStore{DB: db}, cfg.Notify.MaxAttempts, log, channels...)

	svc := orders.NewService(db, dispatcher, statusCache, orders.Config{
		CancelWindow:   cfg.Orders.CancelWindow,
		NumberAttempts: cfg.Orders.NumberAttempts,
		NotifyTimeout:  cfg.Notify.Timeout,
	}, log)

	router := httpx.NewRouter(&httpx.Handler{
		DB:        db,
		Orders:    svc,
		Notifier:  dispatcher,
		JWTSecret: cfg.Auth.JWTSecret,
		Log:       log,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.WithField("port", cfg.Server.Port).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
	}

	// Let in-flight notification dispatches finish before the channels close.
	done := make(chan struct{})
	go func() {
		svc.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(cfg.Notify.Timeout):
		log.Warn("Gave up waiting for notification dispatches")
	}
}
