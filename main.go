package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"messenger-sync/config"
	"messenger-sync/controller"
	"messenger-sync/database"
	"messenger-sync/event"
	"messenger-sync/messenger"
	"messenger-sync/metrics"
	"messenger-sync/presence"
	"messenger-sync/registry"
	"messenger-sync/router"
	"messenger-sync/socket"
	"messenger-sync/store"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	log.SetPrefix("messenger-sync: ")

	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	settings, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := settings.Logger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	db, err := database.Connect(settings, logger.Named("database"))
	if err != nil {
		return err
	}
	enforcer, err := database.Casbin(db)
	if err != nil {
		return err
	}

	rdb, err := database.RedisConnect(ctx, settings, logger.Named("redis"))
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	local := registry.NewLocal(logger.Named("registry"), m)
	var (
		connections registry.Registry = local
		online      presence.Store    = presence.NewMemory()
	)
	if rdb != nil {
		connections, err = registry.NewRedis(ctx, rdb, registry.DefaultChannel, local)
		if err != nil {
			return err
		}
		online = presence.NewRedis(rdb, presence.DefaultKey)
	}

	publisher, err := newPublisher(settings, logger.Named("event"))
	if err != nil {
		return err
	}

	messages := messenger.New(messenger.Options{
		Store:        store.New(db),
		Registry:     connections,
		Presence:     presence.NewTracker(online),
		Enforcer:     enforcer,
		Publisher:    publisher,
		Logger:       logger.Named("messenger"),
		HistoryLimit: settings.HistoryLimit,
	})

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		StrictRouting:         true,
		AppName:               "messenger-sync",
	})
	app.Use(cors.New(cors.Config{AllowOrigins: settings.CORSOrigins}))

	router.Rest(app, controller.NewMessenger(messages, logger.Named("controller")), router.RestOptions{
		AccessKey: settings.JWTAccessKey,
		Gatherer:  reg,
		AccessLog: true,
	})
	router.Socket(app, socket.New(messages, logger.Named("socket"), m, socket.Options{
		AccessKey: settings.JWTAccessKey,
		Rate:      settings.SocketRate,
		Burst:     settings.SocketBurst,
	}))

	listenErr := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%s", settings.ServerPort)
		logger.Info("listening", zap.String("addr", addr))
		listenErr <- app.Listen(addr)
	}()

	select {
	case err = <-listenErr:
	case <-ctx.Done():
		logger.Info("shutting down")
		err = app.ShutdownWithTimeout(10 * time.Second)
	}

	if cerr := connections.Close(); cerr != nil {
		logger.Warn("close registry", zap.Error(cerr))
	}
	if cerr := publisher.Close(); cerr != nil {
		logger.Warn("close publisher", zap.Error(cerr))
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if sqlDB, cerr := db.DB(); cerr == nil {
		_ = sqlDB.Close()
	}
	return err
}

func newPublisher(s *config.Settings, logger *zap.Logger) (event.Publisher, error) {
	switch {
	case s.RabbitMQHost != "":
		return event.RabbitMQConnect(s.RabbitMQURL(), s.EventQueue, s.EventLogFile, logger)
	case s.EventLogFile != "":
		logger.Info("no broker configured, writing events to file", zap.String("path", s.EventLogFile))
		return event.OpenFileLog(s.EventLogFile, s.EventQueue)
	default:
		return event.Noop{}, nil
	}
}
