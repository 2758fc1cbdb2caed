package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"linova-go/internal/config"
	"linova-go/internal/db"
	httpapi "linova-go/internal/http"
	"linova-go/internal/logger"
	"linova-go/internal/migrations"
	"linova-go/internal/services"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := logger.NewWithOptions(logger.Options{
		Mode:          cfg.LogMode,
		Dir:           cfg.LogDir,
		RetentionDays: cfg.LogRetentionDays,
	})
	if err != nil {
		panic("logger: " + err.Error())
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("db open failed", "error", err)
	}
	defer database.Close()

	ran, err := migrations.Apply(database, migrations.Files())
	if err != nil {
		log.Fatal("migrations failed", "error", err)
	}
	if len(ran) > 0 {
		log.Info("migrations applied", "names", ran)
	}

	hub := services.NewChangeHub(log)
	go hub.Run(ctx)

	var publisher services.Publisher = hub
	if cfg.RedisAddr != "" {
		bus, err := services.NewRedisBus(ctx, cfg.RedisAddr, cfg.RedisChannel, log)
		if err != nil {
			log.Fatal("redis bus failed", "error", err)
		}
		defer bus.Close()
		forward := func(change services.Change) { _ = hub.Publish(ctx, change) }
		if err := bus.StartForwarder(ctx, forward); err != nil {
			log.Fatal("redis forwarder failed", "error", err)
		}
		publisher = bus
		log.Info("sharing changes over redis", "addr", cfg.RedisAddr, "channel", cfg.RedisChannel)
	}

	server := httpapi.NewServer(database, cfg, hub, publisher, log)

	addr := ":" + cfg.Port
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Router(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop
	cancel()
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(ctxShutdown)
	log.Info("shutdown complete")
}
