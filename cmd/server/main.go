// Command server runs the paper trading HTTP API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xtrntr/papertrade/internal/api"
	"github.com/xtrntr/papertrade/internal/app"
	"github.com/xtrntr/papertrade/internal/auth"
	"github.com/xtrntr/papertrade/internal/config"
	"github.com/xtrntr/papertrade/internal/exchange"
	"github.com/xtrntr/papertrade/internal/logger"
	"github.com/xtrntr/papertrade/internal/notify"
	"github.com/xtrntr/papertrade/internal/scheduler"
	"github.com/xtrntr/papertrade/internal/stream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	logger.SetGlobalLogger(log)
	log.Info().Str("driver", cfg.StorageDriver).Msg("Starting PaperTrade")

	app.UseNumericJSON()

	ctx := context.Background()
	store, closeStore, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer closeStore()

	// Email delivery runs on its own workers, off the request path
	dispatcher := notify.NewDispatcher(cfg.NotifyWorkers, cfg.NotifyQueue, 15*time.Second, log)
	dispatcher.Start()
	notifier := notify.NewNotifier(dispatcher, notify.NewLogMailer(log), store, notify.Options{
		Currency:        cfg.Currency,
		StartingBalance: cfg.StartingBalance,
		CodeTTL:         auth.CodeTTL,
	}, log)

	hub := stream.NewHub(cfg.CORSOrigins, log)

	authService := auth.NewAuthService(store, auth.Config{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		TokenTTL: cfg.JWTTTL,
	}, notifier, log)

	ex := exchange.NewExchange(store, cfg.StartingBalance, log, notifier, hub)

	sched := scheduler.New(log)
	if err := sched.AddJob(cfg.PendingPurgeSchedule, scheduler.NewPurgePendingJob(authService, 30*time.Second, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule pending signup purge")
	}
	sched.Start()

	handler := api.NewHandler(ex, authService, hub, log)
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.CORSOrigins,
		RateLimit:      cfg.RateLimit,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	hub.Close()
	sched.Stop()
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Notification queue not drained")
	}

	log.Info().Msg("Server stopped")
}
