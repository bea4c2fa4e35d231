package main

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/xtrntr/papertrade/internal/app"
	"github.com/xtrntr/papertrade/internal/config"
	"github.com/xtrntr/papertrade/internal/exchange"
	"github.com/xtrntr/papertrade/internal/logger"
	"github.com/xtrntr/papertrade/internal/models"
)

// env is the configuration and storage shared by every command
type env struct {
	cfg   *config.Config
	log   zerolog.Logger
	store app.Store
	close func()
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.NewWithWriter(logger.Config{Level: cfg.LogLevel, Pretty: true}, os.Stderr)
	store, closeStore, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: log, store: store, close: closeStore}, nil
}

func (e *env) exchange() *exchange.Exchange {
	return exchange.NewExchange(e.store, e.cfg.StartingBalance, e.log)
}

func (e *env) lookupUser(ctx context.Context, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, errors.New("-user is required")
	}
	return e.store.GetUserByEmail(ctx, email)
}
