package main

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/lesspay/internal/config"
	"github.com/example/lesspay/internal/database"
	"github.com/example/lesspay/internal/logging"
	"github.com/example/lesspay/internal/services"
	"github.com/example/lesspay/internal/utils"
)

// application holds the process-wide services shared by the subcommands.
type application struct {
	cfg        *config.Config
	log        *zap.Logger
	db         *gorm.DB
	store      *services.GormTransactionStore
	reconciler *services.Reconciler
	links      *services.LinkIssuer
	tokens     *utils.TokenIssuer
}

func newApplication() (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.RequireGateway(); err != nil {
		return nil, err
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	db, err := database.Connect(cfg.DatabaseURL, cfg.LogLevel, log)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}

	gateway := services.NewMswipeClient(services.MswipeConfig{
		BaseURL:  cfg.MswipeBaseURL,
		UserID:   cfg.MswipeUserID,
		ClientID: cfg.MswipeClientID,
		Password: cfg.MswipePassword,
		CustCode: cfg.MswipeCustCode,
		Timeout:  cfg.GatewayTimeout,
	})
	store := services.NewGormTransactionStore(db)
	telegram := services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat, log)

	return &application{
		cfg:   cfg,
		log:   log,
		db:    db,
		store: store,
		reconciler: services.NewReconciler(store, gateway, telegram, services.ReconcilerConfig{
			Interval:    cfg.SweepInterval,
			Concurrency: cfg.SweepConcurrency,
			CallTimeout: cfg.GatewayTimeout,
		}, log),
		links:  services.NewLinkIssuer(gateway, store, cfg.GatewayTimeout, log),
		tokens: utils.NewTokenIssuer(cfg.JWTSecret, cfg.TokenExpires),
	}, nil
}

func (a *application) Close() {
	if err := database.Close(a.db); err != nil {
		a.log.Warn("close database", zap.Error(err))
	}
	_ = a.log.Sync()
}
