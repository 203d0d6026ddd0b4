package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/lesspay/internal/handlers"
	"github.com/example/lesspay/internal/routes"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the reconciliation sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}
}

func runServe(ctx context.Context) error {
	a, err := newApplication()
	if err != nil {
		return err
	}
	defer a.Close()

	app := fiber.New(fiber.Config{
		AppName:      "LessPay",
		ErrorHandler: handlers.ErrorHandler(a.log),
	})

	app.Use(recover.New())
	app.Use(logger.New())

	routes.Register(app, routes.Dependencies{
		DB:            a.db,
		Store:         a.store,
		Links:         a.links,
		Reconciler:    a.reconciler,
		Tokens:        a.tokens,
		BackOfficeKey: a.cfg.BackOfficeKey,
		Log:           a.log,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.reconciler.Run(gctx); err != nil {
			return fmt.Errorf("reconciler: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		a.log.Info("starting server", zap.String("port", a.cfg.AppPort), zap.String("env", a.cfg.Env))
		if err := app.Listen(":" + a.cfg.AppPort); err != nil {
			return fmt.Errorf("fiber.Listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
