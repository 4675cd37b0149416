package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ammiranda/request_tree/config"
	"github.com/ammiranda/request_tree/internal/app"
)

func main() {
	// Create context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize config provider
	cfgProvider, err := config.NewDefaultProvider()
	if err != nil {
		log.Fatal("Failed to create config provider:", err)
	}

	application, err := app.New(ctx, cfgProvider)
	if err != nil {
		log.Fatal("Failed to initialize application:", err)
	}
	defer application.Close(context.Background())

	srv := &http.Server{
		Addr:              application.Config.ListenAddr,
		Handler:           application.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			application.Logger.Error("shutdown failed", slog.Any("error", err))
		}
	}()

	// Start server
	application.Logger.Info("server listening", slog.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("Failed to start server:", err)
	}
}
