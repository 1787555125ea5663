package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/signalworks/outreachd/internal/decision"
	"github.com/signalworks/outreachd/internal/dispatch"
	"github.com/signalworks/outreachd/internal/genai"
	"github.com/signalworks/outreachd/internal/gmail"
	"github.com/signalworks/outreachd/internal/server"
)

const shutdownTimeout = 10 * time.Second

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	st, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	generator, err := genai.New(genai.Config{
		Provider:  cfg.GenAI.Provider,
		APIKey:    cfg.GenAI.APIKey,
		Model:     cfg.GenAI.Model,
		BaseURL:   cfg.GenAI.BaseURL,
		MaxTokens: cfg.GenAI.MaxTokens,
	})
	if err != nil {
		return err
	}
	composer := decision.NewComposer(generator, logger)

	reg := prometheus.NewRegistry()
	metrics := dispatch.NewMetrics(reg)

	creds := gmail.NewCredentials(gmail.CredentialConfig{
		ClientID:     cfg.Gmail.ClientID,
		ClientSecret: cfg.Gmail.ClientSecret,
		RefreshToken: cfg.Gmail.RefreshToken,
		TokenURL:     cfg.Gmail.TokenURL,
	})
	client := gmail.NewClient("", 30*time.Second)
	dispatcher := dispatch.New(st, creds, client, logger, metrics)

	srv, err := server.NewServer(composer, st, dispatcher, reg, logger, &server.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		return err
	}
	return nil
}
