package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"deal-voice-notes/internal/bootstrap"
	"deal-voice-notes/internal/config"
	"deal-voice-notes/internal/httpapi"
	"deal-voice-notes/internal/logger"
	"deal-voice-notes/internal/scratch"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("", "info").WithError(err).Fatal("failed to load configuration")
	}

	log := logger.New(cfg.Environment, cfg.LogLevel)
	log.WithField("service", "deal-voice-notes").Info("starting service")
	for _, w := range cfg.Warnings() {
		log.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dir, err := scratch.New(cfg.ScratchDir, log.Component("scratch"))
	if err != nil {
		log.WithError(err).Fatal("failed to prepare scratch dir")
	}
	log.WithField("scratch_dir", dir.Root()).Info("scratch dir ready")

	p, closePipeline := bootstrap.Pipeline(ctx, cfg, log)
	defer closePipeline()

	oauthCfg := bootstrap.OAuthConfig(cfg)
	api := httpapi.New(p, dir, httpapi.Options{
		MaxUploadBytes: cfg.MaxUploadBytes(),
		OAuth:          oauthCfg,
	}, log)

	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		// Uploads run the whole pipeline synchronously.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).WithField("oauth_flow", oauthCfg != nil).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Fatal("server terminated")
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("graceful shutdown failed")
		}
	}
	log.Info("server stopped")
}
