// Command certengine runs the sustainability assessment engine and
// certification registry with its metrics endpoint and certificate sweeper.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/R3E-Network/sustainability_layer/internal/app"
	"github.com/R3E-Network/sustainability_layer/internal/app/jobs"
	"github.com/R3E-Network/sustainability_layer/internal/chain"
	"github.com/R3E-Network/sustainability_layer/internal/config"
	"github.com/R3E-Network/sustainability_layer/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file")
	envFile := flag.String("env", ".env", "Path to optional .env file")
	flag.Parse()

	if v := os.Getenv("CERTENGINE_CONFIG"); v != "" && *configPath == "" {
		*configPath = v
	}

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		logger.NewDefault("certengine").WithError(err).Fatal("load configuration")
	}
	log := logger.New(cfg.Logging).Named("certengine")

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("certengine exited")
	}
}

func run(cfg config.Config, log *logger.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	owner, err := cfg.RegistryOwner()
	if err != nil {
		return err
	}

	stores, closeStores, err := app.OpenStores(ctx, cfg.Storage, log.Named("storage"))
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStores(); err != nil {
			log.WithError(err).Warn("close storage")
		}
	}()

	application, err := app.New(stores, owner, log,
		app.WithAssessmentHistoryCap(cfg.Registry.AssessmentHistoryCap),
		app.WithCertificateHistoryCap(cfg.Registry.CertificateHistoryCap),
	)
	if err != nil {
		return err
	}

	if err := attachSweeper(application, cfg, log); err != nil {
		return err
	}

	if err := application.Start(ctx); err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           newRouter(application),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Metrics.Addr).Info("metrics listener started")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			log.WithError(err).Error("metrics listener failed")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("metrics listener shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		return err
	}
	log.Info("certengine stopped")
	return nil
}

// attachSweeper registers the certificate sweeper when it is enabled and a
// Neo RPC endpoint is available to supply block heights.
func attachSweeper(application *app.Application, cfg config.Config, log *logger.Logger) error {
	if !cfg.Sweeper.Enabled {
		return nil
	}
	if cfg.Chain.RPCURL == "" {
		log.Warn("NEO_RPC_URL not set; certificate sweeper disabled")
		return nil
	}

	client, err := chain.NewClient(chain.Config{RPCURL: cfg.Chain.RPCURL, Timeout: cfg.Chain.Timeout})
	if err != nil {
		return err
	}
	sweeper := jobs.NewSweeper(application.Certification, chain.NewHeightClock(client), log.Named("sweeper"))
	sweeper.WithSchedule(cfg.Sweeper.Schedule)
	return application.Attach(sweeper)
}
