// Command tokenauthd serves the tokenauth login, refresh and logout flows
// over HTTP.
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

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/internal/sweep"
	promexport "github.com/MrEthical07/tokenauth/metrics/export/prometheus"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("TOKENAUTH_CONFIG"), "optional YAML config file")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	if err := run(*configPath, log); err != nil {
		log.WithError(err).Error("tokenauthd: exiting")
		os.Exit(1)
	}
}

func run(configPath string, log *logrus.Logger) error {
	cfg, err := loadConfig(configPath, os.Getenv)
	if err != nil {
		return err
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	if err := initSentry(cfg.SentryDSN, cfg.Environment); err != nil {
		log.WithError(err).Warn("tokenauthd: sentry init failed")
	}
	defer flushSentry()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	engineCfg := cfg.engineConfig()
	for _, w := range engineCfg.Lint() {
		log.WithField("code", w.Code).Warn("tokenauthd: config: " + w.Message)
	}

	builder := tokenauth.New().
		WithConfig(engineCfg).
		WithAccountStore(store.accounts).
		WithRefreshStore(store.tokens).
		WithLogger(log)
	if cfg.Auth.Audit {
		builder = builder.WithAuditSink(tokenauth.NewLogrusSink(log))
	}
	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := bootstrapAdmin(ctx, engine, cfg, log); err != nil {
		return err
	}

	sweeper, err := sweep.New(engine, cfg.SweepSchedule, log)
	if err != nil {
		return err
	}
	sweeper.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = sweeper.Stop(stopCtx)
	}()

	srv := &server{
		engine:  engine,
		log:     log,
		metrics: promexport.NewCollector(engine).Handler(),
		ping:    store.ping,
	}
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{"addr": cfg.HTTPAddr, "store": cfg.Store}).Info("tokenauthd: listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("tokenauthd: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// bootstrapAdmin creates the configured SUPER_ADMIN account once.
func bootstrapAdmin(ctx context.Context, engine *tokenauth.Engine, cfg serverConfig, log logrus.FieldLogger) error {
	if cfg.AdminUsername == "" || cfg.AdminPassword == "" {
		return nil
	}
	_, err := engine.Register(ctx, cfg.AdminUsername, cfg.AdminPassword, []string{tokenauth.RoleSuperAdmin})
	switch {
	case err == nil:
		log.WithField("username", cfg.AdminUsername).Info("tokenauthd: administrator created")
	case errors.Is(err, tokenauth.ErrUsernameTaken):
	default:
		return err
	}
	return nil
}
