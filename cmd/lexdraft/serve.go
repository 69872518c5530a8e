package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"lexdraft/api/internal/app"
	"lexdraft/api/internal/config"
	"lexdraft/api/internal/email"
	"lexdraft/api/internal/export"
	"lexdraft/api/internal/logging"
	"lexdraft/api/internal/metrics"
	"lexdraft/api/internal/ratelimit"
	"lexdraft/api/internal/search"
	"lexdraft/api/internal/store"
	"lexdraft/api/internal/store/memory"
)

var gracefulTimeout = 10 * time.Second

var (
	flagAddr        string
	flagStoreDriver string
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [options]",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				cfg.Addr = flagAddr
			}
			if cmd.Flags().Changed("store") {
				cfg.StoreDriver = flagStoreDriver
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&flagAddr, "addr", ":8787", "Address to listen on")
	cmd.Flags().StringVar(&flagStoreDriver, "store", config.DriverPostgres, "Store driver: postgres or memory")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := logging.New("server")

	var (
		db       *sql.DB
		pg       *store.PostgresStore
		mem      *memory.Store
		fallback search.Searcher
	)
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		opened, err := store.Open(ctx, cfg.DatabaseURL, store.DefaultPoolConfig())
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		db = opened
		defer db.Close()
		if cfg.AutoMigrate {
			applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
			if err != nil {
				return fmt.Errorf("migrations failed: %w", err)
			}
			if len(applied) > 0 {
				logger.Infow("migrations applied", "versions", applied)
			}
		}
		pg = store.NewPostgresStore(db)
		fallback = search.NewPgFTS(db)
	case config.DriverMemory:
		created, err := memory.New()
		if err != nil {
			return fmt.Errorf("memory store: %w", err)
		}
		mem = created
		fallback = search.NewScan(mem)
		logger.Warn("using the in-memory store, data is lost on restart")
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, fallback)
	defer searchService.Close()
	if pgfts, ok := fallback.(*search.PgFTS); ok && meiliClient != nil {
		go searchService.ReindexAll(context.Background(), pgfts)
	}

	var limiter ratelimit.Limiter
	if strings.TrimSpace(cfg.RedisURL) != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		limiter = ratelimit.NewRedis(client, cfg.SharePasswordAttempts, cfg.SharePasswordWindow)
		logger.Info("using redis for share password attempt limiting")
	}

	var archive export.Archive
	if cfg.MinIOConfigured() {
		minioArchive, err := export.NewMinIOArchive(ctx, export.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		})
		if err != nil {
			logger.Warnw("export archive disabled", "error", err)
		} else {
			archive = minioArchive
		}
	}

	deps := app.Dependencies{
		Limiter:  limiter,
		Search:   searchService,
		Exporter: export.NewService(cfg.ExportChromePath, archive),
	}
	if cfg.SMTPConfigured() {
		deps.Mailer = email.NewService(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		})
	}

	var service *app.Service
	if pg != nil {
		service = app.New(cfg, pg, deps)
	} else {
		service = app.New(cfg, mem, deps)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.RegisterCollectors(registry)
	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, metricsHandler)
	if err := httpServer.TrustProxies(cfg.TrustedProxies); err != nil {
		return fmt.Errorf("parse TRUSTED_PROXIES: %w", err)
	}
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("lexdraft api listening", "addr", cfg.Addr, "store", cfg.StoreDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logger.Infow("shutting down", "signal", sig.String())
	case err, ok := <-errCh:
		if ok && err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
