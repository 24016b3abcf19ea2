// Oasis Server
//
// Features:
// - Directory listing, keyword search and byte-range delivery under one root
// - Signed, expiring share links that need no account
// - JWT sessions backed by configured users, PostgreSQL or OIDC
// - Prometheus metrics & structured logging (zap)
// - Per-user and per-IP rate limiting
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Fabeuss/oasis/internal/api"
	"github.com/Fabeuss/oasis/internal/auth"
	"github.com/Fabeuss/oasis/internal/config"
	"github.com/Fabeuss/oasis/internal/logging"
	"github.com/Fabeuss/oasis/internal/metadata/postgres"
	"github.com/Fabeuss/oasis/internal/metrics"
	"github.com/Fabeuss/oasis/internal/quota"
	"github.com/Fabeuss/oasis/internal/sharing"
	"github.com/Fabeuss/oasis/internal/storage"
)

func main() {
	configPath := flag.String("config", os.Getenv("OASIS_CONFIG"), "path to the YAML configuration file")
	printConfig := flag.Bool("print-config", false, "print the effective configuration with secrets masked and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		// Can't use structured logging yet
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}

	if *printConfig {
		out, err := yaml.Marshal(cfg.Redacted())
		if err != nil {
			fmt.Fprintln(os.Stderr, "print config:", err)
			os.Exit(1)
		}
		os.Stdout.Write(out)
		return
	}

	// Initialize structured logging
	if err := logging.Init(logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.Output,
	}); err != nil {
		fmt.Fprintln(os.Stderr, "logging init error:", err)
		os.Exit(1)
	}
	defer logging.Sync()

	logging.Info("Oasis Server starting...",
		zap.String("site", cfg.Storage.SiteName),
		zap.String("listen", cfg.Server.ListenAddr),
		zap.String("metrics", cfg.Server.MetricsAddr))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage root
	root, err := storage.NewRoot(cfg.Storage.Root)
	if err != nil {
		logging.Fatal("storage root unusable", zap.Error(err))
	}
	logging.Debug("storage root resolved", zap.String("root", root.Path()))

	// Share links
	shares, err := sharing.NewAuthority([]byte(cfg.Sharing.Secret), sharing.WithMaxTTL(cfg.Sharing.MaxTTL))
	if err != nil {
		logging.Fatal("share link authority init failed", zap.Error(err))
	}

	// Accounts: configured users first, then the database if one is set
	var users auth.ChainUsers
	static := auth.NewStaticUsers(cfg.Auth.Users)
	if static.Len() > 0 {
		users = append(users, static)
	}

	var metaStore *postgres.Store
	if cfg.Auth.DatabaseURL != "" {
		logging.Info("connecting to PostgreSQL...")
		metaStore, err = postgres.New(ctx, cfg.Auth.DatabaseURL)
		if err != nil {
			logging.Fatal("database connection failed", zap.Error(err))
		}
		defer metaStore.Close()

		if err := metaStore.Migrate(ctx); err != nil {
			logging.Fatal("migration failed", zap.Error(err))
		}
		if err := metaStore.EnsureDefaultAdmin(ctx, cfg.Auth.AdminPassword); err != nil {
			logging.Error("failed to ensure default admin", zap.Error(err))
		}
		users = append(users, metaStore)
	}
	logging.Info("user stores initialized",
		zap.Int("static_users", static.Len()),
		zap.Bool("database", metaStore != nil))

	authHandler := auth.New(users, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	// Initialize OIDC provider (optional)
	oidcProvider, err := auth.NewOIDCProvider(ctx, cfg.OIDC)
	if err != nil {
		logging.Fatal("OIDC provider init failed", zap.Error(err))
	}
	if oidcProvider != nil {
		authHandler.SetOIDCProvider(oidcProvider)
		logging.Info("OIDC enabled", zap.String("issuer", cfg.OIDC.IssuerURL))
	}

	// Rate limiters
	userLimiter := quota.NewRateLimiter(cfg.Limits.RequestsPerMinute)
	publicLimiter := quota.NewRateLimiter(cfg.Limits.ShareRequestsPerMinute)

	// Create API server
	srv := api.NewServer(root, shares, authHandler, cfg.Storage.SiteName, userLimiter, publicLimiter)

	// Start metrics server
	var metricsServer *http.Server
	if cfg.Server.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:              cfg.Server.MetricsAddr,
			Handler:           metrics.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logging.Info("metrics server listening", zap.String("addr", cfg.Server.MetricsAddr))
			if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				logging.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if cfg.TLSEnabled() {
		httpServer.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS13,
		}
	}

	// Periodic housekeeping
	go func() {
		metricsTicker := time.NewTicker(15 * time.Second)
		cleanupTicker := time.NewTicker(time.Hour)
		defer metricsTicker.Stop()
		defer cleanupTicker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-metricsTicker.C:
				if metaStore != nil {
					metaStore.UpdateConnectionMetrics()
				}
			case <-cleanupTicker.C:
				n := userLimiter.Cleanup(24*time.Hour) + publicLimiter.Cleanup(24*time.Hour)
				if n > 0 {
					logging.Debug("rate limiter buckets dropped", zap.Int("count", n))
				}
			}
		}
	}()

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		logging.Info("shutting down...", logging.Duration("timeout", cfg.Server.ShutdownTimeout))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logging.Warn("forced shutdown", zap.Error(err))
			httpServer.Close()
		}
		if metricsServer != nil {
			metricsServer.Shutdown(shutdownCtx)
		}
	}()

	if cfg.TLSEnabled() {
		logging.Info("server listening (TLS 1.3)",
			zap.String("addr", cfg.Server.ListenAddr),
			zap.String("cert", cfg.Server.TLSCertFile))
		err = httpServer.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
	} else {
		logging.Info("server listening (HTTP)", zap.String("addr", cfg.Server.ListenAddr))
		err = httpServer.ListenAndServe()
	}
	if !errors.Is(err, http.ErrServerClosed) {
		logging.Fatal("server error", zap.Error(err))
	}
	<-done
	logging.Info("server stopped")
}
