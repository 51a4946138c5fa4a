package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backupcontrol/internal/analysis"
	"backupcontrol/internal/api"
	"backupcontrol/internal/config"
	"backupcontrol/internal/dashboard"
	"backupcontrol/internal/logger"
	"backupcontrol/internal/server"
	"backupcontrol/internal/session"
	"backupcontrol/internal/store"
	"backupcontrol/internal/tray"

	"go.uber.org/zap"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config/local.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting backup control agent",
		zap.String("env", cfg.Env),
		zap.String("config_path", *configPath),
	)

	// Initialize local storage
	db, err := store.Open(cfg.StoragePath, log.Logger)
	if err != nil {
		log.Fatal("Failed to open local storage", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Failed to close local storage", zap.Error(err))
		}
	}()

	installID, err := db.InstallID()
	if err != nil {
		log.Fatal("Failed to resolve install ID", zap.Error(err))
	}
	log.Info("Resolved install ID", zap.String("install_id", installID))

	// Restore the session, if any survived the last run
	sess, err := session.New(db, log.Logger)
	if err != nil {
		log.Fatal("Failed to restore session", zap.Error(err))
	}
	if sess.Authenticated() {
		log.Info("Restored persisted session")
	} else {
		log.Info("No persisted session, login required")
	}

	// Initialize backend client
	apiClient := api.NewClient(
		cfg.Backend.BaseURL,
		sess,
		time.Duration(cfg.Backend.Timeout)*time.Second,
		time.Duration(cfg.Backend.AnalysisTimeout)*time.Second,
		log.Logger,
	)
	apiClient.SetUnauthorizedHandler(func() {
		log.Warn("Session rejected by backend, login required")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start the dashboard collector
	collector := dashboard.New(
		apiClient,
		db,
		time.Duration(cfg.Dashboard.RefreshInterval)*time.Second,
		cfg.Dashboard.RecentEvents,
		cfg.Dashboard.TrendDays,
		log.Logger,
	)
	collector.Start(ctx)

	// Analysis monitor for the email ingestion job
	monitor := analysis.NewMonitor(
		apiClient,
		time.Duration(cfg.Analysis.PollInterval)*time.Millisecond,
		log.Logger,
	)

	// Local view server
	var httpServer *http.Server
	var viewServer *server.Server
	localURL := fmt.Sprintf("http://localhost:%d", cfg.Server.Port)

	if cfg.Server.Enabled {
		viewServer = server.New(apiClient, collector, sess, monitor, collector, log.Logger)
		httpServer = &http.Server{
			Addr:         fmt.Sprintf("localhost:%d", cfg.Server.Port),
			Handler:      viewServer,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		go func() {
			log.Info("Starting view server", zap.String("address", httpServer.Addr))
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("View server error", zap.Error(err))
			}
		}()
	} else {
		log.Info("View server disabled in configuration")
	}

	// Optional tray indicator
	trayDone := make(chan struct{})
	if cfg.Tray.Enabled {
		indicator := tray.New(collector, collector, localURL, log.Logger)
		go func() {
			indicator.Run(ctx)
			close(trayDone)
		}()
	} else {
		close(trayDone)
	}

	log.Info("Backup control agent started",
		zap.String("backend_url", cfg.Backend.BaseURL),
		zap.String("local_url", localURL),
	)

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Info("Received shutdown signal", zap.String("signal", sig.String()))

	// Cancel the collector, the analysis poll loop and the tray
	cancel()

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("View server shutdown error", zap.Error(err))
		} else {
			log.Info("View server stopped")
		}
	}
	if viewServer != nil {
		viewServer.Close()
	}

	select {
	case <-trayDone:
	case <-time.After(3 * time.Second):
		log.Warn("Tray shutdown timeout reached, forcing exit")
		os.Exit(1)
	}

	log.Info("Backup control agent stopped")
	os.Exit(0)
}
