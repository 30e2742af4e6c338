package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/afroash/engine-twin/internal/config"
	"github.com/afroash/engine-twin/internal/server"
	"github.com/afroash/engine-twin/internal/storage"

	"github.com/rs/zerolog"
)

const version = "v0.2.0"

// persistence bundles the optional SQLite layer. All fields are nil
// when the database is disabled in config.
type persistence struct {
	store   *storage.SQLiteStore
	writer  *storage.DBWriter
	cleaner *storage.RetentionCleaner
}

func main() {
	configPath := flag.String("config", "configs/server.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadAppConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := newLogger(cfg.Logging)
	logger.Info().
		Str("version", version).
		Int("port", cfg.Server.Port).
		Msg("Starting engine twin consumer")

	store := server.NewMemoryStore(cfg.Storage.BufferSize)

	var db persistence
	if cfg.Database.Enabled {
		db = openPersistence(cfg.Database, logger)
	}

	wsHandler := server.NewHandler(
		cfg.Server.AuthToken,
		store,
		logger,
		cfg.Server.AllowedOrigins...,
	)
	if db.writer != nil {
		wsHandler.SetDBWriter(db.writer)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      routes(store, db.store, wsHandler, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("Listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Shutting down")
	db.close(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Shutdown error")
	}
	logger.Info().Msg("Stopped")
}

// openPersistence opens the SQLite store and starts the async writer
// and retention cleaner around it.
func openPersistence(cfg config.DatabaseSettings, logger zerolog.Logger) persistence {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	store, err := storage.NewSQLiteStore(cfg.Path, logger)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}

	writer := storage.NewDBWriter(store, storage.DBWriterConfig{
		BatchSize:   cfg.BatchSize,
		FlushPeriod: cfg.FlushPeriod,
		ChannelSize: cfg.ChannelSize,
	}, logger)

	cleaner := storage.NewRetentionCleaner(store, storage.RetentionCleanerConfig{
		RetentionDays: cfg.RetentionDays,
		CleanupPeriod: cfg.CleanupPeriod,
	}, logger)

	return persistence{store: store, writer: writer, cleaner: cleaner}
}

// close stops the writer first so its final flush still has a live store
func (p persistence) close(logger zerolog.Logger) {
	if p.writer != nil {
		p.writer.Stop()
		logger.Info().Msg("Snapshot writer stopped")
	}
	if p.cleaner != nil {
		p.cleaner.Stop()
		logger.Info().Msg("Retention cleaner stopped")
	}
	if p.store != nil {
		p.store.Close()
		logger.Info().Msg("Database closed")
	}
}

func routes(store *server.MemoryStore, history *storage.SQLiteStore, ws *server.Handler, logger zerolog.Logger) *http.ServeMux {
	var api *server.APIHandler
	if history != nil {
		api = server.NewAPIHandlerWithHistory(store, history, logger)
	} else {
		api = server.NewAPIHandler(store, logger)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/current", api.HandleCurrent)
	mux.HandleFunc("/api/history", api.HandleHistory)
	mux.HandleFunc("/api/stats", api.HandleStats)
	mux.HandleFunc("/api/vehicles", api.HandleVehicles)
	mux.HandleFunc("/api/vehicle-health", api.HandleHealth)
	mux.HandleFunc("/api/maintenance", api.HandleMaintenance)
	mux.HandleFunc("/api/channel-stats", api.HandleChannelStats)
	mux.HandleFunc("/api/archive", api.HandleArchive)
	mux.HandleFunc("/api/dashboard-data", api.HandleDashboardData)

	mux.HandleFunc("/twin-stream", ws.ServeHTTP)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","version":"%s"}`, version)
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(store.Stats())
	})

	return mux
}

// newLogger builds the process logger from the logging config
func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout})
	} else {
		logger = zerolog.New(os.Stdout)
	}

	return logger.With().Timestamp().Logger().Level(level)
}
