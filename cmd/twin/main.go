package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/afroash/engine-twin/internal/client"
	"github.com/afroash/engine-twin/internal/config"
	"github.com/afroash/engine-twin/internal/engine"
	"github.com/afroash/engine-twin/internal/export"
	"github.com/afroash/engine-twin/internal/models"
	"github.com/afroash/engine-twin/internal/scenario"

	"github.com/rs/zerolog"
)

const version = "v0.2.0"

func main() {
	configPath := flag.String("config", "configs/twin.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := newLogger(cfg.Logging)

	logger.Info().
		Str("version", version).
		Str("vehicle_id", cfg.Vehicle.ID).
		Msg("Starting Engine Twin")

	var model *engine.Model
	if cfg.Vehicle.Seed != 0 {
		model = engine.NewModelSeeded(cfg.Vehicle.Seed)
	} else {
		model = engine.NewModel()
	}

	driver := scenario.NewDriver(model, scenario.Config{
		IdleTicks:         cfg.Scenario.IdleTicks,
		AccelerationTicks: cfg.Scenario.AccelerationTicks,
		CruiseTicks:       cfg.Scenario.CruiseTicks,
		HighLoadTicks:     cfg.Scenario.HighLoadTicks,
		TickInterval:      cfg.Scenario.TickInterval,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var conn *client.Connection
	if cfg.Stream.Enabled {
		conn = startStreaming(ctx, cfg, driver, logger)
	}

	err = driver.RunSuite(ctx)
	switch {
	case err == nil:
		logger.Info().Int("snapshots", len(driver.History())).Msg("Test suite completed")
	case errors.Is(err, context.Canceled):
		logger.Warn().Int("snapshots", len(driver.History())).Msg("Test suite interrupted, exporting partial data")
	default:
		logger.Fatal().Err(err).Msg("Test suite failed")
	}

	fmt.Println(model.StatusSummary())

	if report, err := scenario.AnalyzeHealth(driver.History()); err == nil {
		fmt.Println(report)
	} else {
		logger.Warn().Err(err).Msg("Health analysis skipped")
	}

	fmt.Println("Maintenance predictions:")
	for _, p := range scenario.PredictMaintenance(model.Mileage(), scenario.DefaultSchedule) {
		fmt.Printf("  %s\n", p)
	}

	doc := export.NewDocument(cfg.Vehicle.ID, model.Mileage(), driver.History())
	if err := doc.Write(cfg.Export.Path); err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Export.Path).Msg("Export failed")
	}
	logger.Info().
		Str("path", cfg.Export.Path).
		Int("snapshots", len(driver.History())).
		Msg("Test data exported")

	if conn != nil {
		conn.Close()
	}
}

// startStreaming wires the driver's sample feed to the remote consumer.
// Snapshots produced while disconnected are buffered and flushed as a
// batch on reconnect. Mileage comes from the samples; the live model
// belongs to the driver goroutine and is never read here.
func startStreaming(ctx context.Context, cfg *config.Config, driver *scenario.Driver, logger zerolog.Logger) *client.Connection {
	vehicleInfo := models.NewVehicleInfo(cfg.Vehicle.ID, cfg.Vehicle.Model, version)

	conn := client.NewConnection(client.ConnectionConfig{
		URL:                  cfg.Stream.URL,
		AuthToken:            cfg.Stream.AuthToken,
		ConnectTimeout:       cfg.Stream.ConnectTimeout,
		ReconnectInterval:    cfg.Stream.ReconnectInterval,
		MaxReconnectInterval: cfg.Stream.MaxReconnectInterval,
		PingInterval:         cfg.Stream.PingInterval,
		PongTimeout:          cfg.Stream.PongTimeout,
	}, vehicleInfo, logger)

	buffer := client.NewSnapshotBuffer(cfg.Stream.BufferSize, cfg.Stream.DropOldest)

	go func() {
		if err := conn.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("Connection loop ended")
		}
	}()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sample, ok := <-driver.Snapshots():
				if !ok {
					return
				}
				if !conn.IsConnected() {
					buffer.Push(sample.Snapshot)
					continue
				}
				// Flush anything buffered while offline first
				if !buffer.IsEmpty() {
					batch := buffer.PopBatch(buffer.Size())
					if err := conn.SendBatch(batch, sample.Mileage); err != nil {
						logger.Warn().Err(err).Int("count", len(batch)).Msg("Batch send failed, rebuffering")
						for _, s := range batch {
							buffer.Push(s)
						}
					}
				}
				if err := conn.SendSnapshot(sample.Snapshot, sample.Mileage); err != nil {
					logger.Warn().Err(err).Msg("Snapshot send failed, buffering")
					buffer.Push(sample.Snapshot)
				}
			}
		}
	}()

	return conn
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
