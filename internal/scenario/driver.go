package scenario

import (
	"context"
	"time"

	"github.com/afroash/engine-twin/internal/engine"
	"github.com/afroash/engine-twin/internal/models"
	"github.com/rs/zerolog"
)

// Config holds the scripted suite's durations, in ticks.
type Config struct {
	IdleTicks         int
	AccelerationTicks int
	CruiseTicks       int
	HighLoadTicks     int
	TickInterval      time.Duration
}

// DefaultConfig returns the stock suite: 5s idle, 10s acceleration,
// 10s cruise, 8s high load, one tick per second.
func DefaultConfig() Config {
	return Config{
		IdleTicks:         5,
		AccelerationTicks: 10,
		CruiseTicks:       10,
		HighLoadTicks:     8,
		TickInterval:      time.Second,
	}
}

// Sample is one published read-out: the snapshot plus the mileage at the
// moment it was recorded. Consumers get everything they need from the
// sample and never touch the live model, which only the driver may read.
type Sample struct {
	Snapshot models.Snapshot
	Mileage  float64
}

// Driver sequences control inputs over time, reads the model, and keeps the
// append-only history of snapshots. The driver is the model's clock: the
// interval may be zero for as-fast-as-possible runs.
type Driver struct {
	model     *engine.Model
	config    Config
	history   []models.Snapshot
	logger    zerolog.Logger
	snapshots chan Sample
}

// NewDriver creates a driver for the given model.
func NewDriver(model *engine.Model, config Config, logger zerolog.Logger) *Driver {
	return &Driver{
		model:     model,
		config:    config,
		logger:    logger,
		snapshots: make(chan Sample, 64),
	}
}

// Model returns the driven model.
func (d *Driver) Model() *engine.Model {
	return d.model
}

// History returns the snapshots accumulated so far, oldest first. The
// history survives a cancelled run for partial export.
func (d *Driver) History() []models.Snapshot {
	return d.history
}

// Snapshots returns the channel where samples are published as they are
// recorded. Samples are dropped, not blocked on, when no consumer keeps up.
func (d *Driver) Snapshots() <-chan Sample {
	return d.snapshots
}

// record reads all channels, appends to history, and publishes the sample.
func (d *Driver) record() models.Snapshot {
	snap := d.model.ReadAll()
	d.history = append(d.history, snap)
	select {
	case d.snapshots <- Sample{Snapshot: snap, Mileage: d.model.Mileage()}:
	default:
	}
	return snap
}

// wait sleeps one tick interval, or returns early on cancellation.
func (d *Driver) wait(ctx context.Context) error {
	if d.config.TickInterval <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d.config.TickInterval):
		return nil
	}
}

// RunIdle lets the engine settle at zero throttle and samples it.
func (d *Driver) RunIdle(ctx context.Context, ticks int) error {
	d.logger.Info().Int("ticks", ticks).Msg("Scenario: idle engine")

	d.model.SetThrottle(0)
	for i := 0; i < ticks; i++ {
		snap := d.record()
		d.logger.Info().
			Int("second", i+1).
			Float64("rpm", snap[models.ChannelRPM].Value).
			Float64("coolant_temp", snap[models.ChannelCoolantTemp].Value).
			Msg("Idle tick")
		if err := d.wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// RunAcceleration ramps the throttle up 10% per tick, capped at 100.
func (d *Driver) RunAcceleration(ctx context.Context, ticks int) error {
	d.logger.Info().Int("ticks", ticks).Msg("Scenario: acceleration")

	for i := 0; i < ticks; i++ {
		throttle := float64(i * 10)
		if throttle > 100 {
			throttle = 100
		}
		d.model.SetThrottle(throttle)
		snap := d.record()
		d.logger.Info().
			Int("second", i+1).
			Float64("throttle", throttle).
			Float64("rpm", snap[models.ChannelRPM].Value).
			Float64("speed", snap[models.ChannelSpeed].Value).
			Msg("Acceleration tick")
		if err := d.wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// RunCruise holds throttle 50 in fifth gear and samples the steady state.
func (d *Driver) RunCruise(ctx context.Context, ticks int) error {
	d.logger.Info().Int("ticks", ticks).Msg("Scenario: steady cruise")

	d.model.SetThrottle(50)
	d.model.SetGear(5)
	for i := 0; i < ticks; i++ {
		snap := d.record()
		d.logger.Info().
			Int("second", i+1).
			Float64("speed", snap[models.ChannelSpeed].Value).
			Float64("coolant_temp", snap[models.ChannelCoolantTemp].Value).
			Float64("fuel_rate", snap[models.ChannelFuelRate].Value).
			Msg("Cruise tick")
		if err := d.wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// RunHighLoad stresses the engine at throttle 90 in third gear, warning on
// high temperature or RPM readings.
func (d *Driver) RunHighLoad(ctx context.Context, ticks int) error {
	d.logger.Info().Int("ticks", ticks).Msg("Scenario: high load")

	d.model.SetThrottle(90)
	d.model.SetGear(3)
	for i := 0; i < ticks; i++ {
		snap := d.record()

		highTemp := snap[models.ChannelCoolantTemp].Value > 100
		highRPM := snap[models.ChannelRPM].Value > 6000

		event := d.logger.Info()
		if highTemp || highRPM {
			event = d.logger.Warn().Bool("high_temp", highTemp).Bool("high_rpm", highRPM)
		}
		event.
			Int("second", i+1).
			Float64("load", snap[models.ChannelEngineLoad].Value).
			Float64("coolant_temp", snap[models.ChannelCoolantTemp].Value).
			Msg("High load tick")

		if err := d.wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// RunSuite runs the four scripted scenarios back to back. On cancellation
// the accumulated history is preserved for partial export.
func (d *Driver) RunSuite(ctx context.Context) error {
	if err := d.RunIdle(ctx, d.config.IdleTicks); err != nil {
		return err
	}
	if err := d.RunAcceleration(ctx, d.config.AccelerationTicks); err != nil {
		return err
	}
	if err := d.RunCruise(ctx, d.config.CruiseTicks); err != nil {
		return err
	}
	if err := d.RunHighLoad(ctx, d.config.HighLoadTicks); err != nil {
		return err
	}
	d.logger.Info().Int("snapshots", len(d.history)).Msg("Test suite complete")
	return nil
}
