package scenario

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/afroash/engine-twin/internal/engine"
	"github.com/afroash/engine-twin/internal/models"
	"github.com/rs/zerolog"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.TickInterval = 0 // no wall-clock delay in tests
	return cfg
}

func TestDriver_RunSuite(t *testing.T) {
	model := engine.NewModelSeeded(1)
	driver := NewDriver(model, testConfig(), zerolog.Nop())

	err := driver.RunSuite(context.Background())
	if err != nil {
		t.Fatalf("RunSuite failed: %v", err)
	}

	wantTicks := 5 + 10 + 10 + 8
	history := driver.History()
	if len(history) != wantTicks {
		t.Errorf("len(history) = %d, want %d", len(history), wantTicks)
	}

	for i, snap := range history {
		if len(snap) != 10 {
			t.Errorf("snapshot %d has %d channels, want 10", i, len(snap))
		}
		if !snap.IsValid() {
			t.Errorf("snapshot %d is invalid", i)
		}
	}
}

func TestDriver_RunIdleSettlesRPM(t *testing.T) {
	model := engine.NewModelSeeded(1)
	// Start from a spun-up engine
	for i := 0; i < 10; i++ {
		model.SetThrottle(100)
	}
	driver := NewDriver(model, testConfig(), zerolog.Nop())

	if err := driver.RunIdle(context.Background(), 5); err != nil {
		t.Fatalf("RunIdle failed: %v", err)
	}

	if len(driver.History()) != 5 {
		t.Errorf("len(history) = %d, want 5", len(driver.History()))
	}

	// One zero-throttle tick must have pulled RPM toward idle
	rpm := model.Channel(models.ChannelRPM).Value()
	if rpm >= 5800 {
		t.Errorf("RPM = %v, want below the full-throttle plateau", rpm)
	}
}

func TestDriver_RunAccelerationRampsThrottle(t *testing.T) {
	model := engine.NewModelSeeded(1)
	driver := NewDriver(model, testConfig(), zerolog.Nop())

	if err := driver.RunAcceleration(context.Background(), 15); err != nil {
		t.Fatalf("RunAcceleration failed: %v", err)
	}

	// Ramp is i*10 capped at 100, so the final stored throttle is 100
	if model.Throttle() != 100 {
		t.Errorf("Throttle = %v, want 100", model.Throttle())
	}
}

func TestDriver_RunCruiseSetsGear(t *testing.T) {
	model := engine.NewModelSeeded(1)
	driver := NewDriver(model, testConfig(), zerolog.Nop())

	if err := driver.RunCruise(context.Background(), 3); err != nil {
		t.Fatalf("RunCruise failed: %v", err)
	}

	if model.Gear() != 5 {
		t.Errorf("Gear = %d, want 5", model.Gear())
	}
	if model.Throttle() != 50 {
		t.Errorf("Throttle = %v, want 50", model.Throttle())
	}
}

func TestDriver_CancellationKeepsHistory(t *testing.T) {
	model := engine.NewModelSeeded(1)
	cfg := testConfig()
	cfg.TickInterval = 10 * time.Millisecond
	driver := NewDriver(model, cfg, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(25 * time.Millisecond)
		cancel()
	}()

	err := driver.RunSuite(ctx)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}

	// Partial history must survive for export
	if len(driver.History()) == 0 {
		t.Error("history should not be empty after cancellation")
	}
	if len(driver.History()) >= 33 {
		t.Errorf("len(history) = %d, expected a partial run", len(driver.History()))
	}
}

// An overheating engine that is also over-revving must be flagged for both
// conditions on the same tick, not just whichever check runs first.
func TestDriver_HighLoadWarnsOnBothConditions(t *testing.T) {
	model := engine.NewModelSeeded(1)
	// Force both warning conditions before the scenario's first read.
	// RPM noise is ±50 and the throttle-90 steps pull toward 5300, so
	// 6500 stays above the 6000 threshold through the first tick.
	model.Channel(models.ChannelRPM).Set(6500)
	model.Channel(models.ChannelCoolantTemp).Set(115)

	var buf bytes.Buffer
	driver := NewDriver(model, testConfig(), zerolog.New(&buf))

	if err := driver.RunHighLoad(context.Background(), 1); err != nil {
		t.Fatalf("RunHighLoad failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, `"high_temp":true`) {
		t.Errorf("missing high_temp warning in output: %s", out)
	}
	if !strings.Contains(out, `"high_rpm":true`) {
		t.Errorf("missing high_rpm warning in output: %s", out)
	}
}

// A streaming consumer must be able to run off the sample feed alone while
// the driver mutates the model, so each sample carries its own mileage.
func TestDriver_SamplesCarryMileage(t *testing.T) {
	model := engine.NewModelSeeded(1)
	driver := NewDriver(model, testConfig(), zerolog.Nop())

	type result struct {
		samples  int
		mileages []float64
	}
	done := make(chan result)
	go func() {
		var r result
		for sample := range driver.Snapshots() {
			r.samples++
			r.mileages = append(r.mileages, sample.Mileage)
		}
		done <- r
	}()

	if err := driver.RunSuite(context.Background()); err != nil {
		t.Fatalf("RunSuite failed: %v", err)
	}
	close(driver.snapshots)
	r := <-done

	if r.samples == 0 {
		t.Fatal("no samples published")
	}
	prev := 45230.0
	for i, m := range r.mileages {
		if m < prev {
			t.Fatalf("sample %d mileage = %v, decreased from %v", i, m, prev)
		}
		prev = m
	}
	if prev <= 45230.0 {
		t.Error("mileage never advanced across the suite")
	}
}

func TestDriver_SnapshotsPublished(t *testing.T) {
	model := engine.NewModelSeeded(1)
	driver := NewDriver(model, testConfig(), zerolog.Nop())

	if err := driver.RunIdle(context.Background(), 3); err != nil {
		t.Fatalf("RunIdle failed: %v", err)
	}

	received := 0
	for {
		select {
		case <-driver.Snapshots():
			received++
		default:
			if received != 3 {
				t.Errorf("received %d snapshots, want 3", received)
			}
			return
		}
	}
}
