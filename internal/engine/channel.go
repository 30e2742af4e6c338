package engine

import (
	"math"
	"math/rand"
	"time"

	"github.com/afroash/engine-twin/internal/models"
)

// Channel holds one physical quantity of the simulated engine: its current
// pre-noise value, admissible bounds, and read-out noise amplitude.
type Channel struct {
	name  string
	value float64
	min   float64
	max   float64
	noise float64
}

// NewChannel creates a channel with an initial value, bounds, and noise amplitude.
func NewChannel(name string, value, min, max, noise float64) *Channel {
	return &Channel{
		name:  name,
		value: value,
		min:   min,
		max:   max,
		noise: noise,
	}
}

// Read produces a noisy bounded reading of the channel. A uniform
// perturbation in [-noise, +noise] is added to the stored value, the result
// is clamped to [min, max] and rounded to 2 decimals. The stored value is
// untouched; each read draws fresh noise.
func (c *Channel) Read(rng *rand.Rand) models.Reading {
	jitter := (rng.Float64()*2 - 1) * c.noise
	value := clamp(c.value+jitter, c.min, c.max)
	return models.Reading{
		Command:   c.name,
		Value:     math.Round(value*100) / 100,
		Unit:      models.UnitFor(c.name),
		Timestamp: models.NewLocalTime(time.Now()),
	}
}

// Name returns the channel identifier.
func (c *Channel) Name() string {
	return c.name
}

// Value returns the stored pre-noise value.
func (c *Channel) Value() float64 {
	return c.value
}

// Set overwrites the stored value. Bounds apply on the read path, not here.
func (c *Channel) Set(value float64) {
	c.value = value
}

// Bounds returns the admissible [min, max] range for readings.
func (c *Channel) Bounds() (min, max float64) {
	return c.min, c.max
}

// Noise returns the read-out noise amplitude.
func (c *Channel) Noise() float64 {
	return c.noise
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
