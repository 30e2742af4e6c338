package engine

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/afroash/engine-twin/internal/models"
)

// Seed constants for a plausible idling car.
const (
	initialThrottle = 0.0
	initialGear     = 3
	initialMileage  = 45230.0

	idleRPM        = 800.0
	rpmPerThrottle = 50.0
)

// gearRatios maps gear number to transmission ratio. Index 0 is unused.
var gearRatios = [...]float64{0, 3.5, 2.5, 1.8, 1.3, 1.0, 0.8}

// Model is the engine state: ten coupled sensor channels plus control
// inputs (throttle, gear) and accumulated mileage. Every control-input call
// advances all channels one step; there is no independent tick.
//
// The model is single-threaded by contract. Callers that share one across
// goroutines must serialize access themselves.
type Model struct {
	channels map[string]*Channel
	throttle float64
	gear     int
	mileage  float64
	rng      *rand.Rand
}

// NewModel creates a model in the idle state with time-seeded read-out noise.
func NewModel() *Model {
	return NewModelSeeded(time.Now().UnixNano())
}

// NewModelSeeded creates a model whose read-out noise draws from the given
// seed, so tests can exercise the read path deterministically.
func NewModelSeeded(seed int64) *Model {
	return &Model{
		channels: map[string]*Channel{
			models.ChannelRPM:         NewChannel(models.ChannelRPM, 800, 0, 7000, 50),
			models.ChannelSpeed:       NewChannel(models.ChannelSpeed, 0, 0, 200, 2),
			models.ChannelCoolantTemp: NewChannel(models.ChannelCoolantTemp, 85, 60, 120, 1),
			models.ChannelEngineLoad:  NewChannel(models.ChannelEngineLoad, 20, 0, 100, 2),
			models.ChannelThrottlePos: NewChannel(models.ChannelThrottlePos, 15, 0, 100, 1),
			models.ChannelIntakeTemp:  NewChannel(models.ChannelIntakeTemp, 25, 20, 80, 0.5),
			models.ChannelMAF:         NewChannel(models.ChannelMAF, 5, 0, 200, 0.5),
			models.ChannelFuelRate:    NewChannel(models.ChannelFuelRate, 0.8, 0, 20, 0.1),
			models.ChannelOilTemp:     NewChannel(models.ChannelOilTemp, 80, 60, 120, 1),
			models.ChannelOilPressure: NewChannel(models.ChannelOilPressure, 40, 15, 80, 2),
		},
		throttle: initialThrottle,
		gear:     initialGear,
		mileage:  initialMileage,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// SetThrottle clamps the throttle to [0, 100], stores it, and advances all
// channels one step. Out-of-range input is clamped, never rejected.
func (m *Model) SetThrottle(throttle float64) {
	m.throttle = clamp(throttle, 0, 100)
	m.step()
}

// SetGear clamps the gear to [1, 6], stores it, and advances all channels one step.
func (m *Model) SetGear(gear int) {
	if gear < 1 {
		gear = 1
	} else if gear > 6 {
		gear = 6
	}
	m.gear = gear
	m.step()
}

// step recomputes every channel from the current control inputs. It is
// deterministic; noise belongs to the read path only. Stored values are not
// clamped here, only readings are.
func (m *Model) step() {
	rpm := m.channels[models.ChannelRPM]
	targetRPM := idleRPM + m.throttle*rpmPerThrottle
	rpm.value += (targetRPM - rpm.value) * 0.1

	speed := rpm.value * gearRatios[m.gear] / 60
	m.channels[models.ChannelSpeed].value = speed

	m.channels[models.ChannelEngineLoad].value = m.throttle * 0.7

	coolant := m.channels[models.ChannelCoolantTemp]
	heatGen := (rpm.value/1000)*0.2 + m.throttle*0.05
	cooling := (coolant.value - 85) * 0.1
	coolant.value += heatGen - cooling

	oilTemp := m.channels[models.ChannelOilTemp]
	oilTemp.value += (coolant.value - oilTemp.value) * 0.05

	basePressure := (rpm.value/1000)*8 + 20
	tempFactor := clamp(1-(oilTemp.value-80)/200, 0.5, 1.5)
	m.channels[models.ChannelOilPressure].value = basePressure * tempFactor

	m.channels[models.ChannelFuelRate].value = (m.throttle/100)*12 + (rpm.value/1000)*0.8

	if speed > 0 {
		m.mileage += speed / 3600
	}
}

// ReadAll reads every channel with fresh noise and returns the snapshot.
// It does not advance state.
func (m *Model) ReadAll() models.Snapshot {
	snap := make(models.Snapshot, len(m.channels))
	for name, ch := range m.channels {
		snap[name] = ch.Read(m.rng)
	}
	return snap
}

// Channel returns the named channel, or nil when unknown. Callers may use
// it to override initial values before driving the model.
func (m *Model) Channel(name string) *Channel {
	return m.channels[name]
}

// Throttle returns the stored throttle position (0-100).
func (m *Model) Throttle() float64 {
	return m.throttle
}

// Gear returns the stored gear (1-6).
func (m *Model) Gear() int {
	return m.gear
}

// Mileage returns the accumulated mileage in km.
func (m *Model) Mileage() float64 {
	return m.mileage
}

// StatusSummary renders the current state as a human-readable text block.
// Pure read, no mutation and no noise.
func (m *Model) StatusSummary() string {
	rpm := m.channels[models.ChannelRPM].Value()
	speed := m.channels[models.ChannelSpeed].Value()
	temp := m.channels[models.ChannelCoolantTemp].Value()
	oilPressure := m.channels[models.ChannelOilPressure].Value()

	return fmt.Sprintf(`
╔═══════════════════════════════════════════════════╗
║          VIRTUAL CAR STATUS                       ║
╠═══════════════════════════════════════════════════╣
║ RPM:           %6.0f rpm                         ║
║ Speed:         %6.1f km/h                        ║
║ Coolant Temp:  %6.1f °C                          ║
║ Oil Pressure:  %6.1f psi                         ║
║ Throttle:      %6.1f %%                           ║
║ Gear:          %6d                              ║
║ Mileage:       %6.1f km                          ║
╚═══════════════════════════════════════════════════╝
`, rpm, speed, temp, oilPressure, m.throttle, m.gear, m.mileage)
}
