package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimeLayout is how reading timestamps appear on the wire: local time,
// microsecond precision, no zone offset.
const TimeLayout = "2006-01-02T15:04:05.999999"

// LocalTime wraps time.Time to serialize in the TimeLayout wire format.
type LocalTime struct {
	time.Time
}

// NewLocalTime wraps a time.Time for wire serialization.
func NewLocalTime(t time.Time) LocalTime {
	return LocalTime{Time: t}
}

func (lt LocalTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(lt.Format(TimeLayout))
}

func (lt *LocalTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	t, err := time.ParseInLocation(TimeLayout, s, time.Local)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	lt.Time = t
	return nil
}

// Reading is a single time-stamped, unit-labeled channel value.
type Reading struct {
	Command   string    `json:"command"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	Timestamp LocalTime `json:"timestamp"`
}

// NewReading creates a Reading with the current timestamp and the unit
// looked up from the channel identifier.
func NewReading(command string, value float64) Reading {
	return Reading{
		Command:   command,
		Value:     value,
		Unit:      UnitFor(command),
		Timestamp: NewLocalTime(time.Now()),
	}
}

// IsValid checks that the reading names a known channel and carries a timestamp.
func (r *Reading) IsValid() bool {
	if !IsKnownChannel(r.Command) {
		return false
	}
	if r.Timestamp.IsZero() {
		return false
	}
	return true
}

// get the reading as a string
func (r *Reading) String() string {
	return fmt.Sprintf("%s: %.2f %s @ %s",
		r.Command,
		r.Value,
		r.Unit,
		r.Timestamp.Format(TimeLayout))
}

// Snapshot is one tick's worth of readings, keyed by channel identifier.
type Snapshot map[string]Reading

// IsValid reports whether every reading in the snapshot is valid.
func (s Snapshot) IsValid() bool {
	if len(s) == 0 {
		return false
	}
	for _, r := range s {
		if !r.IsValid() {
			return false
		}
	}
	return true
}

// Copy returns a shallow copy of the snapshot.
func (s Snapshot) Copy() Snapshot {
	if s == nil {
		return nil
	}
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
