package scenario

import (
	"math"
	"testing"
)

func TestPredictMaintenance_DefaultSchedule(t *testing.T) {
	predictions := PredictMaintenance(45230.0, DefaultSchedule)

	if len(predictions) != len(DefaultSchedule) {
		t.Fatalf("len(predictions) = %d, want %d", len(predictions), len(DefaultSchedule))
	}

	// Oil change: interval 5000, last at 43000 -> 2230 km since, 2770 remaining
	oil := predictions[0]
	if oil.Item != "Oil Change" {
		t.Errorf("Item = %q, want Oil Change", oil.Item)
	}
	if math.Abs(oil.RemainingKm-2770) > 1e-9 {
		t.Errorf("RemainingKm = %v, want 2770", oil.RemainingKm)
	}
	if oil.DueSoon {
		t.Error("oil change should not be due soon at 45230 km")
	}
}

func TestPredictMaintenance_DueSoon(t *testing.T) {
	schedule := []MaintenanceItem{
		{Name: "Oil Change", IntervalKm: 5000, LastServiceKm: 43000},
	}

	tests := []struct {
		name    string
		mileage float64
		dueSoon bool
	}{
		{"well before due", 44000, false},
		{"exactly at 20% remaining", 47000, true},
		{"just past due threshold", 47001, true},
		{"overdue", 49000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			predictions := PredictMaintenance(tt.mileage, schedule)
			if predictions[0].DueSoon != tt.dueSoon {
				t.Errorf("DueSoon = %v, want %v (remaining %v)",
					predictions[0].DueSoon, tt.dueSoon, predictions[0].RemainingKm)
			}
		})
	}
}

func TestPredictMaintenance_OverdueIsNegative(t *testing.T) {
	schedule := []MaintenanceItem{
		{Name: "Air Filter", IntervalKm: 20000, LastServiceKm: 40000},
	}

	predictions := PredictMaintenance(61000, schedule)
	if predictions[0].RemainingKm >= 0 {
		t.Errorf("RemainingKm = %v, want negative for overdue item", predictions[0].RemainingKm)
	}
	if !predictions[0].DueSoon {
		t.Error("overdue item should be flagged due soon")
	}
}
