package scenario

import "fmt"

// MaintenanceItem is one serviceable part with its service interval and the
// mileage at which it was last serviced.
type MaintenanceItem struct {
	Name          string
	IntervalKm    float64
	LastServiceKm float64
}

// DefaultSchedule is the stock maintenance book for the test vehicle.
var DefaultSchedule = []MaintenanceItem{
	{Name: "Oil Change", IntervalKm: 5000, LastServiceKm: 43000},
	{Name: "Spark Plugs", IntervalKm: 50000, LastServiceKm: 30000},
	{Name: "Air Filter", IntervalKm: 20000, LastServiceKm: 40000},
	{Name: "Coolant Flush", IntervalKm: 40000, LastServiceKm: 35000},
	{Name: "Timing Belt", IntervalKm: 100000, LastServiceKm: 50000},
}

// MaintenancePrediction is the remaining distance before one item is due.
type MaintenancePrediction struct {
	Item        string  `json:"item"`
	RemainingKm float64 `json:"remaining_km"`
	DueSoon     bool    `json:"due_soon"`
}

// PredictMaintenance computes the remaining distance for every item in the
// schedule at the given mileage. An item is due soon when 20% or less of its
// interval remains.
func PredictMaintenance(mileage float64, schedule []MaintenanceItem) []MaintenancePrediction {
	predictions := make([]MaintenancePrediction, 0, len(schedule))
	for _, item := range schedule {
		sinceService := mileage - item.LastServiceKm
		remaining := item.IntervalKm - sinceService
		predictions = append(predictions, MaintenancePrediction{
			Item:        item.Name,
			RemainingKm: remaining,
			DueSoon:     remaining <= item.IntervalKm*0.2,
		})
	}
	return predictions
}

// String renders the prediction as a single report line.
func (p MaintenancePrediction) String() string {
	status := "ok"
	if p.DueSoon {
		status = "due soon"
	}
	return fmt.Sprintf("%-20s due in %8.0f km (%s)", p.Item, p.RemainingKm, status)
}
