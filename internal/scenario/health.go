package scenario

import (
	"fmt"

	"github.com/afroash/engine-twin/internal/models"
)

// Failure risk levels derived from the overall health score.
const (
	RiskLow    = "LOW"
	RiskMedium = "MEDIUM"
	RiskHigh   = "HIGH"
)

// HealthReport aggregates a run's history into subsystem health scores.
type HealthReport struct {
	AvgCoolantTemp   float64 `json:"avg_coolant_temp"`
	MaxCoolantTemp   float64 `json:"max_coolant_temp"`
	AvgRPM           float64 `json:"avg_rpm"`
	MaxRPM           float64 `json:"max_rpm"`
	MinOilPressure   float64 `json:"min_oil_pressure"`
	CoolingScore     float64 `json:"cooling_score"`
	LubricationScore float64 `json:"lubrication_score"`
	OverallScore     float64 `json:"overall_score"`
	Risk             string  `json:"risk"`
}

// AnalyzeHealth scores the cooling and lubrication systems over a run's
// history. The cooling score penalizes average coolant temperature away from
// the 85°C baseline; the lubrication score penalizes oil pressure dips
// below 25 psi.
func AnalyzeHealth(history []models.Snapshot) (*HealthReport, error) {
	if len(history) == 0 {
		return nil, fmt.Errorf("no snapshots collected")
	}

	report := &HealthReport{
		MaxCoolantTemp: history[0][models.ChannelCoolantTemp].Value,
		MaxRPM:         history[0][models.ChannelRPM].Value,
		MinOilPressure: history[0][models.ChannelOilPressure].Value,
	}

	var tempSum, rpmSum float64
	for _, snap := range history {
		temp := snap[models.ChannelCoolantTemp].Value
		rpm := snap[models.ChannelRPM].Value
		oilPressure := snap[models.ChannelOilPressure].Value

		tempSum += temp
		rpmSum += rpm
		if temp > report.MaxCoolantTemp {
			report.MaxCoolantTemp = temp
		}
		if rpm > report.MaxRPM {
			report.MaxRPM = rpm
		}
		if oilPressure < report.MinOilPressure {
			report.MinOilPressure = oilPressure
		}
	}

	n := float64(len(history))
	report.AvgCoolantTemp = tempSum / n
	report.AvgRPM = rpmSum / n

	report.CoolingScore = coolingScore(report.AvgCoolantTemp)
	report.LubricationScore = lubricationScore(report.MinOilPressure)
	report.OverallScore = (report.CoolingScore + report.LubricationScore) / 2
	report.Risk = riskFor(report.OverallScore)

	return report, nil
}

func coolingScore(avgTemp float64) float64 {
	score := 100 - abs(avgTemp-85)*5
	if score < 0 {
		return 0
	}
	return score
}

func lubricationScore(minOilPressure float64) float64 {
	deficit := 25 - minOilPressure
	if deficit < 0 {
		deficit = 0
	}
	score := 100 - deficit*4
	if score < 0 {
		return 0
	}
	return score
}

func riskFor(overall float64) string {
	switch {
	case overall > 90:
		return RiskLow
	case overall > 75:
		return RiskMedium
	default:
		return RiskHigh
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// String renders the report as a human-readable block.
func (r *HealthReport) String() string {
	return fmt.Sprintf(`HEALTH ANALYSIS
Average Temperature:  %.1f°C
Maximum Temperature:  %.1f°C
Average RPM:          %.0f
Maximum RPM:          %.0f
Minimum Oil Pressure: %.1f psi

Cooling System:       %.1f%%
Lubrication System:   %.1f%%
Overall Health:       %.1f%%
Failure Risk:         %s`,
		r.AvgCoolantTemp,
		r.MaxCoolantTemp,
		r.AvgRPM,
		r.MaxRPM,
		r.MinOilPressure,
		r.CoolingScore,
		r.LubricationScore,
		r.OverallScore,
		r.Risk,
	)
}
