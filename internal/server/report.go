package server

import (
	"math"

	"meter-reader/internal/app"
	"meter-reader/internal/config"
	"meter-reader/internal/meter"
)

// Report is the /json payload: usage and flow converted to energy and cost.
type Report struct {
	CCF     float64 `json:"ccf"`      // Cumulative, hundreds of cubic feet
	CFH     float64 `json:"cfh"`      // Flow, cubic feet per hour
	KW      float64 `json:"kW"`       // Flow as power
	KWh     float64 `json:"kWh"`      // Cumulative energy
	CostKW  float64 `json:"cost_kW"`  // kW of electric heat costing the same
	CostKWh float64 `json:"cost_kWh"` // kWh of electricity costing the same
	CostHr  float64 `json:"cost_hr"`  // Spend rate at the current flow
	Cost    float64 `json:"cost"`     // Spend for the cumulative reading

	SessionCF   float64 `json:"session_cf"` // Used since the process started
	SessionCost float64 `json:"session_cost"`
}

// electricRatio is how many kWh of electricity cost the same as one kWh of
// gas heat at the tariff's furnace efficiency.
func electricRatio(t config.Tariff) float64 {
	return t.ThermsToKWh * t.KWhCost / t.ThermCost * t.Efficiency
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// NewReport converts a snapshot with the tariff.
func NewReport(snap app.Snapshot, t config.Tariff) Report {
	ccf := snap.Total / meter.CFPerCCF
	cfh := snap.Rate * 60
	kw := cfh * t.CFHToKW
	kwh := ccf * t.ThermCorrection * t.ThermsToKWh
	ratio := electricRatio(t)

	r := Report{
		CCF:    round(ccf, 3),
		CFH:    round(cfh, 1),
		KW:     round(kw, 1),
		KWh:    round(kwh, 1),
		CostHr: round(cfh*t.ThermCorrection*t.ThermCost/meter.CFPerCCF, 2),
		Cost:   round(ccf*t.ThermCorrection*t.ThermCost, 2),
	}
	if ratio > 0 {
		r.CostKW = round(kw/ratio, 1)
		r.CostKWh = round(kwh/ratio, 1)
	}

	used := snap.Total - snap.StartTotal
	r.SessionCF = round(used, 1)
	r.SessionCost = round(used/meter.CFPerCCF*t.ThermCorrection*t.ThermCost, 2)
	return r
}
