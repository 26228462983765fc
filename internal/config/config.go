// Package config holds the installation-specific settings of the meter
// reader: where frames come from, the dial tuning knobs and the reporting
// tariff.
package config

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"meter-reader/internal/dial"
	"meter-reader/internal/meter"
	"meter-reader/internal/needle"
	"meter-reader/pkg/geometry"
)

// Source kinds.
const (
	SourceSequence = "sequence"
	SourceCamera   = "camera"
)

// Config is the complete daemon configuration.
type Config struct {
	// Time between the end of one sampling cycle and the start of the next.
	Period Duration `json:"period"`

	Source SourceConfig `json:"source"`

	// Panel corners in the raw camera image, any order. All zero disables
	// rectification.
	Corners [4]geometry.PointInt `json:"corners"`

	// Where the dial calibration is kept. A missing file triggers calibration.
	CalibrationPath string `json:"calibration_path"`
	// Run with a calibration that did not find six dials. Such a
	// calibration is never saved.
	AllowDegradedCalibration bool `json:"allow_degraded_calibration"`

	Locator dial.LocatorParams `json:"locator"`
	Needle  needle.Params      `json:"needle"`

	// Flow above this many cf/min is treated as a misread.
	RateCeiling float64 `json:"rate_ceiling"`
	// Committed samples averaged for the reported mean flow.
	RateWindow int `json:"rate_window"`
	// Re-read the decade dials every this many cycles; 0 disables. The
	// default is about a minute at the default period.
	ReconcileEvery int `json:"reconcile_every"`

	// HTTP listen address for the reporting endpoints; empty disables.
	Listen string `json:"listen"`
	// Archive every captured frame here for later replay; empty disables.
	SaveDir string `json:"save_dir"`

	Tariff Tariff `json:"tariff"`
}

// SourceConfig selects and configures the frame source.
type SourceConfig struct {
	Kind string `json:"kind"`

	// Sequence: numbered files Dir/<Start>.jpg, <Start+1>.jpg, ...
	Dir   string `json:"dir"`
	Start int    `json:"start"`
	Ext   string `json:"ext"`

	// Camera: device index or path, and requested resolution
	Device string `json:"device"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Tariff converts gas usage to energy and cost figures for reporting.
type Tariff struct {
	ThermCost       float64 `json:"therm_cost"`       // Currency per therm
	KWhCost         float64 `json:"kwh_cost"`         // Currency per kWh of electricity
	ThermCorrection float64 `json:"therm_correction"` // Therms per ccf
	ThermsToKWh     float64 `json:"therms_to_kwh"`
	CFHToKW         float64 `json:"cfh_to_kw"`  // kW per cf/hour of flow
	Efficiency      float64 `json:"efficiency"` // Furnace efficiency for the electric comparison
}

// Default returns the configuration for the AC-250 install the defaults
// were tuned on.
func Default() Config {
	return Config{
		Period: Duration(2 * time.Second),
		Source: SourceConfig{
			Kind:   SourceSequence,
			Dir:    "images",
			Start:  1000,
			Ext:    ".jpg",
			Device: "0",
			Width:  1280,
			Height: 720,
		},
		Corners: [4]geometry.PointInt{
			{X: 32, Y: 74}, {X: 1132, Y: 45}, {X: 1165, Y: 651}, {X: 49, Y: 718},
		},
		CalibrationPath: "settings.json",
		Locator:         dial.DefaultParams(),
		Needle:          needle.DefaultParams(),
		RateCeiling:     meter.DefaultRateCeiling,
		RateWindow:      30,
		ReconcileEvery:  30,
		Listen:          ":8000",
		Tariff: Tariff{
			ThermCost:       0.6698,
			KWhCost:         0.1165,
			ThermCorrection: 1.073,
			ThermsToKWh:     29.31,
			CFHToKW:         3.250,
			Efficiency:      0.9,
		},
	}
}

// Load reads path over the defaults. A missing or empty file yields the
// defaults.
func Load(path string) (Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logrus.Debugf("config file %s not found, using defaults", path)
			return c, nil
		}
		return c, pkgerrors.Wrapf(err, "failed to read file %s", path)
	}
	if strings.TrimSpace(string(b)) == "" {
		return c, nil
	}

	if err := json.Unmarshal(b, &c); err != nil {
		return c, pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", path)
	}
	if err := c.Validate(); err != nil {
		return c, pkgerrors.Wrapf(err, "invalid config in %s", path)
	}
	return c, nil
}

// Validate rejects settings the reader cannot work with.
func (c Config) Validate() error {
	switch {
	case c.Period <= 0:
		return pkgerrors.Errorf("period must be positive, got %s", c.Period)
	case c.Source.Kind != SourceSequence && c.Source.Kind != SourceCamera:
		return pkgerrors.Errorf("unknown source kind %q", c.Source.Kind)
	case c.CalibrationPath == "":
		return pkgerrors.New("calibration_path must be set")
	case c.Needle.InnerRatio <= 0 || c.Needle.OuterRatio > 1 || c.Needle.InnerRatio >= c.Needle.OuterRatio:
		return pkgerrors.Errorf("needle annulus must satisfy 0 < inner < outer <= 1, got %.2f/%.2f",
			c.Needle.InnerRatio, c.Needle.OuterRatio)
	case c.Needle.Slices < 1:
		return pkgerrors.Errorf("needle slices must be at least 1, got %d", c.Needle.Slices)
	case c.Needle.Threshold <= 0 || c.Needle.Threshold >= 255:
		return pkgerrors.Errorf("needle threshold must be in (0,255), got %.0f", c.Needle.Threshold)
	case c.Locator.MinRadiusRef <= 0 || c.Locator.MaxRadiusRef < c.Locator.MinRadiusRef:
		return pkgerrors.Errorf("invalid locator radius band %.0f-%.0f", c.Locator.MinRadiusRef, c.Locator.MaxRadiusRef)
	case c.Locator.MinDistRef <= 0:
		return pkgerrors.Errorf("locator min_dist must be positive, got %.0f", c.Locator.MinDistRef)
	case c.Locator.HoughDP <= 0 || c.Locator.HoughParam1 <= 0 || c.Locator.HoughParam2 <= 0:
		return pkgerrors.Errorf("locator hough_dp, hough_param1 and hough_param2 must be positive, got %.2f/%.0f/%.0f",
			c.Locator.HoughDP, c.Locator.HoughParam1, c.Locator.HoughParam2)
	case c.RateCeiling <= 0:
		return pkgerrors.Errorf("rate_ceiling must be positive, got %.2f", c.RateCeiling)
	case c.ReconcileEvery < 0:
		return pkgerrors.Errorf("reconcile_every must not be negative, got %d", c.ReconcileEvery)
	}
	return nil
}

// Save writes c to path as indented JSON.
func (c Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return pkgerrors.Wrapf(os.WriteFile(path, data, 0o644), "failed to write %s", path)
}

// LogrusFields returns the settings worth logging at startup.
func (c Config) LogrusFields() logrus.Fields {
	return logrus.Fields{
		"period":         c.Period.String(),
		"source":         c.Source.Kind,
		"calibration":    c.CalibrationPath,
		"rateCeiling":    c.RateCeiling,
		"reconcileEvery": c.ReconcileEvery,
		"slices":         c.Needle.Slices,
		"annulus":        []float64{c.Needle.InnerRatio, c.Needle.OuterRatio},
		"listen":         c.Listen,
		"allowDegraded":  c.AllowDegradedCalibration,
		"saveDir":        c.SaveDir,
		"rectify":        c.Corners != [4]geometry.PointInt{},
	}
}

// Duration is a time.Duration that reads and writes as "2s" in JSON.
type Duration time.Duration

// String formats the duration.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts a duration string or a number of seconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(val * float64(time.Second))
	default:
		return pkgerrors.Errorf("invalid duration %s", string(b))
	}
	return nil
}
