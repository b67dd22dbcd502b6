package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"asterhunt/internal/tracker"
)

const defaultConfigPath = "~/.config/asterhunt/config.json"

// Config holds user-editable settings for a hunt.
type Config struct {
	Sweep     Sweep     `json:"sweep"`
	Detection Detection `json:"detection"`
	Stretch   Stretch   `json:"stretch"`
	Filters   Filters   `json:"filters"`
	Logging   Logging   `json:"logging"`
	Paths     Paths     `json:"paths"`
	Server    Server    `json:"server"`
}

// Sweep bounds the synthetic-tracking grid.
type Sweep struct {
	MotionMin float32 `json:"motion_min"` // arcsec/min
	MotionMax float32 `json:"motion_max"` // arcsec/min
	PAMin     float32 `json:"pa_min"`     // degrees
	PAMax     float32 `json:"pa_max"`     // degrees
	TrkErr    float32 `json:"trk_err"`    // permitted stacking error, pixels
}

// Detection tunes object search and reconciliation.
type Detection struct {
	Aperture   int     `json:"aperture"`    // aperture radius, pixels
	Sigma1     float32 `json:"sigma1"`      // detection threshold sigmas
	Sigma2     float32 `json:"sigma2"`      // star-mask threshold sigmas
	TCountBase int     `json:"tcount_base"` // base over-threshold pixel count
	PosErr     float32 `json:"pos_err"`     // position measurement error, pixels
}

// Stretch sets the sigma multiples for black/white levels.
type Stretch struct {
	BlackFits float32 `json:"black_fits"`
	WhiteFits float32 `json:"white_fits"`
	BlackHist float32 `json:"black_hist"`
	WhiteHist float32 `json:"white_hist"`
}

// Filters selects optional frame preparation steps.
type Filters struct {
	Blur    bool `json:"blur"`
	DeLine  bool `json:"deline"`
	Flatten bool `json:"flatten"`
}

// Logging controls verbosity and destinations.
type Logging struct {
	Level      string `json:"level"`  // debug, info, warn, error
	Format     string `json:"format"` // text, json
	FileOutput bool   `json:"file_output"`
	LogDir     string `json:"log_dir"`
}

// Paths configures default locations.
type Paths struct {
	DefaultInput string `json:"default_input"`
	ReportDir    string `json:"report_dir"`
	DatabasePath string `json:"database_path"`
}

// Server configures the status surface.
type Server struct {
	Addr string `json:"addr"`
}

// Load reads configuration from disk, falling back to defaults per field.
// A missing file is not an error. Fields absent from the file, or holding a
// value of the wrong type, keep their defaults; a file that is not valid
// JSON yields the defaults.
func Load() (*Config, error) {
	cfg := Default()

	configPath := os.Getenv("ASTERHUNT_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}
	expanded, err := expandUser(configPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(expanded)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Decode errors are not fatal: a syntax error is caught before any field
	// is set, and a type error skips only the offending field.
	_ = json.NewDecoder(f).Decode(cfg)
	return cfg, nil
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Sweep: Sweep{
			MotionMin: 0.25,
			MotionMax: 9.0,
			PAMin:     0,
			PAMax:     360,
			TrkErr:    0.5,
		},
		Detection: Detection{
			Aperture:   5,
			Sigma1:     1.9,
			Sigma2:     3.0,
			TCountBase: 3,
			PosErr:     0.5,
		},
		Stretch: Stretch{
			BlackFits: 4.5,
			WhiteFits: 7.5,
			BlackHist: 3.0,
			WhiteHist: 9.0,
		},
		Filters: Filters{
			Blur:    true,
			DeLine:  false,
			Flatten: false,
		},
		Logging: Logging{
			Level:      "info",
			Format:     "text",
			FileOutput: false,
			LogDir:     "./logs",
		},
		Paths: Paths{
			DefaultInput: ".",
			ReportDir:    "./reports",
			DatabasePath: filepath.Join(os.TempDir(), "asterhunt.db"),
		},
		Server: Server{
			Addr: ":8750",
		},
	}
}

// TrackerParams maps the configuration onto the pipeline parameter block.
func (c *Config) TrackerParams() tracker.Params {
	return tracker.Params{
		MotionMin:  c.Sweep.MotionMin,
		MotionMax:  c.Sweep.MotionMax,
		PAMinDeg:   c.Sweep.PAMin,
		PAMaxDeg:   c.Sweep.PAMax,
		TrkErr:     c.Sweep.TrkErr,
		PosErr:     c.Detection.PosErr,
		Aperture:   c.Detection.Aperture,
		TCountBase: c.Detection.TCountBase,
		Sigma1:     c.Detection.Sigma1,
		Sigma2:     c.Detection.Sigma2,
		BlackFits:  c.Stretch.BlackFits,
		WhiteFits:  c.Stretch.WhiteFits,
		BlackHist:  c.Stretch.BlackHist,
		WhiteHist:  c.Stretch.WhiteHist,
		Blur:       c.Filters.Blur,
		DeLine:     c.Filters.DeLine,
		Flatten:    c.Filters.Flatten,
	}
}

func expandUser(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, path[2:]), nil
}
