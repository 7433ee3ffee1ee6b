package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical analysis defaults file.
// This is the single source of truth for all default analysis values.
const DefaultConfigPath = "config/analysis.defaults.json"

// UnitConfig describes one processing unit of the fileset: a dataset
// partition carrying its own process identity and baseline variation.
// Only units whose Variation is "nominal" expand into the full set of
// systematic variations; all other units evaluate their baseline only.
type UnitConfig struct {
	Name       string   `json:"name"`
	Process    string   `json:"process"`
	Variation  string   `json:"variation"`
	XSec       float64  `json:"xsec"`
	NEvtsTotal int64    `json:"nevts_total"`
	IsData     bool     `json:"is_data"`
	Files      []string `json:"files"`
}

// AnalysisConfig represents the root configuration for an analysis run.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
type AnalysisConfig struct {
	// Run-wide constants
	Luminosity    *float64 `json:"luminosity,omitempty"`     // integrated luminosity, /pb
	BTagThreshold *float64 `json:"btag_threshold,omitempty"` // per-jet tag discriminant cut

	// Histogram binning (shared by every region observable)
	HistBins *int     `json:"hist_bins,omitempty"`
	HistLow  *float64 `json:"hist_low,omitempty"`
	HistHigh *float64 `json:"hist_high,omitempty"`

	// Object selection cuts
	LeptonMinPt     *float64 `json:"lepton_min_pt,omitempty"`
	LeptonMaxAbsEta *float64 `json:"lepton_max_abs_eta,omitempty"`
	JetMinPt        *float64 `json:"jet_min_pt,omitempty"`
	JetMaxAbsEta    *float64 `json:"jet_max_abs_eta,omitempty"`

	// Runner params
	Workers   *int `json:"workers,omitempty"`
	ChunkSize *int `json:"chunk_size,omitempty"`

	// Fileset: the processing units of this run
	Units []UnitConfig `json:"units,omitempty"`
}

// EmptyAnalysisConfig returns an AnalysisConfig with all fields set to nil.
// Use LoadAnalysisConfig to load actual values from a config file.
func EmptyAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{}
}

// LoadAnalysisConfig loads an AnalysisConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON file retain their default
// values via the Get* accessors.
func LoadAnalysisConfig(path string) (*AnalysisConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyAnalysisConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical analysis defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *AnalysisConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/analysis/<pkg>/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadAnalysisConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *AnalysisConfig) Validate() error {
	if c.Luminosity != nil && *c.Luminosity <= 0 {
		return fmt.Errorf("luminosity must be positive, got %f", *c.Luminosity)
	}

	if c.BTagThreshold != nil {
		if *c.BTagThreshold < 0 || *c.BTagThreshold > 1 {
			return fmt.Errorf("btag_threshold must be between 0 and 1, got %f", *c.BTagThreshold)
		}
	}

	if c.HistBins != nil && *c.HistBins <= 0 {
		return fmt.Errorf("hist_bins must be positive, got %d", *c.HistBins)
	}
	if c.HistLow != nil && c.HistHigh != nil && *c.HistLow >= *c.HistHigh {
		return fmt.Errorf("hist_low (%f) must be below hist_high (%f)", *c.HistLow, *c.HistHigh)
	}

	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *c.Workers)
	}
	if c.ChunkSize != nil && *c.ChunkSize < 1 {
		return fmt.Errorf("chunk_size must be at least 1, got %d", *c.ChunkSize)
	}

	for i, u := range c.Units {
		if u.Name == "" {
			return fmt.Errorf("units[%d]: name is required", i)
		}
		if u.Process == "" {
			return fmt.Errorf("units[%d] (%s): process is required", i, u.Name)
		}
		if u.Variation == "" {
			return fmt.Errorf("units[%d] (%s): variation is required", i, u.Name)
		}
		if !u.IsData && u.NEvtsTotal <= 0 {
			return fmt.Errorf("units[%d] (%s): nevts_total must be positive for simulation", i, u.Name)
		}
	}

	return nil
}

// GetLuminosity returns the integrated luminosity (/pb) or the default.
func (c *AnalysisConfig) GetLuminosity() float64 {
	if c.Luminosity == nil {
		return 3378 // default: /pb
	}
	return *c.Luminosity
}

// GetBTagThreshold returns the b-tag discriminant threshold or the default.
func (c *AnalysisConfig) GetBTagThreshold() float64 {
	if c.BTagThreshold == nil {
		return 0.5
	}
	return *c.BTagThreshold
}

// GetHistBins returns the histogram bin count or the default.
func (c *AnalysisConfig) GetHistBins() int {
	if c.HistBins == nil {
		return 25
	}
	return *c.HistBins
}

// GetHistLow returns the histogram lower edge or the default.
func (c *AnalysisConfig) GetHistLow() float64 {
	if c.HistLow == nil {
		return 50
	}
	return *c.HistLow
}

// GetHistHigh returns the histogram upper edge or the default.
func (c *AnalysisConfig) GetHistHigh() float64 {
	if c.HistHigh == nil {
		return 550
	}
	return *c.HistHigh
}

// GetLeptonMinPt returns the lepton pt cut (GeV) or the default.
func (c *AnalysisConfig) GetLeptonMinPt() float64 {
	if c.LeptonMinPt == nil {
		return 30
	}
	return *c.LeptonMinPt
}

// GetLeptonMaxAbsEta returns the lepton |eta| cut or the default.
func (c *AnalysisConfig) GetLeptonMaxAbsEta() float64 {
	if c.LeptonMaxAbsEta == nil {
		return 2.1
	}
	return *c.LeptonMaxAbsEta
}

// GetJetMinPt returns the jet pt cut (GeV) or the default.
func (c *AnalysisConfig) GetJetMinPt() float64 {
	if c.JetMinPt == nil {
		return 30
	}
	return *c.JetMinPt
}

// GetJetMaxAbsEta returns the jet |eta| cut or the default.
func (c *AnalysisConfig) GetJetMaxAbsEta() float64 {
	if c.JetMaxAbsEta == nil {
		return 2.4
	}
	return *c.JetMaxAbsEta
}

// GetWorkers returns the worker count or the default.
func (c *AnalysisConfig) GetWorkers() int {
	if c.Workers == nil {
		return 4
	}
	return *c.Workers
}

// GetChunkSize returns the chunk size (events) or the default.
func (c *AnalysisConfig) GetChunkSize() int {
	if c.ChunkSize == nil {
		return 50000
	}
	return *c.ChunkSize
}
