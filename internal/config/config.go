// Package config loads planfact configuration from defaults, an optional
// config.toml, and PLANFACT_* environment variables, in that order of
// precedence. A .env file next to the data directory is honored before env
// lookup.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultDataDirName = ".planfact"

	DefaultDistractionMinutes    = 20
	DefaultVerifiedCoverage      = 0.7
	DefaultPartialCoverage       = 0.2
	DefaultContradictionCoverage = 0.8
	DefaultMinGapMinutes         = 15

	DefaultPatternMinConfidence  = 0.6
	DefaultAnomalySlotConfidence = 0.5
	DefaultPatternWindowWeeks    = 6

	DefaultSuggestBaseURL        = "http://localhost:11434/v1"
	DefaultSuggestTimeoutSeconds = 30
)

// Config holds the application configuration. Verification and pattern
// thresholds are deliberately tunable; the defaults are starting points to
// validate against real usage.
type Config struct {
	DataDir    string
	DBPath     string
	ConfigPath string
	LogLevel   string
	LogFile    string

	// Verification thresholds.
	DistractionMinutes    int
	VerifiedCoverage      float64
	PartialCoverage       float64
	ContradictionCoverage float64
	MinGapMinutes         int

	// Pattern model.
	PatternMinConfidence  float64
	AnomalySlotConfidence float64
	PatternWindowWeeks    int

	// Suggestion service.
	SuggestEnabled        bool
	SuggestBaseURL        string
	SuggestAPIKey         string
	SuggestModel          string
	SuggestTimeoutSeconds int
}

type fileConfig struct {
	Logging struct {
		Level string `toml:"level"`
		File  string `toml:"file"`
	} `toml:"logging"`
	Storage struct {
		DBPath string `toml:"db_path"`
	} `toml:"storage"`
	Verify struct {
		DistractionMinutes    int     `toml:"distraction_minutes"`
		VerifiedCoverage      float64 `toml:"verified_coverage"`
		PartialCoverage       float64 `toml:"partial_coverage"`
		ContradictionCoverage float64 `toml:"contradiction_coverage"`
		MinGapMinutes         int     `toml:"min_gap_minutes"`
	} `toml:"verify"`
	Pattern struct {
		MinConfidence         float64 `toml:"min_confidence"`
		AnomalySlotConfidence float64 `toml:"anomaly_slot_confidence"`
		WindowWeeks           int     `toml:"window_weeks"`
	} `toml:"pattern"`
	Suggest struct {
		Enabled        bool   `toml:"enabled"`
		BaseURL        string `toml:"base_url"`
		APIKey         string `toml:"api_key"`
		Model          string `toml:"model"`
		TimeoutSeconds int    `toml:"timeout_seconds"`
	} `toml:"suggest"`
}

// Load builds the configuration for the given data directory. An empty
// dataDir resolves to ~/.planfact.
func Load(dataDir string) (*Config, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot resolve home directory: %w", err)
		}
		dataDir = filepath.Join(home, DefaultDataDirName)
	}
	if err := os.MkdirAll(filepath.Join(dataDir, "logs"), 0o755); err != nil {
		return nil, fmt.Errorf("cannot create data directory: %w", err)
	}

	// A .env in the data dir supplies env vars without polluting the shell.
	_ = godotenv.Load(filepath.Join(dataDir, ".env"))

	cfg := &Config{
		DataDir:    dataDir,
		DBPath:     filepath.Join(dataDir, "planfact.sqlite3"),
		ConfigPath: filepath.Join(dataDir, "config.toml"),
		LogLevel:   "info",
		LogFile:    filepath.Join(dataDir, "logs", "planfact.log"),

		DistractionMinutes:    DefaultDistractionMinutes,
		VerifiedCoverage:      DefaultVerifiedCoverage,
		PartialCoverage:       DefaultPartialCoverage,
		ContradictionCoverage: DefaultContradictionCoverage,
		MinGapMinutes:         DefaultMinGapMinutes,

		PatternMinConfidence:  DefaultPatternMinConfidence,
		AnomalySlotConfidence: DefaultAnomalySlotConfidence,
		PatternWindowWeeks:    DefaultPatternWindowWeeks,

		SuggestEnabled:        false,
		SuggestBaseURL:        DefaultSuggestBaseURL,
		SuggestTimeoutSeconds: DefaultSuggestTimeoutSeconds,
	}

	if err := cfg.applyFile(); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	cfg.SuggestBaseURL = strings.TrimRight(strings.TrimSpace(cfg.SuggestBaseURL), "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile() error {
	data, err := os.ReadFile(c.ConfigPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("cannot read %s: %w", c.ConfigPath, err)
	}

	var parsed fileConfig
	if err := toml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("cannot parse %s: %w", c.ConfigPath, err)
	}

	if parsed.Logging.Level != "" {
		c.LogLevel = parsed.Logging.Level
	}
	if parsed.Logging.File != "" {
		c.LogFile = parsed.Logging.File
	}
	if parsed.Storage.DBPath != "" {
		c.DBPath = parsed.Storage.DBPath
	}

	if parsed.Verify.DistractionMinutes > 0 {
		c.DistractionMinutes = parsed.Verify.DistractionMinutes
	}
	if parsed.Verify.VerifiedCoverage > 0 {
		c.VerifiedCoverage = parsed.Verify.VerifiedCoverage
	}
	if parsed.Verify.PartialCoverage > 0 {
		c.PartialCoverage = parsed.Verify.PartialCoverage
	}
	if parsed.Verify.ContradictionCoverage > 0 {
		c.ContradictionCoverage = parsed.Verify.ContradictionCoverage
	}
	if parsed.Verify.MinGapMinutes > 0 {
		c.MinGapMinutes = parsed.Verify.MinGapMinutes
	}

	if parsed.Pattern.MinConfidence > 0 {
		c.PatternMinConfidence = parsed.Pattern.MinConfidence
	}
	if parsed.Pattern.AnomalySlotConfidence > 0 {
		c.AnomalySlotConfidence = parsed.Pattern.AnomalySlotConfidence
	}
	if parsed.Pattern.WindowWeeks > 0 {
		c.PatternWindowWeeks = parsed.Pattern.WindowWeeks
	}

	c.SuggestEnabled = parsed.Suggest.Enabled
	if parsed.Suggest.BaseURL != "" {
		c.SuggestBaseURL = parsed.Suggest.BaseURL
	}
	if parsed.Suggest.APIKey != "" {
		c.SuggestAPIKey = parsed.Suggest.APIKey
	}
	if parsed.Suggest.Model != "" {
		c.SuggestModel = parsed.Suggest.Model
	}
	if parsed.Suggest.TimeoutSeconds > 0 {
		c.SuggestTimeoutSeconds = parsed.Suggest.TimeoutSeconds
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PLANFACT_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("PLANFACT_LOG_FILE"); v != "" {
		c.LogFile = v
	}
	if v := os.Getenv("PLANFACT_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("PLANFACT_DISTRACTION_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.DistractionMinutes = n
		}
	}
	if v := os.Getenv("PLANFACT_VERIFIED_COVERAGE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.VerifiedCoverage = f
		}
	}
	if v := os.Getenv("PLANFACT_PARTIAL_COVERAGE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.PartialCoverage = f
		}
	}
	if v := os.Getenv("PLANFACT_PATTERN_MIN_CONFIDENCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.PatternMinConfidence = f
		}
	}
	if v := os.Getenv("PLANFACT_SUGGEST_ENABLED"); v != "" {
		c.SuggestEnabled = v == "true" || v == "1"
	}
	if v := os.Getenv("PLANFACT_SUGGEST_BASE_URL"); v != "" {
		c.SuggestBaseURL = v
	}
	if v := os.Getenv("PLANFACT_SUGGEST_API_KEY"); v != "" {
		c.SuggestAPIKey = v
	}
	if v := os.Getenv("PLANFACT_SUGGEST_MODEL"); v != "" {
		c.SuggestModel = v
	}
}

// Validate verifies the configuration is usable.
func (c *Config) Validate() error {
	if c.DistractionMinutes <= 0 {
		return fmt.Errorf("distraction minutes must be positive")
	}
	if c.VerifiedCoverage <= 0 || c.VerifiedCoverage > 1 {
		return fmt.Errorf("verified coverage must be in (0,1]")
	}
	if c.PartialCoverage <= 0 || c.PartialCoverage > c.VerifiedCoverage {
		return fmt.Errorf("partial coverage must be in (0, verified coverage]")
	}
	if c.ContradictionCoverage <= 0 || c.ContradictionCoverage > 1 {
		return fmt.Errorf("contradiction coverage must be in (0,1]")
	}
	if c.MinGapMinutes <= 0 {
		return fmt.Errorf("min gap minutes must be positive")
	}
	if c.PatternMinConfidence < 0 || c.PatternMinConfidence > 1 {
		return fmt.Errorf("pattern min confidence must be in [0,1]")
	}
	if c.AnomalySlotConfidence < 0 || c.AnomalySlotConfidence > 1 {
		return fmt.Errorf("anomaly slot confidence must be in [0,1]")
	}
	if c.PatternWindowWeeks <= 0 {
		return fmt.Errorf("pattern window weeks must be positive")
	}
	if c.SuggestEnabled && strings.TrimSpace(c.SuggestBaseURL) == "" {
		return fmt.Errorf("suggestions enabled but base URL is empty")
	}
	if c.SuggestTimeoutSeconds <= 0 {
		return fmt.Errorf("suggest timeout must be positive")
	}
	return nil
}
