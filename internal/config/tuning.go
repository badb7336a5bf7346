package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// The schema matches the /api/config endpoint so the same JSON can be
// used for both startup configuration and inspection.
type TuningConfig struct {
	// Track registry params
	MatchThreshold   *float64 `json:"match_threshold,omitempty"`
	RelaxedThreshold *float64 `json:"relaxed_threshold,omitempty"`
	StrongAppearance *float64 `json:"strong_appearance,omitempty"`
	ReIDMaxDistance  *float64 `json:"reid_max_distance,omitempty"`
	ActiveTTL        *string  `json:"active_ttl,omitempty"`  // duration string like "15s"
	HistoryTTL       *string  `json:"history_ttl,omitempty"` // duration string like "30s"

	// Fall detection params
	VelocityThreshold    *float64 `json:"velocity_threshold,omitempty"`
	AngleChangeThreshold *float64 `json:"angle_change_threshold,omitempty"`
	AspectRatioThreshold *float64 `json:"aspect_ratio_threshold,omitempty"`
	ConfidenceThreshold  *float64 `json:"confidence_threshold,omitempty"`
	HistorySize          *int     `json:"history_size,omitempty"`
	MinBoxSize           *float64 `json:"min_box_size,omitempty"`
	StaleAfterFrames     *int64   `json:"stale_after_frames,omitempty"`

	// Session params
	ReuseWindow      *string  `json:"reuse_window,omitempty"` // duration string like "1s"
	MinDetectionArea *float64 `json:"min_detection_area,omitempty"`

	// Ingest params
	TargetFPS       *float64 `json:"target_fps,omitempty"`
	QueueSize       *int     `json:"queue_size,omitempty"`
	IdleSleep       *string  `json:"idle_sleep,omitempty"`    // duration string like "10ms"
	LogInterval     *string  `json:"log_interval,omitempty"`  // duration string like "1m"
	ReconnectDelays []string `json:"reconnect_delays,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrInt64(v int64) *int64       { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field explicitly
// set to its default value. The values mirror config/tuning.defaults.json.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		MatchThreshold:   ptrFloat64(0.05),
		RelaxedThreshold: ptrFloat64(0.05),
		StrongAppearance: ptrFloat64(0.3),
		ReIDMaxDistance:  ptrFloat64(0.4),
		ActiveTTL:        ptrString("15s"),
		HistoryTTL:       ptrString("30s"),

		VelocityThreshold:    ptrFloat64(20),
		AngleChangeThreshold: ptrFloat64(45),
		AspectRatioThreshold: ptrFloat64(1.5),
		ConfidenceThreshold:  ptrFloat64(0.8),
		HistorySize:          ptrInt(5),
		MinBoxSize:           ptrFloat64(10),
		StaleAfterFrames:     ptrInt64(30),

		ReuseWindow:      ptrString("1s"),
		MinDetectionArea: ptrFloat64(20),

		TargetFPS:       ptrFloat64(5),
		QueueSize:       ptrInt(2),
		IdleSleep:       ptrString("10ms"),
		LogInterval:     ptrString("1m"),
		ReconnectDelays: []string{"1s", "2s", "5s", "10s", "30s"},
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
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

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/tools/track-plot/
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	// Score thresholds and appearance distances live on [0, 1]
	unitRange := map[string]*float64{
		"match_threshold":      c.MatchThreshold,
		"relaxed_threshold":    c.RelaxedThreshold,
		"strong_appearance":    c.StrongAppearance,
		"reid_max_distance":    c.ReIDMaxDistance,
		"confidence_threshold": c.ConfidenceThreshold,
	}
	for name, v := range unitRange {
		if v != nil && (*v < 0 || *v > 1) {
			return fmt.Errorf("%s must be between 0 and 1, got %f", name, *v)
		}
	}

	// Duration strings must parse
	durations := map[string]*string{
		"active_ttl":   c.ActiveTTL,
		"history_ttl":  c.HistoryTTL,
		"reuse_window": c.ReuseWindow,
		"idle_sleep":   c.IdleSleep,
		"log_interval": c.LogInterval,
	}
	for name, v := range durations {
		if v != nil && *v != "" {
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
			}
		}
	}
	for i, d := range c.ReconnectDelays {
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("invalid reconnect_delays[%d] '%s': %w", i, d, err)
		}
	}

	// Validate HistorySize if set. The velocity and angle signals compare
	// consecutive samples, so a window of one can never fire.
	if c.HistorySize != nil && *c.HistorySize < 2 {
		return fmt.Errorf("history_size must be at least 2, got %d", *c.HistorySize)
	}

	if c.MinBoxSize != nil && *c.MinBoxSize < 0 {
		return fmt.Errorf("min_box_size must be non-negative, got %f", *c.MinBoxSize)
	}

	if c.MinDetectionArea != nil && *c.MinDetectionArea < 0 {
		return fmt.Errorf("min_detection_area must be non-negative, got %f", *c.MinDetectionArea)
	}

	if c.StaleAfterFrames != nil && *c.StaleAfterFrames < 1 {
		return fmt.Errorf("stale_after_frames must be positive, got %d", *c.StaleAfterFrames)
	}

	if c.TargetFPS != nil && *c.TargetFPS <= 0 {
		return fmt.Errorf("target_fps must be positive, got %f", *c.TargetFPS)
	}

	if c.QueueSize != nil && *c.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", *c.QueueSize)
	}

	return nil
}

// parseDurationOr parses a duration string field, falling back to the
// default when unset, empty, or unparseable.
func parseDurationOr(v *string, fallback time.Duration) time.Duration {
	if v == nil || *v == "" {
		return fallback
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fallback
	}
	return d
}

// GetMatchThreshold returns the match_threshold value or the default.
func (c *TuningConfig) GetMatchThreshold() float64 {
	if c.MatchThreshold == nil {
		return 0.05
	}
	return *c.MatchThreshold
}

// GetRelaxedThreshold returns the relaxed_threshold value or the default.
func (c *TuningConfig) GetRelaxedThreshold() float64 {
	if c.RelaxedThreshold == nil {
		return 0.05
	}
	return *c.RelaxedThreshold
}

// GetStrongAppearance returns the strong_appearance value or the default.
func (c *TuningConfig) GetStrongAppearance() float64 {
	if c.StrongAppearance == nil {
		return 0.3
	}
	return *c.StrongAppearance
}

// GetReIDMaxDistance returns the reid_max_distance value or the default.
func (c *TuningConfig) GetReIDMaxDistance() float64 {
	if c.ReIDMaxDistance == nil {
		return 0.4
	}
	return *c.ReIDMaxDistance
}

// GetActiveTTL parses and returns the ActiveTTL as a time.Duration.
func (c *TuningConfig) GetActiveTTL() time.Duration {
	return parseDurationOr(c.ActiveTTL, 15*time.Second)
}

// GetHistoryTTL parses and returns the HistoryTTL as a time.Duration.
func (c *TuningConfig) GetHistoryTTL() time.Duration {
	return parseDurationOr(c.HistoryTTL, 30*time.Second)
}

// GetVelocityThreshold returns the velocity_threshold value or the default.
func (c *TuningConfig) GetVelocityThreshold() float64 {
	if c.VelocityThreshold == nil {
		return 20
	}
	return *c.VelocityThreshold
}

// GetAngleChangeThreshold returns the angle_change_threshold value or the default.
func (c *TuningConfig) GetAngleChangeThreshold() float64 {
	if c.AngleChangeThreshold == nil {
		return 45
	}
	return *c.AngleChangeThreshold
}

// GetAspectRatioThreshold returns the aspect_ratio_threshold value or the default.
func (c *TuningConfig) GetAspectRatioThreshold() float64 {
	if c.AspectRatioThreshold == nil {
		return 1.5
	}
	return *c.AspectRatioThreshold
}

// GetConfidenceThreshold returns the confidence_threshold value or the default.
func (c *TuningConfig) GetConfidenceThreshold() float64 {
	if c.ConfidenceThreshold == nil {
		return 0.8
	}
	return *c.ConfidenceThreshold
}

// GetHistorySize returns the history_size value or the default.
func (c *TuningConfig) GetHistorySize() int {
	if c.HistorySize == nil {
		return 5
	}
	return *c.HistorySize
}

// GetMinBoxSize returns the min_box_size value or the default.
func (c *TuningConfig) GetMinBoxSize() float64 {
	if c.MinBoxSize == nil {
		return 10
	}
	return *c.MinBoxSize
}

// GetStaleAfterFrames returns the stale_after_frames value or the default.
func (c *TuningConfig) GetStaleAfterFrames() int64 {
	if c.StaleAfterFrames == nil {
		return 30
	}
	return *c.StaleAfterFrames
}

// GetReuseWindow parses and returns the ReuseWindow as a time.Duration.
func (c *TuningConfig) GetReuseWindow() time.Duration {
	return parseDurationOr(c.ReuseWindow, time.Second)
}

// GetMinDetectionArea returns the min_detection_area value or the default.
func (c *TuningConfig) GetMinDetectionArea() float64 {
	if c.MinDetectionArea == nil {
		return 20
	}
	return *c.MinDetectionArea
}

// GetTargetFPS returns the target_fps value or the default.
func (c *TuningConfig) GetTargetFPS() float64 {
	if c.TargetFPS == nil {
		return 5
	}
	return *c.TargetFPS
}

// GetQueueSize returns the queue_size value or the default.
func (c *TuningConfig) GetQueueSize() int {
	if c.QueueSize == nil {
		return 2
	}
	return *c.QueueSize
}

// GetIdleSleep parses and returns the IdleSleep as a time.Duration.
func (c *TuningConfig) GetIdleSleep() time.Duration {
	return parseDurationOr(c.IdleSleep, 10*time.Millisecond)
}

// GetLogInterval parses and returns the LogInterval as a time.Duration.
func (c *TuningConfig) GetLogInterval() time.Duration {
	return parseDurationOr(c.LogInterval, time.Minute)
}

// GetReconnectDelays parses and returns the reconnect delay schedule.
func (c *TuningConfig) GetReconnectDelays() []time.Duration {
	if len(c.ReconnectDelays) == 0 {
		return []time.Duration{1 * time.Second, 2 * time.Second, 5 * time.Second, 10 * time.Second, 30 * time.Second}
	}
	delays := make([]time.Duration, 0, len(c.ReconnectDelays))
	for _, s := range c.ReconnectDelays {
		d, err := time.ParseDuration(s)
		if err != nil {
			continue
		}
		delays = append(delays, d)
	}
	return delays
}
