package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultTuningConfig(t *testing.T) {
	cfg := DefaultTuningConfig()

	// Test that defaults are set via pointers
	if cfg.MatchThreshold == nil || *cfg.MatchThreshold != 0.05 {
		t.Errorf("Expected MatchThreshold 0.05, got %v", cfg.MatchThreshold)
	}
	if cfg.ActiveTTL == nil || *cfg.ActiveTTL != "15s" {
		t.Errorf("Expected ActiveTTL '15s', got %v", cfg.ActiveTTL)
	}
	if cfg.VelocityThreshold == nil || *cfg.VelocityThreshold != 20 {
		t.Errorf("Expected VelocityThreshold 20, got %v", cfg.VelocityThreshold)
	}
	if cfg.HistorySize == nil || *cfg.HistorySize != 5 {
		t.Errorf("Expected HistorySize 5, got %v", cfg.HistorySize)
	}
	if cfg.ReuseWindow == nil || *cfg.ReuseWindow != "1s" {
		t.Errorf("Expected ReuseWindow '1s', got %v", cfg.ReuseWindow)
	}
	if cfg.TargetFPS == nil || *cfg.TargetFPS != 5 {
		t.Errorf("Expected TargetFPS 5, got %v", cfg.TargetFPS)
	}

	// Test getter methods
	if cfg.GetMatchThreshold() != 0.05 {
		t.Errorf("GetMatchThreshold() = %f, want 0.05", cfg.GetMatchThreshold())
	}
	if cfg.GetConfidenceThreshold() != 0.8 {
		t.Errorf("GetConfidenceThreshold() = %f, want 0.8", cfg.GetConfidenceThreshold())
	}
	if cfg.GetHistorySize() != 5 {
		t.Errorf("GetHistorySize() = %d, want 5", cfg.GetHistorySize())
	}
	if cfg.GetStaleAfterFrames() != 30 {
		t.Errorf("GetStaleAfterFrames() = %d, want 30", cfg.GetStaleAfterFrames())
	}
}

func TestLoadTuningConfig(t *testing.T) {
	// Create temporary directory
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	// Write test config with flat schema
	testJSON := `{
  "match_threshold": 0.1,
  "active_ttl": "20s",
  "velocity_threshold": 30,
  "history_size": 8,
  "reuse_window": "2s",
  "target_fps": 10
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	// Load the config
	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify values
	if cfg.MatchThreshold == nil || *cfg.MatchThreshold != 0.1 {
		t.Errorf("Expected MatchThreshold 0.1, got %v", cfg.MatchThreshold)
	}
	if cfg.ActiveTTL == nil || *cfg.ActiveTTL != "20s" {
		t.Errorf("Expected ActiveTTL '20s', got %v", cfg.ActiveTTL)
	}
	if cfg.VelocityThreshold == nil || *cfg.VelocityThreshold != 30 {
		t.Errorf("Expected VelocityThreshold 30, got %v", cfg.VelocityThreshold)
	}
	if cfg.HistorySize == nil || *cfg.HistorySize != 8 {
		t.Errorf("Expected HistorySize 8, got %v", cfg.HistorySize)
	}
	if cfg.ReuseWindow == nil || *cfg.ReuseWindow != "2s" {
		t.Errorf("Expected ReuseWindow '2s', got %v", cfg.ReuseWindow)
	}
	if cfg.TargetFPS == nil || *cfg.TargetFPS != 10 {
		t.Errorf("Expected TargetFPS 10, got %v", cfg.TargetFPS)
	}
}

func TestLoadTuningConfigMissing(t *testing.T) {
	_, err := LoadTuningConfig("/nonexistent/path/to/config.json")
	if err == nil {
		t.Error("Expected error when loading missing file, got nil")
	}
}

func TestLoadTuningConfigInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid_config.json")

	// Write invalid JSON
	invalidJSON := `{
  "match_threshold": "invalid"
`
	if err := os.WriteFile(configPath, []byte(invalidJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil {
		t.Error("Expected error when loading invalid JSON, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *TuningConfig
		wantErr bool
	}{
		{
			name:    "valid config",
			cfg:     DefaultTuningConfig(),
			wantErr: false,
		},
		{
			name:    "empty config is valid",
			cfg:     &TuningConfig{},
			wantErr: false,
		},
		{
			name: "invalid match threshold (too low)",
			cfg: &TuningConfig{
				MatchThreshold: ptrFloat64(-0.1),
			},
			wantErr: true,
		},
		{
			name: "invalid confidence threshold (too high)",
			cfg: &TuningConfig{
				ConfidenceThreshold: ptrFloat64(1.5),
			},
			wantErr: true,
		},
		{
			name: "invalid active ttl",
			cfg: &TuningConfig{
				ActiveTTL: ptrString("invalid"),
			},
			wantErr: true,
		},
		{
			name: "invalid reuse window",
			cfg: &TuningConfig{
				ReuseWindow: ptrString("invalid"),
			},
			wantErr: true,
		},
		{
			name: "invalid reconnect delay entry",
			cfg: &TuningConfig{
				ReconnectDelays: []string{"1s", "soon"},
			},
			wantErr: true,
		},
		{
			name: "history size below two",
			cfg: &TuningConfig{
				HistorySize: ptrInt(1),
			},
			wantErr: true,
		},
		{
			name: "negative min box size",
			cfg: &TuningConfig{
				MinBoxSize: ptrFloat64(-1),
			},
			wantErr: true,
		},
		{
			name: "zero stale after frames",
			cfg: &TuningConfig{
				StaleAfterFrames: ptrInt64(0),
			},
			wantErr: true,
		},
		{
			name: "zero target fps",
			cfg: &TuningConfig{
				TargetFPS: ptrFloat64(0),
			},
			wantErr: true,
		},
		{
			name: "zero queue size",
			cfg: &TuningConfig{
				QueueSize: ptrInt(0),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetActiveTTL(t *testing.T) {
	tests := []struct {
		name string
		cfg  *TuningConfig
		want time.Duration
	}{
		{
			name: "15 seconds",
			cfg: &TuningConfig{
				ActiveTTL: ptrString("15s"),
			},
			want: 15 * time.Second,
		},
		{
			name: "2 minutes",
			cfg: &TuningConfig{
				ActiveTTL: ptrString("2m"),
			},
			want: 2 * time.Minute,
		},
		{
			name: "nil pointer returns default",
			cfg:  &TuningConfig{},
			want: 15 * time.Second,
		},
		{
			name: "empty string returns default",
			cfg: &TuningConfig{
				ActiveTTL: ptrString(""),
			},
			want: 15 * time.Second,
		},
		{
			name: "invalid duration returns default",
			cfg: &TuningConfig{
				ActiveTTL: ptrString("invalid"),
			},
			want: 15 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.GetActiveTTL()
			if got != tt.want {
				t.Errorf("GetActiveTTL() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetReuseWindow(t *testing.T) {
	tests := []struct {
		name string
		cfg  *TuningConfig
		want time.Duration
	}{
		{
			name: "1 second",
			cfg: &TuningConfig{
				ReuseWindow: ptrString("1s"),
			},
			want: 1 * time.Second,
		},
		{
			name: "250 milliseconds",
			cfg: &TuningConfig{
				ReuseWindow: ptrString("250ms"),
			},
			want: 250 * time.Millisecond,
		},
		{
			name: "nil pointer returns default",
			cfg:  &TuningConfig{},
			want: 1 * time.Second,
		},
		{
			name: "empty string returns default",
			cfg: &TuningConfig{
				ReuseWindow: ptrString(""),
			},
			want: 1 * time.Second,
		},
		{
			name: "invalid duration returns default",
			cfg: &TuningConfig{
				ReuseWindow: ptrString("invalid"),
			},
			want: 1 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.GetReuseWindow()
			if got != tt.want {
				t.Errorf("GetReuseWindow() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoadDefaultConfigFile(t *testing.T) {
	cfg, err := LoadTuningConfig("../../config/tuning.defaults.json")
	if err != nil {
		t.Fatalf("Failed to load defaults: %v", err)
	}
	if cfg.GetMatchThreshold() != 0.05 {
		t.Errorf("Expected 0.05, got %f", cfg.GetMatchThreshold())
	}
	if cfg.GetActiveTTL() != 15*time.Second {
		t.Errorf("Expected 15s, got %v", cfg.GetActiveTTL())
	}
}

func TestLoadExampleConfigFile(t *testing.T) {
	cfg, err := LoadTuningConfig("../../config/tuning.example.json")
	if err != nil {
		t.Fatalf("Failed to load example: %v", err)
	}
	if cfg.GetConfidenceThreshold() != 0.9 {
		t.Errorf("Expected 0.9, got %f", cfg.GetConfidenceThreshold())
	}
	if cfg.GetTargetFPS() != 10 {
		t.Errorf("Expected 10, got %f", cfg.GetTargetFPS())
	}
}

func TestLoadTuningConfigPartial(t *testing.T) {
	// Partial config: only override velocity; everything else should keep defaults.
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "partial.json")

	partialJSON := `{
  "velocity_threshold": 35
}`
	if err := os.WriteFile(configPath, []byte(partialJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load partial config: %v", err)
	}

	// Overridden value
	if cfg.GetVelocityThreshold() != 35 {
		t.Errorf("Expected overridden VelocityThreshold 35, got %f", cfg.GetVelocityThreshold())
	}
	// Default values should be preserved
	if cfg.GetMatchThreshold() != 0.05 {
		t.Errorf("Expected default MatchThreshold 0.05, got %f", cfg.GetMatchThreshold())
	}
	if cfg.GetActiveTTL() != 15*time.Second {
		t.Errorf("Expected default ActiveTTL 15s, got %v", cfg.GetActiveTTL())
	}
	if cfg.GetHistoryTTL() != 30*time.Second {
		t.Errorf("Expected default HistoryTTL 30s, got %v", cfg.GetHistoryTTL())
	}
	if cfg.GetHistorySize() != 5 {
		t.Errorf("Expected default HistorySize 5, got %d", cfg.GetHistorySize())
	}
}

func TestLoadTuningConfigRejectsPathTraversal(t *testing.T) {
	// Path traversal with ".." is allowed since this is a CLI-only flag,
	// but the file must still have a .json extension.
	_, err := LoadTuningConfig("../../etc/passwd")
	if err == nil {
		t.Error("Expected error for non-.json path, got nil")
	}
}

func TestLoadTuningConfigRejectsNonJSON(t *testing.T) {
	_, err := LoadTuningConfig("/some/path/config.yaml")
	if err == nil {
		t.Error("Expected error for non-.json extension, got nil")
	}
}

func TestLoadTuningConfigRejectsLargeFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "large.json")

	// Create a file larger than 1MB
	largeData := make([]byte, 2*1024*1024) // 2MB
	if err := os.WriteFile(configPath, largeData, 0644); err != nil {
		t.Fatalf("Failed to write large file: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil {
		t.Error("Expected error for file size > 1MB, got nil")
	}
}

func TestAllTuningParams(t *testing.T) {
	// Test that all tunable parameters can be set via JSON
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "all_params.json")

	allParamsJSON := `{
  "match_threshold": 0.1,
  "relaxed_threshold": 0.08,
  "strong_appearance": 0.25,
  "reid_max_distance": 0.5,
  "active_ttl": "20s",
  "history_ttl": "45s",
  "velocity_threshold": 25,
  "angle_change_threshold": 50,
  "aspect_ratio_threshold": 1.8,
  "confidence_threshold": 0.85,
  "history_size": 6,
  "min_box_size": 12,
  "stale_after_frames": 40,
  "reuse_window": "500ms",
  "min_detection_area": 30,
  "target_fps": 15,
  "queue_size": 4,
  "idle_sleep": "5ms",
  "log_interval": "30s",
  "reconnect_delays": ["2s", "4s"]
}`
	if err := os.WriteFile(configPath, []byte(allParamsJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify all fields are loaded correctly
	if cfg.MatchThreshold == nil || *cfg.MatchThreshold != 0.1 {
		t.Errorf("MatchThreshold = %v, want 0.1", cfg.MatchThreshold)
	}
	if cfg.RelaxedThreshold == nil || *cfg.RelaxedThreshold != 0.08 {
		t.Errorf("RelaxedThreshold = %v, want 0.08", cfg.RelaxedThreshold)
	}
	if cfg.StrongAppearance == nil || *cfg.StrongAppearance != 0.25 {
		t.Errorf("StrongAppearance = %v, want 0.25", cfg.StrongAppearance)
	}
	if cfg.ReIDMaxDistance == nil || *cfg.ReIDMaxDistance != 0.5 {
		t.Errorf("ReIDMaxDistance = %v, want 0.5", cfg.ReIDMaxDistance)
	}
	if cfg.ActiveTTL == nil || *cfg.ActiveTTL != "20s" {
		t.Errorf("ActiveTTL = %v, want '20s'", cfg.ActiveTTL)
	}
	if cfg.HistoryTTL == nil || *cfg.HistoryTTL != "45s" {
		t.Errorf("HistoryTTL = %v, want '45s'", cfg.HistoryTTL)
	}
	if cfg.VelocityThreshold == nil || *cfg.VelocityThreshold != 25 {
		t.Errorf("VelocityThreshold = %v, want 25", cfg.VelocityThreshold)
	}
	if cfg.AngleChangeThreshold == nil || *cfg.AngleChangeThreshold != 50 {
		t.Errorf("AngleChangeThreshold = %v, want 50", cfg.AngleChangeThreshold)
	}
	if cfg.AspectRatioThreshold == nil || *cfg.AspectRatioThreshold != 1.8 {
		t.Errorf("AspectRatioThreshold = %v, want 1.8", cfg.AspectRatioThreshold)
	}
	if cfg.ConfidenceThreshold == nil || *cfg.ConfidenceThreshold != 0.85 {
		t.Errorf("ConfidenceThreshold = %v, want 0.85", cfg.ConfidenceThreshold)
	}
	if cfg.HistorySize == nil || *cfg.HistorySize != 6 {
		t.Errorf("HistorySize = %v, want 6", cfg.HistorySize)
	}
	if cfg.MinBoxSize == nil || *cfg.MinBoxSize != 12 {
		t.Errorf("MinBoxSize = %v, want 12", cfg.MinBoxSize)
	}
	if cfg.StaleAfterFrames == nil || *cfg.StaleAfterFrames != 40 {
		t.Errorf("StaleAfterFrames = %v, want 40", cfg.StaleAfterFrames)
	}
	if cfg.ReuseWindow == nil || *cfg.ReuseWindow != "500ms" {
		t.Errorf("ReuseWindow = %v, want '500ms'", cfg.ReuseWindow)
	}
	if cfg.MinDetectionArea == nil || *cfg.MinDetectionArea != 30 {
		t.Errorf("MinDetectionArea = %v, want 30", cfg.MinDetectionArea)
	}
	if cfg.TargetFPS == nil || *cfg.TargetFPS != 15 {
		t.Errorf("TargetFPS = %v, want 15", cfg.TargetFPS)
	}
	if cfg.QueueSize == nil || *cfg.QueueSize != 4 {
		t.Errorf("QueueSize = %v, want 4", cfg.QueueSize)
	}
	if cfg.IdleSleep == nil || *cfg.IdleSleep != "5ms" {
		t.Errorf("IdleSleep = %v, want '5ms'", cfg.IdleSleep)
	}
	if cfg.LogInterval == nil || *cfg.LogInterval != "30s" {
		t.Errorf("LogInterval = %v, want '30s'", cfg.LogInterval)
	}
	if len(cfg.ReconnectDelays) != 2 || cfg.ReconnectDelays[0] != "2s" || cfg.ReconnectDelays[1] != "4s" {
		t.Errorf("ReconnectDelays = %v, want ['2s' '4s']", cfg.ReconnectDelays)
	}
}

func TestGetterDefaults(t *testing.T) {
	// Test that getter methods return expected defaults when pointers are nil
	cfg := &TuningConfig{} // empty config

	if cfg.GetMatchThreshold() != 0.05 {
		t.Errorf("GetMatchThreshold() = %f, want 0.05", cfg.GetMatchThreshold())
	}
	if cfg.GetRelaxedThreshold() != 0.05 {
		t.Errorf("GetRelaxedThreshold() = %f, want 0.05", cfg.GetRelaxedThreshold())
	}
	if cfg.GetStrongAppearance() != 0.3 {
		t.Errorf("GetStrongAppearance() = %f, want 0.3", cfg.GetStrongAppearance())
	}
	if cfg.GetReIDMaxDistance() != 0.4 {
		t.Errorf("GetReIDMaxDistance() = %f, want 0.4", cfg.GetReIDMaxDistance())
	}
	if cfg.GetActiveTTL() != 15*time.Second {
		t.Errorf("GetActiveTTL() = %v, want 15s", cfg.GetActiveTTL())
	}
	if cfg.GetHistoryTTL() != 30*time.Second {
		t.Errorf("GetHistoryTTL() = %v, want 30s", cfg.GetHistoryTTL())
	}
	if cfg.GetVelocityThreshold() != 20 {
		t.Errorf("GetVelocityThreshold() = %f, want 20", cfg.GetVelocityThreshold())
	}
	if cfg.GetAngleChangeThreshold() != 45 {
		t.Errorf("GetAngleChangeThreshold() = %f, want 45", cfg.GetAngleChangeThreshold())
	}
	if cfg.GetAspectRatioThreshold() != 1.5 {
		t.Errorf("GetAspectRatioThreshold() = %f, want 1.5", cfg.GetAspectRatioThreshold())
	}
	if cfg.GetConfidenceThreshold() != 0.8 {
		t.Errorf("GetConfidenceThreshold() = %f, want 0.8", cfg.GetConfidenceThreshold())
	}
	if cfg.GetHistorySize() != 5 {
		t.Errorf("GetHistorySize() = %d, want 5", cfg.GetHistorySize())
	}
	if cfg.GetMinBoxSize() != 10 {
		t.Errorf("GetMinBoxSize() = %f, want 10", cfg.GetMinBoxSize())
	}
	if cfg.GetStaleAfterFrames() != 30 {
		t.Errorf("GetStaleAfterFrames() = %d, want 30", cfg.GetStaleAfterFrames())
	}
	if cfg.GetReuseWindow() != time.Second {
		t.Errorf("GetReuseWindow() = %v, want 1s", cfg.GetReuseWindow())
	}
	if cfg.GetMinDetectionArea() != 20 {
		t.Errorf("GetMinDetectionArea() = %f, want 20", cfg.GetMinDetectionArea())
	}
	if cfg.GetTargetFPS() != 5 {
		t.Errorf("GetTargetFPS() = %f, want 5", cfg.GetTargetFPS())
	}
	if cfg.GetQueueSize() != 2 {
		t.Errorf("GetQueueSize() = %d, want 2", cfg.GetQueueSize())
	}
	if cfg.GetIdleSleep() != 10*time.Millisecond {
		t.Errorf("GetIdleSleep() = %v, want 10ms", cfg.GetIdleSleep())
	}
	if cfg.GetLogInterval() != time.Minute {
		t.Errorf("GetLogInterval() = %v, want 1m", cfg.GetLogInterval())
	}

	delays := cfg.GetReconnectDelays()
	if len(delays) != 5 || delays[0] != time.Second || delays[4] != 30*time.Second {
		t.Errorf("GetReconnectDelays() = %v, want 1s..30s ladder", delays)
	}
}

func TestGetReconnectDelaysSkipsUnparseable(t *testing.T) {
	cfg := &TuningConfig{ReconnectDelays: []string{"2s", "bogus", "4s"}}
	delays := cfg.GetReconnectDelays()
	if len(delays) != 2 || delays[0] != 2*time.Second || delays[1] != 4*time.Second {
		t.Errorf("GetReconnectDelays() = %v, want [2s 4s]", delays)
	}
}
