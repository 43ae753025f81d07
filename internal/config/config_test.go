package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	envVars := []string{
		"CAPTION_ENGINE_CONFIG", "SERVICE_PRINCIPAL", "HTTP_PORT", "LOG_LEVEL",
		"CAPTURE_SCAN_INTERVAL", "CAPTURE_CANDIDATE_TIMEOUT",
		"DIFF_SIMILARITY_THRESHOLD", "FLUSH_WINDOW_BLOCKS",
		"KAFKA_ENABLED", "KAFKA_BROKERS", "KAFKA_PRINCIPAL", "STORE_TAIL_LIMIT",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}

	cfg := Load()

	if cfg.Service.Principal != "svc-caption-ingress" {
		t.Errorf("expected default principal 'svc-caption-ingress', got %s", cfg.Service.Principal)
	}
	if cfg.Capture.ScanInterval != 300*time.Millisecond {
		t.Errorf("expected default scan interval 300ms, got %v", cfg.Capture.ScanInterval)
	}
	if cfg.Capture.CandidateTimeout != 10*time.Second {
		t.Errorf("expected default candidate timeout 10s, got %v", cfg.Capture.CandidateTimeout)
	}
	if cfg.Diff.SimilarityThreshold != 0.6 {
		t.Errorf("expected default similarity threshold 0.6, got %v", cfg.Diff.SimilarityThreshold)
	}
	if cfg.Diff.SharedPrefixRunes != 10 {
		t.Errorf("expected default shared prefix runes 10, got %d", cfg.Diff.SharedPrefixRunes)
	}
	if cfg.Flush.FirstInterval >= cfg.Flush.SteadyInterval {
		t.Errorf("expected first flush interval shorter than steady, got %v >= %v",
			cfg.Flush.FirstInterval, cfg.Flush.SteadyInterval)
	}
	if cfg.Store.TailLimit != 200 {
		t.Errorf("expected default tail limit 200, got %d", cfg.Store.TailLimit)
	}
	if cfg.Kafka.Enabled {
		t.Error("expected Kafka disabled by default")
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("expected default log level 'info', got %s", cfg.Observability.LogLevel)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default configuration should validate, got %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	os.Setenv("SERVICE_PRINCIPAL", "custom-principal")
	os.Setenv("CAPTURE_SCAN_INTERVAL", "500ms")
	os.Setenv("DIFF_SIMILARITY_THRESHOLD", "0.75")
	os.Setenv("FLUSH_WINDOW_BLOCKS", "40")
	os.Setenv("KAFKA_ENABLED", "true")
	os.Setenv("KAFKA_BROKERS", "a:9092,b:9092")

	defer func() {
		os.Unsetenv("SERVICE_PRINCIPAL")
		os.Unsetenv("CAPTURE_SCAN_INTERVAL")
		os.Unsetenv("DIFF_SIMILARITY_THRESHOLD")
		os.Unsetenv("FLUSH_WINDOW_BLOCKS")
		os.Unsetenv("KAFKA_ENABLED")
		os.Unsetenv("KAFKA_BROKERS")
	}()

	cfg := Load()

	if cfg.Service.Principal != "custom-principal" {
		t.Errorf("expected principal 'custom-principal', got %s", cfg.Service.Principal)
	}
	if cfg.Capture.ScanInterval != 500*time.Millisecond {
		t.Errorf("expected scan interval 500ms, got %v", cfg.Capture.ScanInterval)
	}
	if cfg.Diff.SimilarityThreshold != 0.75 {
		t.Errorf("expected similarity threshold 0.75, got %v", cfg.Diff.SimilarityThreshold)
	}
	if cfg.Flush.WindowBlocks != 40 {
		t.Errorf("expected window blocks 40, got %d", cfg.Flush.WindowBlocks)
	}
	if !cfg.Kafka.Enabled {
		t.Error("expected Kafka enabled")
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[0] != "a:9092" {
		t.Errorf("expected brokers [a:9092 b:9092], got %v", cfg.Kafka.Brokers)
	}
}

func TestLoad_TOMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.toml")
	content := `
[capture]
scan_interval = "250ms"

[diff]
similarity_threshold = 0.5

[kafka]
enabled = true
brokers = ["broker-1:9092"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	os.Setenv("CAPTION_ENGINE_CONFIG", path)
	defer os.Unsetenv("CAPTION_ENGINE_CONFIG")

	cfg := Load()

	if cfg.Capture.ScanInterval != 250*time.Millisecond {
		t.Errorf("expected scan interval 250ms from file, got %v", cfg.Capture.ScanInterval)
	}
	if cfg.Diff.SimilarityThreshold != 0.5 {
		t.Errorf("expected similarity threshold 0.5 from file, got %v", cfg.Diff.SimilarityThreshold)
	}
	if !cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) != 1 {
		t.Errorf("expected Kafka config from file, got %+v", cfg.Kafka)
	}
	// Untouched keys keep defaults.
	if cfg.Flush.WindowBlocks != 20 {
		t.Errorf("expected default window blocks 20, got %d", cfg.Flush.WindowBlocks)
	}
}

func TestLoad_InvalidValues_FallbackToDefaults(t *testing.T) {
	os.Setenv("CAPTURE_SCAN_INTERVAL", "not-a-duration")
	os.Setenv("DIFF_SIMILARITY_THRESHOLD", "invalid")
	os.Setenv("FLUSH_WINDOW_BLOCKS", "invalid")
	os.Setenv("KAFKA_ENABLED", "invalid")

	defer func() {
		os.Unsetenv("CAPTURE_SCAN_INTERVAL")
		os.Unsetenv("DIFF_SIMILARITY_THRESHOLD")
		os.Unsetenv("FLUSH_WINDOW_BLOCKS")
		os.Unsetenv("KAFKA_ENABLED")
	}()

	cfg := Load()

	if cfg.Capture.ScanInterval != 300*time.Millisecond {
		t.Errorf("expected default scan interval on invalid input, got %v", cfg.Capture.ScanInterval)
	}
	if cfg.Diff.SimilarityThreshold != 0.6 {
		t.Errorf("expected default similarity threshold on invalid input, got %v", cfg.Diff.SimilarityThreshold)
	}
	if cfg.Flush.WindowBlocks != 20 {
		t.Errorf("expected default window blocks on invalid input, got %d", cfg.Flush.WindowBlocks)
	}
	if cfg.Kafka.Enabled {
		t.Error("expected Kafka disabled on invalid input")
	}
}

func TestLoad_KafkaPrincipal_FallsBackToServicePrincipal(t *testing.T) {
	os.Setenv("SERVICE_PRINCIPAL", "my-service")
	os.Unsetenv("KAFKA_PRINCIPAL")
	defer os.Unsetenv("SERVICE_PRINCIPAL")

	cfg := Load()

	if cfg.Kafka.Principal != "my-service" {
		t.Errorf("expected Kafka principal to fall back to service principal, got %s", cfg.Kafka.Principal)
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Configuration)
	}{
		{"zero scan interval", func(c *Configuration) { c.Capture.ScanInterval = 0 }},
		{"zero candidate timeout", func(c *Configuration) { c.Capture.CandidateTimeout = 0 }},
		{"similarity above 1", func(c *Configuration) { c.Diff.SimilarityThreshold = 1.5 }},
		{"zero window", func(c *Configuration) { c.Flush.WindowBlocks = 0 }},
		{"zero tail limit", func(c *Configuration) { c.Store.TailLimit = 0 }},
		{"growth factor at 1", func(c *Configuration) { c.Correction.MaxGrowthFactor = 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestEnvOrDefaultBool(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		def      bool
		expected bool
	}{
		{"true string", "true", false, true},
		{"false string", "false", true, false},
		{"1", "1", false, true},
		{"0", "0", true, false},
		{"TRUE uppercase", "TRUE", false, true},
		{"invalid", "invalid", true, true},
		{"empty", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_BOOL_VAR"
			if tt.envValue != "" {
				os.Setenv(key, tt.envValue)
			} else {
				os.Unsetenv(key)
			}
			defer os.Unsetenv(key)

			got := envOrDefaultBool(key, tt.def)
			if got != tt.expected {
				t.Errorf("envOrDefaultBool(%s, %v) = %v, want %v", tt.envValue, tt.def, got, tt.expected)
			}
		})
	}
}
