// Package config loads engine configuration from an optional TOML file with
// environment variable overrides. Every empirically tuned constant of the
// capture pipeline (similarity threshold, debounce intervals, candidate
// timeout) lives here so deployments can adjust responsiveness without a
// rebuild.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// ServiceConfig identifies the service instance.
type ServiceConfig struct {
	Principal string `toml:"principal"`
	HTTPPort  string `toml:"http_port"`
}

// CaptureConfig tunes source discovery and the scan loop.
type CaptureConfig struct {
	ScanInterval     time.Duration `toml:"scan_interval"`
	PollInterval     time.Duration `toml:"poll_interval"`
	CandidateTimeout time.Duration `toml:"candidate_timeout"`
	MutationWindow   time.Duration `toml:"mutation_window"`
	MutationMinHits  int           `toml:"mutation_min_hits"`
	HeightCeiling    float64       `toml:"height_ceiling"`
	MinPollChanges   int           `toml:"min_poll_changes"`
}

// DiffConfig tunes the disappearance and similarity heuristics.
type DiffConfig struct {
	SimilarityThreshold float64 `toml:"similarity_threshold"`
	MinPrefixLength     int     `toml:"min_prefix_length"`
	SharedPrefixRunes   int     `toml:"shared_prefix_runes"`
}

// FlushConfig tunes the debounced push to the translation sink.
type FlushConfig struct {
	FirstInterval   time.Duration `toml:"first_interval"`
	SteadyInterval  time.Duration `toml:"steady_interval"`
	WindowBlocks    int           `toml:"window_blocks"`
	CheckpointEvery int           `toml:"checkpoint_every"`
}

// CorrectionConfig tunes the asynchronous grammar correction pass.
type CorrectionConfig struct {
	Enabled         bool    `toml:"enabled"`
	MaxGrowthFactor float64 `toml:"max_growth_factor"`
}

// AssistConfig tunes AI-assist query assembly.
type AssistConfig struct {
	DebounceWindow  time.Duration `toml:"debounce_window"`
	ContextBlocks   int           `toml:"context_blocks"`
	DocExcerptRunes int           `toml:"doc_excerpt_runes"`
}

// ProviderConfig configures the chat-completion provider endpoint.
type ProviderConfig struct {
	Name           string `toml:"name"`
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// KafkaConfig configures the translation sink publisher.
type KafkaConfig struct {
	Enabled   bool     `toml:"enabled"`
	Brokers   []string `toml:"brokers"`
	Topic     string   `toml:"topic"`
	Principal string   `toml:"principal"`
}

// StoreConfig configures transcript persistence.
type StoreConfig struct {
	Path          string        `toml:"path"`
	TailLimit     int           `toml:"tail_limit"`
	SessionMaxAge time.Duration `toml:"session_max_age"`
}

// ObservabilityConfig configures logging and the metrics endpoint.
type ObservabilityConfig struct {
	LogLevel    string `toml:"log_level"`
	MetricsAddr string `toml:"metrics_addr"`
}

// Configuration is the root configuration for the caption engine.
type Configuration struct {
	Service       ServiceConfig       `toml:"service"`
	Capture       CaptureConfig       `toml:"capture"`
	Diff          DiffConfig          `toml:"diff"`
	Flush         FlushConfig         `toml:"flush"`
	Correction    CorrectionConfig    `toml:"correction"`
	Assist        AssistConfig        `toml:"assist"`
	Provider      ProviderConfig      `toml:"provider"`
	Kafka         KafkaConfig         `toml:"kafka"`
	Store         StoreConfig         `toml:"store"`
	Observability ObservabilityConfig `toml:"observability"`
}

// Default returns the baseline configuration.
func Default() *Configuration {
	return &Configuration{
		Service: ServiceConfig{
			Principal: "svc-caption-ingress",
			HTTPPort:  "8080",
		},
		Capture: CaptureConfig{
			ScanInterval:     300 * time.Millisecond,
			PollInterval:     1 * time.Second,
			CandidateTimeout: 10 * time.Second,
			MutationWindow:   3 * time.Second,
			MutationMinHits:  3,
			HeightCeiling:    320,
			MinPollChanges:   2,
		},
		Diff: DiffConfig{
			SimilarityThreshold: 0.6,
			MinPrefixLength:     8,
			SharedPrefixRunes:   10,
		},
		Flush: FlushConfig{
			FirstInterval:   1 * time.Second,
			SteadyInterval:  3 * time.Second,
			WindowBlocks:    20,
			CheckpointEvery: 5,
		},
		Correction: CorrectionConfig{
			Enabled:         true,
			MaxGrowthFactor: 2.0,
		},
		Assist: AssistConfig{
			DebounceWindow:  2 * time.Second,
			ContextBlocks:   30,
			DocExcerptRunes: 600,
		},
		Provider: ProviderConfig{
			Name:           "mock",
			BaseURL:        "https://api.openai.com/v1/chat/completions",
			Model:          "gpt-4o-mini",
			TimeoutSeconds: 30,
		},
		Kafka: KafkaConfig{
			Enabled: false,
			Topic:   "caption.transcript.window",
		},
		Store: StoreConfig{
			Path:          "caption-engine.db",
			TailLimit:     200,
			SessionMaxAge: 12 * time.Hour,
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			MetricsAddr: ":9090",
		},
	}
}

// Load builds the configuration: defaults, then the TOML file named by
// CAPTION_ENGINE_CONFIG (if set and readable), then env overrides.
func Load() *Configuration {
	cfg := Default()

	if path := os.Getenv("CAPTION_ENGINE_CONFIG"); path != "" {
		if data, err := os.ReadFile(path); err == nil {
			// A broken file falls back to defaults rather than aborting.
			_ = toml.Unmarshal(data, cfg)
		}
	}

	applyEnvOverrides(cfg)
	return cfg
}

func applyEnvOverrides(cfg *Configuration) {
	cfg.Service.Principal = envOrDefault("SERVICE_PRINCIPAL", cfg.Service.Principal)
	cfg.Service.HTTPPort = envOrDefault("HTTP_PORT", cfg.Service.HTTPPort)

	cfg.Capture.ScanInterval = envOrDefaultDuration("CAPTURE_SCAN_INTERVAL", cfg.Capture.ScanInterval)
	cfg.Capture.PollInterval = envOrDefaultDuration("CAPTURE_POLL_INTERVAL", cfg.Capture.PollInterval)
	cfg.Capture.CandidateTimeout = envOrDefaultDuration("CAPTURE_CANDIDATE_TIMEOUT", cfg.Capture.CandidateTimeout)

	cfg.Diff.SimilarityThreshold = envOrDefaultFloat("DIFF_SIMILARITY_THRESHOLD", cfg.Diff.SimilarityThreshold)

	cfg.Flush.FirstInterval = envOrDefaultDuration("FLUSH_FIRST_INTERVAL", cfg.Flush.FirstInterval)
	cfg.Flush.SteadyInterval = envOrDefaultDuration("FLUSH_STEADY_INTERVAL", cfg.Flush.SteadyInterval)
	cfg.Flush.WindowBlocks = envOrDefaultInt("FLUSH_WINDOW_BLOCKS", cfg.Flush.WindowBlocks)

	cfg.Correction.Enabled = envOrDefaultBool("CORRECTION_ENABLED", cfg.Correction.Enabled)

	cfg.Provider.Name = envOrDefault("PROVIDER_NAME", cfg.Provider.Name)
	cfg.Provider.BaseURL = envOrDefault("PROVIDER_BASE_URL", cfg.Provider.BaseURL)
	cfg.Provider.APIKey = envOrDefault("PROVIDER_API_KEY", cfg.Provider.APIKey)
	cfg.Provider.Model = envOrDefault("PROVIDER_MODEL", cfg.Provider.Model)

	cfg.Kafka.Enabled = envOrDefaultBool("KAFKA_ENABLED", cfg.Kafka.Enabled)
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}
	cfg.Kafka.Topic = envOrDefault("KAFKA_TOPIC", cfg.Kafka.Topic)
	cfg.Kafka.Principal = envOrDefault("KAFKA_PRINCIPAL", cfg.Kafka.Principal)
	if cfg.Kafka.Principal == "" {
		cfg.Kafka.Principal = cfg.Service.Principal
	}

	cfg.Store.Path = envOrDefault("STORE_PATH", cfg.Store.Path)
	cfg.Store.TailLimit = envOrDefaultInt("STORE_TAIL_LIMIT", cfg.Store.TailLimit)

	cfg.Observability.LogLevel = envOrDefault("LOG_LEVEL", cfg.Observability.LogLevel)
	cfg.Observability.MetricsAddr = envOrDefault("METRICS_ADDR", cfg.Observability.MetricsAddr)
}

// Validate rejects configurations the engine cannot run with.
func (c *Configuration) Validate() error {
	var problems []string
	if c.Capture.ScanInterval <= 0 {
		problems = append(problems, "capture.scan_interval must be positive")
	}
	if c.Capture.CandidateTimeout <= 0 {
		problems = append(problems, "capture.candidate_timeout must be positive")
	}
	if c.Diff.SimilarityThreshold <= 0 || c.Diff.SimilarityThreshold > 1 {
		problems = append(problems, "diff.similarity_threshold must be in (0, 1]")
	}
	if c.Flush.WindowBlocks <= 0 {
		problems = append(problems, "flush.window_blocks must be positive")
	}
	if c.Flush.CheckpointEvery <= 0 {
		problems = append(problems, "flush.checkpoint_every must be positive")
	}
	if c.Store.TailLimit <= 0 {
		problems = append(problems, "store.tail_limit must be positive")
	}
	if c.Correction.MaxGrowthFactor <= 1 {
		problems = append(problems, "correction.max_growth_factor must exceed 1")
	}
	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(strings.ToLower(v)); err == nil {
			return parsed
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return def
}

// String renders a short human-readable summary for startup logging.
func (c *Configuration) String() string {
	return fmt.Sprintf("scan=%s similarity=%.2f flush=%s/%s window=%d provider=%s kafka=%v",
		c.Capture.ScanInterval, c.Diff.SimilarityThreshold,
		c.Flush.FirstInterval, c.Flush.SteadyInterval, c.Flush.WindowBlocks,
		c.Provider.Name, c.Kafka.Enabled)
}
