// Package config loads service configuration from defaults, an optional YAML
// file and environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/thorwhalen/pacing/internal/agent/auditor"
	"github.com/thorwhalen/pacing/internal/faults"
	"github.com/thorwhalen/pacing/internal/service/session"
)

// Config represents the complete service configuration.
type Config struct {
	Service       ServiceConfig       `yaml:"service"`
	Session       SessionConfig       `yaml:"session"`
	Audio         AudioConfig         `yaml:"audio"`
	STT           STTConfig           `yaml:"stt"`
	Auditor       auditor.Config      `yaml:"auditor"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServiceConfig holds process identity and listener ports.
type ServiceConfig struct {
	Principal   string `yaml:"principal"`
	HTTPPort    string `yaml:"http_port"`
	MetricsPort string `yaml:"metrics_port"`
	GRPCPort    string `yaml:"grpc_port"`
}

// SessionConfig holds the retention mode and the archive location.
type SessionConfig struct {
	Mode        string `yaml:"mode"` // persist|dev or ephemeral|prod
	ArchivePath string `yaml:"archive_path"`
}

// AudioConfig configures the generated audio source.
type AudioConfig struct {
	SampleRate    int           `yaml:"sample_rate"`
	ChunkDuration time.Duration `yaml:"chunk_duration"`
	TotalChunks   int           `yaml:"total_chunks"` // 0 = until stopped
	Realtime      bool          `yaml:"realtime"`
}

// STTConfig selects and configures the transcriber.
type STTConfig struct {
	Provider      string `yaml:"provider"` // mock, google
	LanguageCode  string `yaml:"language_code"`
	SampleRateHz  int    `yaml:"sample_rate_hz"`
	AudioEncoding string `yaml:"audio_encoding"`

	MockLatency            time.Duration `yaml:"mock_latency"`
	MockBaseConfidence     float64       `yaml:"mock_base_confidence"`
	MockConfidenceVariance float64       `yaml:"mock_confidence_variance"`
	MockLowConfidenceRate  float64       `yaml:"mock_low_confidence_rate"`
	Adaptive               bool          `yaml:"adaptive"`
	Seed                   int64         `yaml:"seed"` // 0 = time based
}

// KafkaConfig configures the event publisher.
type KafkaConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Brokers      []string `yaml:"brokers"`
	TopicPartial string   `yaml:"topic_partial"`
	TopicFinal   string   `yaml:"topic_final"`
	TopicReview  string   `yaml:"topic_review"`
	Principal    string   `yaml:"principal"`
	RelayEvents  bool     `yaml:"relay_events"`
}

// ObservabilityConfig configures logging.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Principal:   "svc-pacing",
			HTTPPort:    "8080",
			MetricsPort: "9090",
			GRPCPort:    "50051",
		},
		Session: SessionConfig{
			Mode:        "ephemeral",
			ArchivePath: "data/pacing.db",
		},
		Audio: AudioConfig{
			SampleRate:    16000,
			ChunkDuration: 100 * time.Millisecond,
			TotalChunks:   600,
			Realtime:      true,
		},
		STT: STTConfig{
			Provider:               "mock",
			LanguageCode:           "en-US",
			SampleRateHz:           16000,
			AudioEncoding:          "LINEAR16",
			MockLatency:            50 * time.Millisecond,
			MockBaseConfidence:     0.85,
			MockConfidenceVariance: 0.10,
			MockLowConfidenceRate:  0.15,
		},
		Auditor: auditor.DefaultConfig(),
		Kafka: KafkaConfig{
			TopicPartial: "pacing.transcript.partial",
			TopicFinal:   "pacing.transcript.final",
			TopicReview:  "pacing.review.flagged",
			RelayEvents:  true,
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
	}
}

// Load returns the defaults overridden by environment variables. Invalid
// values fall back to the previous value.
func Load() *Config {
	cfg := Default()
	cfg.applyEnv()
	return cfg
}

// LoadFile overlays the YAML file at path on the defaults, applies
// environment overrides and validates the result.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Service.Principal = envOrDefault("SERVICE_PRINCIPAL", c.Service.Principal)
	c.Service.HTTPPort = envOrDefault("HTTP_PORT", c.Service.HTTPPort)
	c.Service.MetricsPort = envOrDefault("METRICS_PORT", c.Service.MetricsPort)
	c.Service.GRPCPort = envOrDefault("GRPC_PORT", c.Service.GRPCPort)

	c.Session.Mode = envOrDefault("PACING_MODE", c.Session.Mode)
	c.Session.ArchivePath = envOrDefault("ARCHIVE_PATH", c.Session.ArchivePath)

	c.Audio.SampleRate = envOrDefaultInt("AUDIO_SAMPLE_RATE_HZ", c.Audio.SampleRate)
	c.Audio.ChunkDuration = envOrDefaultDuration("AUDIO_CHUNK_DURATION", c.Audio.ChunkDuration)
	c.Audio.TotalChunks = envOrDefaultInt("AUDIO_TOTAL_CHUNKS", c.Audio.TotalChunks)
	c.Audio.Realtime = envOrDefaultBool("AUDIO_REALTIME", c.Audio.Realtime)

	c.STT.Provider = envOrDefault("STT_PROVIDER", c.STT.Provider)
	c.STT.LanguageCode = envOrDefault("STT_LANGUAGE_CODE", c.STT.LanguageCode)
	c.STT.SampleRateHz = envOrDefaultInt("STT_SAMPLE_RATE_HZ", c.STT.SampleRateHz)
	c.STT.AudioEncoding = envOrDefault("STT_AUDIO_ENCODING", c.STT.AudioEncoding)
	c.STT.MockLatency = envOrDefaultDuration("STT_MOCK_LATENCY", c.STT.MockLatency)
	c.STT.MockBaseConfidence = envOrDefaultFloat("STT_MOCK_BASE_CONFIDENCE", c.STT.MockBaseConfidence)
	c.STT.MockConfidenceVariance = envOrDefaultFloat("STT_MOCK_CONFIDENCE_VARIANCE", c.STT.MockConfidenceVariance)
	c.STT.MockLowConfidenceRate = envOrDefaultFloat("STT_MOCK_LOW_CONFIDENCE_RATE", c.STT.MockLowConfidenceRate)
	c.STT.Adaptive = envOrDefaultBool("STT_ADAPTIVE", c.STT.Adaptive)
	c.STT.Seed = int64(envOrDefaultInt("STT_SEED", int(c.STT.Seed)))

	c.Auditor.ConfidenceThreshold = envOrDefaultFloat("AUDITOR_CONFIDENCE_THRESHOLD", c.Auditor.ConfidenceThreshold)
	c.Auditor.MaxQueueSize = envOrDefaultInt("AUDITOR_MAX_QUEUE_SIZE", c.Auditor.MaxQueueSize)
	c.Auditor.FlagMedicalTerms = envOrDefaultBool("AUDITOR_FLAG_MEDICAL_TERMS", c.Auditor.FlagMedicalTerms)
	c.Auditor.MedicalTerms = envOrDefaultList("AUDITOR_MEDICAL_TERMS", c.Auditor.MedicalTerms)

	c.Kafka.Enabled = envOrDefaultBool("KAFKA_ENABLED", c.Kafka.Enabled)
	c.Kafka.Brokers = envOrDefaultList("KAFKA_BROKERS", c.Kafka.Brokers)
	c.Kafka.TopicPartial = envOrDefault("KAFKA_TOPIC_PARTIAL", c.Kafka.TopicPartial)
	c.Kafka.TopicFinal = envOrDefault("KAFKA_TOPIC_FINAL", c.Kafka.TopicFinal)
	c.Kafka.TopicReview = envOrDefault("KAFKA_TOPIC_REVIEW", c.Kafka.TopicReview)
	c.Kafka.Principal = envOrDefault("KAFKA_PRINCIPAL", c.Kafka.Principal)
	c.Kafka.RelayEvents = envOrDefaultBool("KAFKA_RELAY_EVENTS", c.Kafka.RelayEvents)
	if c.Kafka.Principal == "" {
		c.Kafka.Principal = c.Service.Principal
	}

	c.Observability.LogLevel = envOrDefault("LOG_LEVEL", c.Observability.LogLevel)
	c.Observability.LogFormat = envOrDefault("LOG_FORMAT", c.Observability.LogFormat)
}

// Retention returns the parsed session retention mode.
func (c *Config) Retention() (session.Retention, error) {
	return session.ParseRetention(c.Session.Mode)
}

// Validate checks the configuration. Errors are *faults.ConfigError, possibly
// wrapped.
func (c *Config) Validate() error {
	if _, err := c.Retention(); err != nil {
		return &faults.ConfigError{Field: "session.mode", Reason: err.Error()}
	}
	switch c.STT.Provider {
	case "mock", "google":
	default:
		return &faults.ConfigError{Field: "stt.provider", Reason: fmt.Sprintf("unknown provider %q", c.STT.Provider)}
	}
	if c.STT.SampleRateHz <= 0 {
		return &faults.ConfigError{Field: "stt.sample_rate_hz", Reason: "must be positive"}
	}
	if c.STT.MockBaseConfidence < 0 || c.STT.MockBaseConfidence > 1 {
		return &faults.ConfigError{Field: "stt.mock_base_confidence", Reason: "must be within [0,1]"}
	}
	if c.STT.MockLowConfidenceRate < 0 || c.STT.MockLowConfidenceRate > 1 {
		return &faults.ConfigError{Field: "stt.mock_low_confidence_rate", Reason: "must be within [0,1]"}
	}
	if c.Audio.SampleRate <= 0 {
		return &faults.ConfigError{Field: "audio.sample_rate", Reason: "must be positive"}
	}
	if c.Audio.ChunkDuration <= 0 {
		return &faults.ConfigError{Field: "audio.chunk_duration", Reason: "must be positive"}
	}
	if c.Audio.TotalChunks < 0 {
		return &faults.ConfigError{Field: "audio.total_chunks", Reason: "must not be negative"}
	}
	if err := c.Auditor.Validate(); err != nil {
		return fmt.Errorf("auditor config: %w", err)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return &faults.ConfigError{Field: "kafka.brokers", Reason: "required when kafka is enabled"}
	}
	if _, err := zerolog.ParseLevel(c.Observability.LogLevel); err != nil {
		return &faults.ConfigError{Field: "observability.log_level", Reason: err.Error()}
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
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// envOrDefaultList splits a comma-separated value, dropping empty entries.
func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
