// Package config loads service configuration from defaults, an optional
// YAML file and environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration is the full service configuration.
type Configuration struct {
	Service       ServiceConfig       `yaml:"service"`
	STT           STTConfig           `yaml:"stt"`
	Audio         AudioConfig         `yaml:"audio"`
	SegmentLimits SegmentLimitsConfig `yaml:"segmentLimits"`
	Session       SessionConfig       `yaml:"session"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	NATS          NATSConfig          `yaml:"nats"`
	Archive       ArchiveConfig       `yaml:"archive"`
	Clipboard     ClipboardConfig     `yaml:"clipboard"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServiceConfig holds service identity and listeners.
type ServiceConfig struct {
	Principal       string        `yaml:"principal"`
	GRPCPort        string        `yaml:"grpcPort"`
	HTTPPort        string        `yaml:"httpPort"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// STTConfig selects and configures the recognition provider.
type STTConfig struct {
	Provider        string        `yaml:"provider"` // mock | google
	LanguageCode    string        `yaml:"languageCode"`
	SampleRateHz    int           `yaml:"sampleRateHz"`
	InterimResults  bool          `yaml:"interimResults"`
	AudioEncoding   string        `yaml:"audioEncoding"`
	MaxAlternatives int           `yaml:"maxAlternatives"`
	MockStep        time.Duration `yaml:"mockStep"`
	MockPauseAfter  int           `yaml:"mockPauseAfter"`
}

// AudioConfig controls the audio pump. An empty Source disables it;
// "-" reads from stdin.
type AudioConfig struct {
	Source        string        `yaml:"source"`
	FrameSize     int           `yaml:"frameSize"`
	FrameInterval time.Duration `yaml:"frameInterval"`
}

// SegmentLimitsConfig bounds a single provider run.
type SegmentLimitsConfig struct {
	MaxAudioBytes int64         `yaml:"maxAudioBytes"`
	MaxDuration   time.Duration `yaml:"maxDuration"`
	MaxFrames     int           `yaml:"maxFrames"`
}

// SessionConfig configures the session controller.
type SessionConfig struct {
	RestartDelay time.Duration `yaml:"restartDelay"`
	ResetOnStart bool          `yaml:"resetOnStart"`
	AutoStart    bool          `yaml:"autoStart"`
}

// KafkaConfig configures the Kafka transcript publisher.
type KafkaConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Brokers      []string `yaml:"brokers"`
	TopicPartial string   `yaml:"topicPartial"`
	TopicFinal   string   `yaml:"topicFinal"`
	Principal    string   `yaml:"principal"`
}

// NATSConfig configures the NATS transcript publisher.
type NATSConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subjectPrefix"`
}

// ArchiveConfig configures the sqlite archive of finished sessions.
type ArchiveConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

// ClipboardConfig enables copying the transcript when a session ends.
type ClipboardConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ObservabilityConfig configures logging and the metrics server.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"logLevel"`
	LogFormat   string `yaml:"logFormat"`
	MetricsPort string `yaml:"metricsPort"`
}

// Default returns the built-in configuration.
func Default() *Configuration {
	return &Configuration{
		Service: ServiceConfig{
			Principal:       "svc-speech-transcript",
			GRPCPort:        "50051",
			HTTPPort:        "8080",
			ShutdownTimeout: 10 * time.Second,
		},
		STT: STTConfig{
			Provider:        "mock",
			LanguageCode:    "en-US",
			SampleRateHz:    8000,
			InterimResults:  true,
			AudioEncoding:   "LINEAR16",
			MaxAlternatives: 3,
			MockStep:        300 * time.Millisecond,
			MockPauseAfter:  2,
		},
		Audio: AudioConfig{
			FrameSize:     1600,
			FrameInterval: 100 * time.Millisecond,
		},
		SegmentLimits: SegmentLimitsConfig{
			MaxAudioBytes: 5 * 1024 * 1024,
			MaxDuration:   290 * time.Second,
			MaxFrames:     10000,
		},
		Session: SessionConfig{
			RestartDelay: 100 * time.Millisecond,
		},
		Kafka: KafkaConfig{
			TopicPartial: "transcripts.partial",
			TopicFinal:   "transcripts.final",
		},
		NATS: NATSConfig{
			URL:           "nats://127.0.0.1:4222",
			SubjectPrefix: "transcripts",
		},
		Archive: ArchiveConfig{
			Path:      "transcripts.db",
			Retention: 30 * 24 * time.Hour,
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			MetricsPort: "9090",
		},
	}
}

// Load builds the configuration. The file named by CONFIG_FILE, if any,
// overrides defaults and environment variables override both.
func Load() (*Configuration, error) {
	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

func loadFile(cfg *Configuration, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Configuration) {
	cfg.Service.Principal = envOrDefault("SERVICE_PRINCIPAL", cfg.Service.Principal)
	cfg.Service.GRPCPort = envOrDefault("GRPC_PORT", cfg.Service.GRPCPort)
	cfg.Service.HTTPPort = envOrDefault("HTTP_PORT", cfg.Service.HTTPPort)
	cfg.Service.ShutdownTimeout = envOrDefaultDuration("SHUTDOWN_TIMEOUT", cfg.Service.ShutdownTimeout)

	cfg.STT.Provider = envOrDefault("STT_PROVIDER", cfg.STT.Provider)
	cfg.STT.LanguageCode = envOrDefault("STT_LANGUAGE_CODE", cfg.STT.LanguageCode)
	cfg.STT.SampleRateHz = envOrDefaultInt("STT_SAMPLE_RATE_HZ", cfg.STT.SampleRateHz)
	cfg.STT.InterimResults = envOrDefaultBool("STT_INTERIM_RESULTS", cfg.STT.InterimResults)
	cfg.STT.AudioEncoding = envOrDefault("STT_AUDIO_ENCODING", cfg.STT.AudioEncoding)
	cfg.STT.MaxAlternatives = envOrDefaultInt("STT_MAX_ALTERNATIVES", cfg.STT.MaxAlternatives)
	cfg.STT.MockStep = envOrDefaultDuration("STT_MOCK_STEP", cfg.STT.MockStep)
	cfg.STT.MockPauseAfter = envOrDefaultInt("STT_MOCK_PAUSE_AFTER", cfg.STT.MockPauseAfter)

	cfg.Audio.Source = envOrDefault("AUDIO_SOURCE", cfg.Audio.Source)
	cfg.Audio.FrameSize = envOrDefaultInt("AUDIO_FRAME_SIZE", cfg.Audio.FrameSize)
	cfg.Audio.FrameInterval = envOrDefaultDuration("AUDIO_FRAME_INTERVAL", cfg.Audio.FrameInterval)

	cfg.SegmentLimits.MaxAudioBytes = envOrDefaultInt64("SEGMENT_MAX_AUDIO_BYTES", cfg.SegmentLimits.MaxAudioBytes)
	cfg.SegmentLimits.MaxDuration = envOrDefaultDuration("SEGMENT_MAX_DURATION", cfg.SegmentLimits.MaxDuration)
	cfg.SegmentLimits.MaxFrames = envOrDefaultInt("SEGMENT_MAX_FRAMES", cfg.SegmentLimits.MaxFrames)

	cfg.Session.RestartDelay = envOrDefaultDuration("SESSION_RESTART_DELAY", cfg.Session.RestartDelay)
	cfg.Session.ResetOnStart = envOrDefaultBool("SESSION_RESET_ON_START", cfg.Session.ResetOnStart)
	cfg.Session.AutoStart = envOrDefaultBool("SESSION_AUTO_START", cfg.Session.AutoStart)

	cfg.Kafka.Enabled = envOrDefaultBool("KAFKA_ENABLED", cfg.Kafka.Enabled)
	cfg.Kafka.Brokers = envOrDefaultList("KAFKA_BROKERS", cfg.Kafka.Brokers)
	cfg.Kafka.TopicPartial = envOrDefault("KAFKA_TOPIC_PARTIAL", cfg.Kafka.TopicPartial)
	cfg.Kafka.TopicFinal = envOrDefault("KAFKA_TOPIC_FINAL", cfg.Kafka.TopicFinal)
	// Kafka principal falls back to the service principal
	cfg.Kafka.Principal = envOrDefault("KAFKA_PRINCIPAL", cfg.Kafka.Principal)
	if cfg.Kafka.Principal == "" {
		cfg.Kafka.Principal = cfg.Service.Principal
	}

	cfg.NATS.Enabled = envOrDefaultBool("NATS_ENABLED", cfg.NATS.Enabled)
	cfg.NATS.URL = envOrDefault("NATS_URL", cfg.NATS.URL)
	cfg.NATS.SubjectPrefix = envOrDefault("NATS_SUBJECT_PREFIX", cfg.NATS.SubjectPrefix)

	cfg.Archive.Enabled = envOrDefaultBool("ARCHIVE_ENABLED", cfg.Archive.Enabled)
	cfg.Archive.Path = envOrDefault("ARCHIVE_PATH", cfg.Archive.Path)
	cfg.Archive.Retention = envOrDefaultDuration("ARCHIVE_RETENTION", cfg.Archive.Retention)

	cfg.Clipboard.Enabled = envOrDefaultBool("CLIPBOARD_ENABLED", cfg.Clipboard.Enabled)

	cfg.Observability.LogLevel = envOrDefault("LOG_LEVEL", cfg.Observability.LogLevel)
	cfg.Observability.LogFormat = envOrDefault("LOG_FORMAT", cfg.Observability.LogFormat)
	cfg.Observability.MetricsPort = envOrDefault("METRICS_PORT", cfg.Observability.MetricsPort)
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

func envOrDefaultInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
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
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
