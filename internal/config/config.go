// Package config loads service configuration from the environment, an optional
// .env file and an optional settings file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Policy values accepted by the pipeline.
const (
	EmptyTranscriptPersist = "persist"
	EmptyTranscriptReject  = "reject"

	AnalysisFailureDrop    = "drop"
	AnalysisFailurePartial = "partial"
)

// Configuration is the fully resolved service configuration.
type Configuration struct {
	Service       ServiceConfig
	STT           STTConfig
	TextAnalytics TextAnalyticsConfig
	Database      DatabaseConfig
	Storage       StorageConfig
	Kafka         KafkaConfig
	Pipeline      PipelineConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name     string
	HTTPPort string
	Env      string
}

type STTConfig struct {
	Provider           string // google, mock
	Credential         string // service account file or API key
	Region             string
	LanguageCode       string
	RecognitionTimeout time.Duration
}

type TextAnalyticsConfig struct {
	Endpoint        string
	Credential      string
	Language        string
	RequestTimeout  time.Duration
	MaxRetryElapsed time.Duration
}

type DatabaseConfig struct {
	ConnectionString string
	AutoMigrate      bool
	MaxOpenConns     int
	MaxIdleConns     int
	LogLevel         string
}

type StorageConfig struct {
	Provider  string // s3, local
	Container string
	LocalDir  string
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

type KafkaConfig struct {
	Enabled         bool
	Brokers         []string
	BlobEventsTopic string
	CompletedTopic  string
	FailedTopic     string
	GroupID         string
	Workers         int
	Principal       string
}

type PipelineConfig struct {
	TempDir               string
	EmptyTranscriptPolicy string
	AnalysisFailurePolicy string
	TempMaxAge            time.Duration
	TempSweepInterval     time.Duration
}

type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string
}

// ValidationError reports every missing or invalid setting at once.
type ValidationError struct {
	Missing []string
	Invalid []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required settings: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid settings: "+strings.Join(e.Invalid, ", "))
	}
	return "config: " + strings.Join(parts, "; ")
}

// envBindings maps configuration keys to the environment variables that set them.
var envBindings = map[string]string{
	"service.name":      "SERVICE_NAME",
	"service.http_port": "HTTP_PORT",
	"service.env":       "ENV",

	"stt.provider":            "STT_PROVIDER",
	"stt.credential":          "SPEECH_API_KEY_CREDENTIAL",
	"stt.region":              "SPEECH_API_REGION",
	"stt.language_code":       "STT_LANGUAGE_CODE",
	"stt.recognition_timeout": "RECOGNITION_TIMEOUT",

	"text_analytics.endpoint":          "TEXT_ANALYTICS_ENDPOINT",
	"text_analytics.credential":        "TEXT_ANALYTICS_API_KEY_CREDENTIAL",
	"text_analytics.language":          "TEXT_ANALYTICS_LANGUAGE",
	"text_analytics.request_timeout":   "TEXT_ANALYTICS_REQUEST_TIMEOUT",
	"text_analytics.max_retry_elapsed": "TEXT_ANALYTICS_MAX_RETRY_ELAPSED",

	"database.connection_string": "TRANSCRIPTION_DATABASE_CONNECTION_STRING",
	"database.auto_migrate":      "DATABASE_AUTO_MIGRATE",
	"database.max_open_conns":    "DATABASE_MAX_OPEN_CONNS",
	"database.max_idle_conns":    "DATABASE_MAX_IDLE_CONNS",
	"database.log_level":         "DATABASE_LOG_LEVEL",

	"storage.provider":   "BLOB_PROVIDER",
	"storage.container":  "BLOB_CONTAINER",
	"storage.local_dir":  "BLOB_LOCAL_DIR",
	"storage.bucket":     "S3_BUCKET",
	"storage.region":     "S3_REGION",
	"storage.endpoint":   "S3_ENDPOINT",
	"storage.access_key": "S3_ACCESS_KEY",
	"storage.secret_key": "S3_SECRET_KEY",

	"kafka.enabled":           "KAFKA_ENABLED",
	"kafka.brokers":           "KAFKA_BROKERS",
	"kafka.blob_events_topic": "BLOB_EVENTS_TOPIC",
	"kafka.completed_topic":   "COMPLETED_TOPIC",
	"kafka.failed_topic":      "FAILED_TOPIC",
	"kafka.group_id":          "KAFKA_GROUP_ID",
	"kafka.workers":           "KAFKA_WORKERS",
	"kafka.principal":         "SERVICE_PRINCIPAL",

	"pipeline.temp_dir":                "TEMP_DIR",
	"pipeline.empty_transcript_policy": "EMPTY_TRANSCRIPT_POLICY",
	"pipeline.analysis_failure_policy": "ANALYSIS_FAILURE_POLICY",
	"pipeline.temp_max_age":            "TEMP_MAX_AGE",
	"pipeline.temp_sweep_interval":     "TEMP_SWEEP_INTERVAL",

	"observability.log_level":  "LOG_LEVEL",
	"observability.log_format": "LOG_FORMAT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "speech-insights-service")
	v.SetDefault("service.http_port", "8080")
	v.SetDefault("service.env", "prod")

	v.SetDefault("stt.provider", "google")
	v.SetDefault("stt.language_code", "en-US")
	v.SetDefault("stt.recognition_timeout", "10m")

	v.SetDefault("text_analytics.language", "en")
	v.SetDefault("text_analytics.request_timeout", "15s")
	v.SetDefault("text_analytics.max_retry_elapsed", "20s")

	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.container", "incoming")
	v.SetDefault("storage.local_dir", "./data/blobs")
	v.SetDefault("storage.region", "us-east-1")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.blob_events_topic", "storage.blob.created")
	v.SetDefault("kafka.completed_topic", "transcription.completed")
	v.SetDefault("kafka.failed_topic", "transcription.failed")
	v.SetDefault("kafka.group_id", "speech-insights-service")
	v.SetDefault("kafka.workers", 4)
	v.SetDefault("kafka.principal", "svc-speech-insights")

	v.SetDefault("pipeline.temp_dir", filepath.Join(os.TempDir(), "speech-insights"))
	v.SetDefault("pipeline.empty_transcript_policy", EmptyTranscriptPersist)
	v.SetDefault("pipeline.analysis_failure_policy", AnalysisFailureDrop)
	v.SetDefault("pipeline.temp_max_age", "1h")
	v.SetDefault("pipeline.temp_sweep_interval", "10m")

	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.log_format", "json")
}

// Load reads configuration and validates it. A .env file in the working
// directory is loaded first when present; CONFIG_FILE names an optional
// yaml or json settings file. Environment variables take precedence.
func Load() (*Configuration, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", env, err)
		}
	}

	if file := os.Getenv("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", file, err)
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) *Configuration {
	return &Configuration{
		Service: ServiceConfig{
			Name:     v.GetString("service.name"),
			HTTPPort: v.GetString("service.http_port"),
			Env:      v.GetString("service.env"),
		},
		STT: STTConfig{
			Provider:           strings.ToLower(v.GetString("stt.provider")),
			Credential:         v.GetString("stt.credential"),
			Region:             v.GetString("stt.region"),
			LanguageCode:       v.GetString("stt.language_code"),
			RecognitionTimeout: durationOrDefault(v.GetDuration("stt.recognition_timeout"), 10*time.Minute),
		},
		TextAnalytics: TextAnalyticsConfig{
			Endpoint:        strings.TrimRight(v.GetString("text_analytics.endpoint"), "/"),
			Credential:      v.GetString("text_analytics.credential"),
			Language:        v.GetString("text_analytics.language"),
			RequestTimeout:  durationOrDefault(v.GetDuration("text_analytics.request_timeout"), 15*time.Second),
			MaxRetryElapsed: durationOrDefault(v.GetDuration("text_analytics.max_retry_elapsed"), 20*time.Second),
		},
		Database: DatabaseConfig{
			ConnectionString: v.GetString("database.connection_string"),
			AutoMigrate:      v.GetBool("database.auto_migrate"),
			MaxOpenConns:     intOrDefault(v.GetInt("database.max_open_conns"), 10),
			MaxIdleConns:     intOrDefault(v.GetInt("database.max_idle_conns"), 5),
			LogLevel:         v.GetString("database.log_level"),
		},
		Storage: StorageConfig{
			Provider:  strings.ToLower(v.GetString("storage.provider")),
			Container: v.GetString("storage.container"),
			LocalDir:  v.GetString("storage.local_dir"),
			Bucket:    v.GetString("storage.bucket"),
			Region:    v.GetString("storage.region"),
			Endpoint:  v.GetString("storage.endpoint"),
			AccessKey: v.GetString("storage.access_key"),
			SecretKey: v.GetString("storage.secret_key"),
		},
		Kafka: KafkaConfig{
			Enabled:         v.GetBool("kafka.enabled"),
			Brokers:         splitList(v.GetString("kafka.brokers")),
			BlobEventsTopic: v.GetString("kafka.blob_events_topic"),
			CompletedTopic:  v.GetString("kafka.completed_topic"),
			FailedTopic:     v.GetString("kafka.failed_topic"),
			GroupID:         v.GetString("kafka.group_id"),
			Workers:         intOrDefault(v.GetInt("kafka.workers"), 4),
			Principal:       v.GetString("kafka.principal"),
		},
		Pipeline: PipelineConfig{
			TempDir:               v.GetString("pipeline.temp_dir"),
			EmptyTranscriptPolicy: strings.ToLower(v.GetString("pipeline.empty_transcript_policy")),
			AnalysisFailurePolicy: strings.ToLower(v.GetString("pipeline.analysis_failure_policy")),
			TempMaxAge:            durationOrDefault(v.GetDuration("pipeline.temp_max_age"), time.Hour),
			TempSweepInterval:     durationOrDefault(v.GetDuration("pipeline.temp_sweep_interval"), 10*time.Minute),
		},
		Observability: ObservabilityConfig{
			LogLevel:  strings.ToLower(v.GetString("observability.log_level")),
			LogFormat: strings.ToLower(v.GetString("observability.log_format")),
		},
	}
}

// Validate checks that every required setting is present and that enumerated
// settings hold a known value.
func (c *Configuration) Validate() error {
	verr := &ValidationError{}

	required := []struct {
		env   string
		value string
		skip  bool
	}{
		{"TEXT_ANALYTICS_ENDPOINT", c.TextAnalytics.Endpoint, false},
		{"TEXT_ANALYTICS_API_KEY_CREDENTIAL", c.TextAnalytics.Credential, false},
		{"SPEECH_API_KEY_CREDENTIAL", c.STT.Credential, c.STT.Provider == "mock"},
		{"SPEECH_API_REGION", c.STT.Region, c.STT.Provider == "mock"},
		{"TRANSCRIPTION_DATABASE_CONNECTION_STRING", c.Database.ConnectionString, false},
	}
	for _, r := range required {
		if !r.skip && strings.TrimSpace(r.value) == "" {
			verr.Missing = append(verr.Missing, r.env)
		}
	}

	if c.STT.Provider != "google" && c.STT.Provider != "mock" {
		verr.Invalid = append(verr.Invalid, "STT_PROVIDER="+c.STT.Provider)
	}
	switch c.Storage.Provider {
	case "local":
	case "s3":
		if c.Storage.Bucket == "" {
			verr.Missing = append(verr.Missing, "S3_BUCKET")
		}
	default:
		verr.Invalid = append(verr.Invalid, "BLOB_PROVIDER="+c.Storage.Provider)
	}
	if p := c.Pipeline.EmptyTranscriptPolicy; p != EmptyTranscriptPersist && p != EmptyTranscriptReject {
		verr.Invalid = append(verr.Invalid, "EMPTY_TRANSCRIPT_POLICY="+p)
	}
	if p := c.Pipeline.AnalysisFailurePolicy; p != AnalysisFailureDrop && p != AnalysisFailurePartial {
		verr.Invalid = append(verr.Invalid, "ANALYSIS_FAILURE_POLICY="+p)
	}
	// the sweeper must never reach a file whose recognition is still running
	if c.Pipeline.TempMaxAge > 0 && c.STT.RecognitionTimeout > 0 && c.Pipeline.TempMaxAge <= c.STT.RecognitionTimeout {
		verr.Invalid = append(verr.Invalid, fmt.Sprintf("TEMP_MAX_AGE=%s (must exceed RECOGNITION_TIMEOUT=%s)",
			c.Pipeline.TempMaxAge, c.STT.RecognitionTimeout))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		verr.Missing = append(verr.Missing, "KAFKA_BROKERS")
	}

	if len(verr.Missing) > 0 || len(verr.Invalid) > 0 {
		return verr
	}
	return nil
}

func durationOrDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func intOrDefault(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
