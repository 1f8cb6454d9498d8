package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgallion1/papertrans/internal/chunker"
	"github.com/dgallion1/papertrans/internal/llm"
	"github.com/dgallion1/papertrans/internal/storage"
	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// ErrInvalidConfiguration is wrapped by every Validate failure.
var ErrInvalidConfiguration = errors.New("invalid configuration")

type Config struct {
	Port string

	// Auth for the HTTP API
	APIKey string

	// Chat model
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenAIModel       string
	OpenAITemperature float64
	OpenAIMaxTokens   int
	OpenAITimeout     time.Duration

	// Translation pipeline
	ChunkSize        int
	OverlapSize      int
	MaxRetries       int
	ChunkConcurrency int
	EnableReorder    bool
	IncludeTOC       bool
	IncludeMetadata  bool

	// Object storage
	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOSecure    bool

	// Paper downloads
	DownloadTimeout    time.Duration
	DownloadMaxRetries int
	DownloadUserAgent  string

	// Worker pool
	WorkerCount  int
	MaxQueueSize int

	// Upload limits
	MaxUploadBytes int64

	// Task state
	JobTTL time.Duration

	LogLevel string
	LogFile  string

	// PDF
	PDFFallbackPdftotext bool
}

const defaultUserAgent = "Mozilla/5.0 (compatible; papertrans/1.0; +https://github.com/dgallion1/papertrans)"

// source resolves a setting. The process environment wins over the YAML
// file named by PAPERTRANS_CONFIG.
type source struct {
	file map[string]string
}

// Load reads .env (if present), the optional YAML file, and the
// environment. YAML keys are the lower-cased variable names.
func Load() (Config, error) {
	_ = godotenv.Load()

	src := source{}
	if path := os.Getenv("PAPERTRANS_CONFIG"); path != "" {
		file, err := readFile(path)
		if err != nil {
			return Config{}, err
		}
		src.file = file
	}
	return src.load(), nil
}

func readFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		out[strings.ToLower(k)] = fmt.Sprint(v)
	}
	return out, nil
}

func (s source) load() Config {
	chunk := chunker.DefaultConfig()
	cfg := Config{
		Port: s.envOr("PORT", "8000"),

		APIKey: s.envOr("PAPERTRANS_API_KEY", ""),

		OpenAIAPIKey:      s.envOr("OPENAI_API_KEY", ""),
		OpenAIBaseURL:     s.envOr("OPENAI_BASE_URL", ""),
		OpenAIModel:       s.envOr("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAITemperature: s.envFloat("OPENAI_TEMPERATURE", 0.3),
		OpenAIMaxTokens:   s.envInt("OPENAI_MAX_TOKENS", 4000),
		OpenAITimeout:     s.envDuration("OPENAI_TIMEOUT", 60*time.Second),

		ChunkSize:        s.envInt("CHUNK_SIZE", chunk.ChunkSize),
		OverlapSize:      s.envInt("OVERLAP_SIZE", chunk.OverlapSize),
		MaxRetries:       s.envInt("MAX_RETRIES", 3),
		ChunkConcurrency: s.envInt("CHUNK_CONCURRENCY", 1),
		EnableReorder:    s.envBool("ENABLE_REORDER", false),
		IncludeTOC:       s.envBool("INCLUDE_TOC", true),
		IncludeMetadata:  s.envBool("INCLUDE_METADATA", true),

		MinIOEndpoint:  s.envOr("MINIO_ENDPOINT", "localhost:9000"),
		MinIOAccessKey: s.envOr("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey: s.envOr("MINIO_SECRET_KEY", ""),
		MinIOBucket:    s.envOr("MINIO_BUCKET_NAME", "papers"),
		MinIOSecure:    s.envBool("MINIO_SECURE", false),

		DownloadTimeout:    s.envDuration("DOWNLOAD_TIMEOUT", 60*time.Second),
		DownloadMaxRetries: s.envInt("DOWNLOAD_MAX_RETRIES", 3),
		DownloadUserAgent:  s.envOr("DOWNLOAD_USER_AGENT", defaultUserAgent),

		WorkerCount:  s.envInt("WORKER_COUNT", 2),
		MaxQueueSize: s.envInt("MAX_QUEUE_SIZE", 100),

		MaxUploadBytes: s.envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB

		JobTTL: s.envDuration("JOB_TTL", 24*time.Hour),

		LogLevel: s.envOr("LOG_LEVEL", "info"),
		LogFile:  s.envOr("LOG_FILE", ""),

		PDFFallbackPdftotext: s.envBool("PDF_FALLBACK_PDFTOTEXT", true),
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.ChunkConcurrency <= 0 {
		cfg.ChunkConcurrency = 1
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 24 * time.Hour
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = 60 * time.Second
	}

	return cfg
}

// Validate checks the settings needed to translate a document.
func (c Config) Validate() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("%w: OPENAI_API_KEY is required", ErrInvalidConfiguration)
	}
	if err := c.ChunkConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	if c.OpenAITemperature < 0 || c.OpenAITemperature > 1 {
		return fmt.Errorf("%w: OPENAI_TEMPERATURE must be between 0 and 1, got %g", ErrInvalidConfiguration, c.OpenAITemperature)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: MAX_RETRIES must not be negative", ErrInvalidConfiguration)
	}
	return nil
}

// ValidateServer additionally checks what the HTTP service needs.
func (c Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.APIKey == "" {
		return fmt.Errorf("%w: PAPERTRANS_API_KEY is required", ErrInvalidConfiguration)
	}
	if c.MinIOEndpoint == "" || c.MinIOAccessKey == "" || c.MinIOSecretKey == "" {
		return fmt.Errorf("%w: MINIO_ENDPOINT, MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required", ErrInvalidConfiguration)
	}
	return nil
}

func (c Config) ChunkConfig() chunker.Config {
	return chunker.Config{ChunkSize: c.ChunkSize, OverlapSize: c.OverlapSize}
}

func (c Config) LLMConfig() llm.Config {
	return llm.Config{
		APIKey:      c.OpenAIAPIKey,
		BaseURL:     c.OpenAIBaseURL,
		Model:       c.OpenAIModel,
		Temperature: float32(c.OpenAITemperature),
		MaxTokens:   c.OpenAIMaxTokens,
		Timeout:     c.OpenAITimeout,
	}
}

func (c Config) MinIOConfig() storage.MinIOConfig {
	return storage.MinIOConfig{
		Endpoint:  c.MinIOEndpoint,
		AccessKey: c.MinIOAccessKey,
		SecretKey: c.MinIOSecretKey,
		Bucket:    c.MinIOBucket,
		Secure:    c.MinIOSecure,
	}
}

// Level maps LOG_LEVEL to a slog level, defaulting to info.
func (c Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func (s source) lookup(key string) (string, bool) {
	if v := os.Getenv(key); v != "" {
		return v, true
	}
	v, ok := s.file[strings.ToLower(key)]
	return v, ok && v != ""
}

func (s source) envOr(key, fallback string) string {
	if v, ok := s.lookup(key); ok {
		return v
	}
	return fallback
}

func (s source) envInt(key string, fallback int) int {
	if v, ok := s.lookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func (s source) envInt64(key string, fallback int64) int64 {
	if v, ok := s.lookup(key); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func (s source) envFloat(key string, fallback float64) float64 {
	if v, ok := s.lookup(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func (s source) envBool(key string, fallback bool) bool {
	if v, ok := s.lookup(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func (s source) envDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := s.lookup(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		// Bare numbers are seconds.
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}
