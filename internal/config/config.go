package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is built once at startup from the environment and validated before
// anything else runs. No other package reads env vars after this point.
type Config struct {
	// Catalog service
	CatalogURL    string
	CatalogAPIKey string

	// Translation service
	TranslateAPIKey  string
	TranslateBaseURL string
	// TranslateModels is tried in order; later entries are fallbacks used
	// when an earlier model exhausts its rate-limit budget or is rejected.
	TranslateModels []string

	// Pipeline shape
	TargetLanguages []string
	Workers         int
	LanguageFanout  int
	BatchSize       int

	// TranscribeConcurrency bounds speech-to-text subprocesses across all
	// items; 1 keeps engine invocations strictly sequential.
	TranscribeConcurrency int

	// Retry policy
	MaxAttempts int
	ItemRetries int
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// Stage timeouts and pacing
	DownloadTimeout   time.Duration
	ExtractTimeout    time.Duration
	TranscribeTimeout time.Duration
	TranslateTimeout  time.Duration
	InterBatchDelay   time.Duration

	// Translation strictness and verification policy
	StrictTranslation  bool
	MinArtifactBytes   int64
	PlaceholderMarkers []string

	// External tools
	FFmpegBin    string
	WhisperBin   string
	WhisperModel string

	// Storage
	WorkDir   string
	OutputDir string

	// Optional behavior
	UploadEnabled bool
	ReportPath    string
}

// FromEnv reads the environment into a Config with defaults applied.
// Call Validate before use.
func FromEnv() Config {
	return Config{
		CatalogURL:    os.Getenv("CATALOG_URL"),
		CatalogAPIKey: os.Getenv("CATALOG_API_KEY"),

		TranslateAPIKey:  os.Getenv("TRANSLATE_API_KEY"),
		TranslateBaseURL: os.Getenv("TRANSLATE_BASE_URL"),
		TranslateModels:  splitList(envOr("TRANSLATE_MODELS", "gpt-4o-mini,gpt-3.5-turbo")),

		TargetLanguages: splitList(envOr("TARGET_LANGUAGES", "es,fr,de")),
		Workers:         envInt("WORKERS", 3),
		LanguageFanout:  envInt("LANGUAGE_FANOUT", 1),
		BatchSize:       envInt("TRANSLATE_BATCH_SIZE", 30),

		TranscribeConcurrency: envInt("TRANSCRIBE_CONCURRENCY", 1),

		MaxAttempts: envInt("MAX_ATTEMPTS", 4),
		ItemRetries: envInt("ITEM_RETRIES", 3),
		BackoffBase: envDuration("BACKOFF_BASE", 2*time.Second),
		BackoffCap:  envDuration("BACKOFF_CAP", 60*time.Second),

		DownloadTimeout:   envDuration("DOWNLOAD_TIMEOUT", 10*time.Minute),
		ExtractTimeout:    envDuration("EXTRACT_TIMEOUT", 10*time.Minute),
		TranscribeTimeout: envDuration("TRANSCRIBE_TIMEOUT", 20*time.Minute),
		TranslateTimeout:  envDuration("TRANSLATE_TIMEOUT", 2*time.Minute),
		InterBatchDelay:   envDuration("INTER_BATCH_DELAY", time.Second),

		StrictTranslation:  envBool("STRICT_TRANSLATION", true),
		MinArtifactBytes:   int64(envInt("MIN_ARTIFACT_BYTES", 200)),
		PlaceholderMarkers: splitList(envOr("PLACEHOLDER_MARKERS", "[UNTRANSLATED],[MISSING],TRANSLATION FAILED")),

		FFmpegBin:    envOr("FFMPEG_BIN", "ffmpeg"),
		WhisperBin:   envOr("WHISPER_BIN", "whisper"),
		WhisperModel: envOr("WHISPER_MODEL", "base"),

		WorkDir:   envOr("WORK_DIR", "work"),
		OutputDir: envOr("OUTPUT_DIR", "subtitles"),

		UploadEnabled: envBool("UPLOAD_ENABLED", false),
		ReportPath:    os.Getenv("REPORT_PATH"),
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	if c.CatalogURL == "" {
		return fmt.Errorf("CATALOG_URL is required")
	}
	if c.CatalogAPIKey == "" {
		return fmt.Errorf("CATALOG_API_KEY is required")
	}
	if c.TranslateAPIKey == "" {
		return fmt.Errorf("TRANSLATE_API_KEY is required")
	}
	if len(c.TranslateModels) == 0 {
		return fmt.Errorf("TRANSLATE_MODELS must name at least one model")
	}
	if len(c.TargetLanguages) == 0 {
		return fmt.Errorf("TARGET_LANGUAGES must name at least one language")
	}
	if c.Workers < 1 {
		return fmt.Errorf("WORKERS must be >= 1, got %d", c.Workers)
	}
	if c.LanguageFanout < 1 {
		return fmt.Errorf("LANGUAGE_FANOUT must be >= 1, got %d", c.LanguageFanout)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("TRANSLATE_BATCH_SIZE must be >= 1, got %d", c.BatchSize)
	}
	if c.TranscribeConcurrency < 1 {
		return fmt.Errorf("TRANSCRIBE_CONCURRENCY must be >= 1, got %d", c.TranscribeConcurrency)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("MAX_ATTEMPTS must be >= 1, got %d", c.MaxAttempts)
	}
	if c.ItemRetries < 0 {
		return fmt.Errorf("ITEM_RETRIES must be >= 0, got %d", c.ItemRetries)
	}
	if c.BackoffBase <= 0 || c.BackoffCap < c.BackoffBase {
		return fmt.Errorf("backoff window invalid: base=%s cap=%s", c.BackoffBase, c.BackoffCap)
	}
	if c.MinArtifactBytes < 0 {
		return fmt.Errorf("MIN_ARTIFACT_BYTES must be >= 0, got %d", c.MinArtifactBytes)
	}
	return nil
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

func envBool(k string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(k)))
	switch v {
	case "":
		return def
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}

func envDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return d
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
