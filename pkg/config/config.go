// Package config resolves the process configuration once at startup
// from the environment. The resolved snapshot is read-only; every
// component receives it by reference and never mutates it.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Provider selects the chat endpoint implementation.
type Provider string

// Supported providers.
const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderAzure     Provider = "azure"
)

// Config is the resolved configuration snapshot.
type Config struct {
	// Chat endpoint selection
	Provider           Provider
	Model              string
	Temperature        float32
	ChatBaseURL        string
	ProviderAPIKey     string
	ProviderEndpoint   string
	ProviderDeployment string

	// Issue sources
	RemoteAPIToken string
	MockDir        string

	// Filesystem layout
	IngressDir   string
	ProcessedDir string
	PoisonedDir  string
	OutputDir    string

	// Run index store. DSN empty selects SQLite at RunIndexPath.
	RunIndexPath string
	RunIndexDSN  string

	// Token accounting
	NominalContextWindow int
	PricingFile          string

	// Watcher tuning
	WatcherPollInterval  time.Duration
	WatcherQuietInterval time.Duration
	WatcherWorkers       int

	// Pipeline
	StageTimeout time.Duration

	// Front-ends
	RPCConcurrency int
	HTTPPort       string

	LogLevel slog.Level
}

// FromEnv builds the configuration snapshot from the environment,
// applying defaults for everything unset. Call once at startup, after
// godotenv has loaded any .env file.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Provider:             Provider(getEnv("PROVIDER", string(ProviderAnthropic))),
		Model:                getEnv("MODEL", "anthropic/claude-3-5-sonnet-20241022"),
		ChatBaseURL:          os.Getenv("CHAT_BASE_URL"),
		ProviderAPIKey:       os.Getenv("PROVIDER_API_KEY"),
		ProviderEndpoint:     os.Getenv("PROVIDER_ENDPOINT"),
		ProviderDeployment:   os.Getenv("PROVIDER_DEPLOYMENT"),
		RemoteAPIToken:       os.Getenv("REMOTE_API_TOKEN"),
		MockDir:              getEnv("MOCK_DIR", "./mock_issues"),
		IngressDir:           getEnv("INGRESS_DIR", "./ingress"),
		ProcessedDir:         getEnv("PROCESSED_DIR", "./processed"),
		PoisonedDir:          getEnv("POISONED_DIR", "./poisoned"),
		OutputDir:            getEnv("OUTPUT_DIR", "./output"),
		RunIndexPath:         getEnv("RUN_INDEX_PATH", "./data/pipeline.db"),
		RunIndexDSN:          os.Getenv("RUN_INDEX_DSN"),
		PricingFile:          os.Getenv("PRICING_FILE"),
		HTTPPort:             getEnv("HTTP_PORT", "8080"),
	}

	var err error
	if cfg.Temperature, err = envFloat32("TEMPERATURE", 0.2); err != nil {
		return nil, err
	}
	if cfg.NominalContextWindow, err = envInt("NOMINAL_CONTEXT_WINDOW", 200_000); err != nil {
		return nil, err
	}
	pollMS, err := envInt("WATCHER_POLL_INTERVAL_MS", 500)
	if err != nil {
		return nil, err
	}
	quietMS, err := envInt("WATCHER_QUIET_INTERVAL_MS", 1000)
	if err != nil {
		return nil, err
	}
	cfg.WatcherPollInterval = time.Duration(pollMS) * time.Millisecond
	cfg.WatcherQuietInterval = time.Duration(quietMS) * time.Millisecond
	if cfg.WatcherWorkers, err = envInt("WATCHER_WORKERS", 1); err != nil {
		return nil, err
	}
	stageTimeoutS, err := envInt("STAGE_TIMEOUT_S", 120)
	if err != nil {
		return nil, err
	}
	cfg.StageTimeout = time.Duration(stageTimeoutS) * time.Second
	if cfg.RPCConcurrency, err = envInt("RPC_CONCURRENCY", 4); err != nil {
		return nil, err
	}
	if cfg.LogLevel, err = parseLogLevel(getEnv("LOG_LEVEL", "info")); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Provider {
	case ProviderAnthropic, ProviderOpenAI, ProviderAzure:
	default:
		return fmt.Errorf("provider must be one of anthropic, openai, azure; got %q", c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("model must not be empty")
	}
	if c.Temperature < 0 {
		return fmt.Errorf("temperature must be non-negative, got %v", c.Temperature)
	}
	if c.NominalContextWindow <= 0 {
		return fmt.Errorf("nominal_context_window must be positive, got %d", c.NominalContextWindow)
	}
	if c.WatcherWorkers < 1 {
		return fmt.Errorf("watcher_workers must be >= 1, got %d", c.WatcherWorkers)
	}
	if c.RPCConcurrency < 1 {
		return fmt.Errorf("rpc_concurrency must be >= 1, got %d", c.RPCConcurrency)
	}
	if c.Provider == ProviderAzure && c.ProviderEndpoint == "" {
		return fmt.Errorf("provider_endpoint is required for the azure provider")
	}
	return nil
}

// EnsureDirs creates the working directories (ingress, processed,
// poisoned, output, run-index parent, watcher staging) if absent.
func (c *Config) EnsureDirs() error {
	dirs := []string{
		c.IngressDir,
		c.ProcessedDir,
		c.PoisonedDir,
		c.OutputDir,
		c.StagingDir(),
		filepath.Dir(c.RunIndexPath),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// StagingDir is the watcher's exclusivity-check directory, a sibling
// of ingress so renames into it stay on the same filesystem.
func (c *Config) StagingDir() string {
	return filepath.Join(filepath.Dir(strings.TrimRight(c.IngressDir, "/")), "staging")
}

// SetupLogging installs the process-wide slog handler at the
// configured level, writing to stderr so stdout stays free for the
// JSON-RPC transport.
func (c *Config) SetupLogging() {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: c.LogLevel})
	slog.SetDefault(slog.New(handler))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: expected integer, got %q", key, raw)
	}
	return v, nil
}

func envFloat32(key string, defaultValue float32) (float32, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseFloat(raw, 32)
	if err != nil {
		return 0, fmt.Errorf("%s: expected float, got %q", key, raw)
	}
	return float32(v), nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(raw) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("log_level must be one of debug, info, warn, error; got %q", raw)
	}
}
