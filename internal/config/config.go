// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
)

// Config holds the application configuration shared by the sync daemon and
// the reference book server.
type Config struct {
	App     AppConfig
	Logger  LoggerConfig
	Store   StoreConfig
	Remote  RemoteConfig
	Network NetworkConfig
	Sync    SyncConfig
	Cache   CacheConfig
	Covers  CoversConfig
	Server  ServerConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// StoreConfig holds local persistence configuration.
type StoreConfig struct {
	DataPath string // Directory holding the local store (default: ~/ShelfSync/data)
	Backend  string // badger or sqlite (default: badger)
}

// RemoteConfig holds the book server client configuration.
type RemoteConfig struct {
	BaseURL           string
	Timeout           time.Duration // Per-request timeout; expiry counts as a network failure (default: 10s)
	RequestsPerSecond float64
	Burst             int
}

// NetworkConfig holds connectivity probing configuration.
type NetworkConfig struct {
	ProbeURL      string // Defaults to {API_URL}/health
	ProbeInterval time.Duration
}

// SyncConfig holds pending queue replay configuration.
type SyncConfig struct {
	// RetryInterval drains the queue periodically while online. Zero disables.
	RetryInterval time.Duration
}

// CacheConfig holds query cache configuration.
type CacheConfig struct {
	StaleTime time.Duration
}

// CoversConfig holds cover lookup configuration.
type CoversConfig struct {
	OpenLibraryURL string
	CoversURL      string
}

// ServerConfig holds reference server configuration.
type ServerConfig struct {
	Port         string        // Server port (default: 3001)
	ReadTimeout  time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout time.Duration // HTTP write timeout (default: 15s)
	IdleTimeout  time.Duration // HTTP idle timeout (default: 60s)
	UploadPath   string        // Directory for uploaded cover images (default: {data}/uploads)
}

// LoadConfig loads configuration from os.Args.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

// Load loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("shelfsync", flag.ContinueOnError)

	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := fs.String("data-path", "", "Directory for the local store")
	storeBackend := fs.String("store-backend", "", "Local store backend (badger, sqlite)")

	apiURL := fs.String("api-url", "", "Book server base URL")
	remoteTimeout := fs.String("remote-timeout", "", "Remote request timeout (default: 10s)")
	remoteRPS := fs.String("remote-rps", "", "Remote requests per second (default: 10)")
	remoteBurst := fs.String("remote-burst", "", "Remote request burst (default: 20)")

	probeURL := fs.String("probe-url", "", "Reachability probe URL (default: {api-url}/health)")
	probeInterval := fs.String("probe-interval", "", "Reachability probe interval (default: 15s)")
	retryInterval := fs.String("sync-retry-interval", "", "Periodic drain interval while online, 0 disables (default: 1m)")
	staleTime := fs.String("cache-stale-time", "", "Query cache stale time (default: 30s)")

	openLibraryURL := fs.String("open-library-url", "", "OpenLibrary search base URL")
	coversURL := fs.String("covers-url", "", "OpenLibrary covers base URL")

	serverPort := fs.String("port", "", "Server port (default: 3001)")
	readTimeout := fs.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := fs.String("write-timeout", "", "HTTP write timeout (default: 15s)")
	idleTimeout := fs.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	uploadPath := fs.String("upload-path", "", "Directory for uploaded images")

	envFile := fs.String("env-file", ".env", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	// godotenv never overrides variables already present in the environment.
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file %q: %w", *envFile, err)
	}

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Store: StoreConfig{
			DataPath: getConfigValue(*dataPath, "DATA_PATH", ""),
			Backend:  strings.ToLower(getConfigValue(*storeBackend, "STORE_BACKEND", BackendBadger)),
		},
		Remote: RemoteConfig{
			BaseURL: strings.TrimRight(getConfigValue(*apiURL, "API_URL", "http://localhost:3001"), "/"),
			Burst:   getIntConfigValue(*remoteBurst, "REMOTE_BURST", 20),
		},
		Network: NetworkConfig{
			ProbeURL: getConfigValue(*probeURL, "PROBE_URL", ""),
		},
		Covers: CoversConfig{
			OpenLibraryURL: getConfigValue(*openLibraryURL, "OPEN_LIBRARY_URL", "https://openlibrary.org"),
			CoversURL:      getConfigValue(*coversURL, "COVERS_URL", "https://covers.openlibrary.org"),
		},
		Server: ServerConfig{
			Port:       getConfigValue(*serverPort, "SERVER_PORT", "3001"),
			UploadPath: getConfigValue(*uploadPath, "UPLOAD_PATH", ""),
		},
	}

	rps, err := strconv.ParseFloat(getConfigValue(*remoteRPS, "REMOTE_RPS", "10"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid remote rps: %w", err)
	}
	cfg.Remote.RequestsPerSecond = rps

	durations := []struct {
		name       string
		flagValue  string
		envKey     string
		defaultVal string
		dst        *time.Duration
	}{
		{"remote timeout", *remoteTimeout, "REMOTE_TIMEOUT", "10s", &cfg.Remote.Timeout},
		{"probe interval", *probeInterval, "PROBE_INTERVAL", "15s", &cfg.Network.ProbeInterval},
		{"sync retry interval", *retryInterval, "SYNC_RETRY_INTERVAL", "1m", &cfg.Sync.RetryInterval},
		{"cache stale time", *staleTime, "CACHE_STALE_TIME", "30s", &cfg.Cache.StaleTime},
		{"read timeout", *readTimeout, "SERVER_READ_TIMEOUT", "15s", &cfg.Server.ReadTimeout},
		{"write timeout", *writeTimeout, "SERVER_WRITE_TIMEOUT", "15s", &cfg.Server.WriteTimeout},
		{"idle timeout", *idleTimeout, "SERVER_IDLE_TIMEOUT", "60s", &cfg.Server.IdleTimeout},
	}
	for _, d := range durations {
		raw := getConfigValue(d.flagValue, d.envKey, d.defaultVal)
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", d.name, raw, err)
		}
		*d.dst = parsed
	}

	if cfg.Network.ProbeURL == "" {
		cfg.Network.ProbeURL = cfg.Remote.BaseURL + "/health"
	}

	if err := cfg.expandDataPath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}
	if err := cfg.expandUploadPath(); err != nil {
		return nil, fmt.Errorf("invalid upload path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Store.DataPath == "" {
		return errors.New("data path cannot be empty after expansion")
	}
	if c.Store.Backend != BackendBadger && c.Store.Backend != BackendSQLite {
		return fmt.Errorf("invalid store backend: %s (must be badger or sqlite)", c.Store.Backend)
	}

	if err := validateHTTPURL("API_URL", c.Remote.BaseURL); err != nil {
		return err
	}
	if err := validateHTTPURL("PROBE_URL", c.Network.ProbeURL); err != nil {
		return err
	}

	if c.Remote.Timeout <= 0 {
		return errors.New("REMOTE_TIMEOUT must be positive")
	}
	if c.Remote.RequestsPerSecond <= 0 || c.Remote.Burst <= 0 {
		return errors.New("REMOTE_RPS and REMOTE_BURST must be positive")
	}
	if c.Network.ProbeInterval <= 0 {
		return errors.New("PROBE_INTERVAL must be positive")
	}
	if c.Sync.RetryInterval < 0 {
		return errors.New("SYNC_RETRY_INTERVAL cannot be negative")
	}
	if c.Cache.StaleTime < 0 {
		return errors.New("CACHE_STALE_TIME cannot be negative")
	}

	return nil
}

func validateHTTPURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid %s %q: scheme must be http or https", key, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid %s %q: missing host", key, raw)
	}
	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

func (c *Config) expandDataPath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	expanded, err := expandPath(c.Store.DataPath, filepath.Join(homeDir, "ShelfSync", "data"))
	if err != nil {
		return err
	}
	c.Store.DataPath = expanded
	return nil
}

// expandUploadPath defaults to {data}/uploads.
func (c *Config) expandUploadPath() error {
	expanded, err := expandPath(c.Server.UploadPath, filepath.Join(c.Store.DataPath, "uploads"))
	if err != nil {
		return err
	}
	c.Server.UploadPath = expanded
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	result, err := strconv.Atoi(strValue)
	if err != nil {
		return defaultValue
	}
	return result
}
