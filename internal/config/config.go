// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Storage holds the manifest/content storage backend settings.
type Storage struct {
	// Backend is "local" or "s3" (default: "local").
	Backend string

	// S3
	S3Endpoint  string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3UseSSL    bool
	S3Prefix    string
}

// Indexer holds configuration for the manifest builder CLI.
type Indexer struct {
	LogLevel  string
	LogFormat string

	// ArchiveRoot is the directory that gets scanned.
	ArchiveRoot string
	// PublicRoot is the directory URL paths are computed against.
	PublicRoot string
	// ManifestKey is where the manifest is written, relative to the
	// storage backend root (PublicRoot for local).
	ManifestKey string

	Storage Storage
}

// Browse holds configuration for the terminal browser.
type Browse struct {
	LogLevel  string
	LogFormat string

	// ServerURL is the archive server the browser talks to.
	ServerURL   string
	AuthToken   string
	ManifestKey string
	HistoryFile string

	// PreviewDir receives rendered previews; empty means the system temp
	// directory.
	PreviewDir   string
	PreviewWidth int
}

// Config holds all server configuration.
type Config struct {
	// Server
	ListenAddr  string
	MetricsAddr string

	// Logging
	LogLevel  string
	LogFormat string

	// Archive
	PublicRoot    string
	ManifestKey   string
	WatchManifest bool
	AnalysisFile  string

	Storage Storage

	// Metadata overlay store ("memory", "postgres", "sqlite", "redis")
	MetadataBackend string
	DatabaseURL     string
	SQLitePath      string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int

	// Auth (gate is open when neither is set)
	JWTSecret     string
	OIDCIssuerURL string
	OIDCClientID  string

	// Preview
	PreviewRenderer  string
	PreviewCacheSize int
	PreviewTimeout   time.Duration
}

// Load reads server configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:       envOr("LISTEN_ADDR", ":8080"),
		MetricsAddr:      envOr("METRICS_ADDR", ":9090"),
		LogLevel:         envOr("LOG_LEVEL", "info"),
		LogFormat:        envOr("LOG_FORMAT", "json"),
		PublicRoot:       envOr("PUBLIC_ROOT", "public"),
		ManifestKey:      envOr("MANIFEST_KEY", "pdf-index.json"),
		WatchManifest:    envBool("WATCH_MANIFEST", true),
		AnalysisFile:     envOr("ANALYSIS_FILE", ""),
		Storage:          loadStorage(),
		MetadataBackend:  envOr("METADATA_BACKEND", "memory"),
		DatabaseURL:      envOr("DATABASE_URL", ""),
		SQLitePath:       envOr("SQLITE_PATH", "data/metadata.db"),
		RedisAddr:        envOr("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:    envOr("REDIS_PASSWORD", ""),
		RedisDB:          envInt("REDIS_DB", 0),
		JWTSecret:        envOr("AUTH_JWT_SECRET", ""),
		OIDCIssuerURL:    envOr("OIDC_ISSUER_URL", ""),
		OIDCClientID:     envOr("OIDC_CLIENT_ID", ""),
		PreviewRenderer:  envOr("PREVIEW_RENDERER", "pdftoppm"),
		PreviewCacheSize: envInt("PREVIEW_CACHE_SIZE", 256),
		PreviewTimeout:   envDuration("PREVIEW_TIMEOUT", 20*time.Second),
	}

	switch cfg.MetadataBackend {
	case "memory", "sqlite", "redis":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres metadata backend")
		}
	default:
		return nil, fmt.Errorf("unknown METADATA_BACKEND: %s", cfg.MetadataBackend)
	}
	if err := cfg.Storage.validate(); err != nil {
		return nil, err
	}
	if cfg.OIDCIssuerURL != "" && cfg.OIDCClientID == "" {
		return nil, fmt.Errorf("OIDC_CLIENT_ID is required when OIDC_ISSUER_URL is set")
	}

	return cfg, nil
}

// LoadIndexer reads the manifest builder configuration. The indexer takes
// no flags; everything comes from the environment.
func LoadIndexer() (*Indexer, error) {
	cfg := &Indexer{
		LogLevel:    envOr("LOG_LEVEL", "info"),
		LogFormat:   envOr("LOG_FORMAT", "console"),
		ArchiveRoot: envOr("ARCHIVE_ROOT", "public/data"),
		PublicRoot:  envOr("PUBLIC_ROOT", "public"),
		ManifestKey: envOr("MANIFEST_KEY", "pdf-index.json"),
		Storage:     loadStorage(),
	}
	if err := cfg.Storage.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadBrowse reads the terminal browser configuration. Logging defaults to
// warnings only so log lines do not interleave with the prompt.
func LoadBrowse() (*Browse, error) {
	cfg := &Browse{
		LogLevel:    envOr("LOG_LEVEL", "warn"),
		LogFormat:   envOr("LOG_FORMAT", "console"),
		ServerURL:   envOr("DOCARCHIVE_URL", "http://localhost:8080"),
		AuthToken:   os.Getenv("DOCARCHIVE_TOKEN"),
		ManifestKey: envOr("MANIFEST_KEY", "pdf-index.json"),
		HistoryFile: envOr("BROWSE_HISTORY_FILE", ".docarchive_history"),

		PreviewDir:   os.Getenv("BROWSE_PREVIEW_DIR"),
		PreviewWidth: envInt("BROWSE_PREVIEW_WIDTH", 300),
	}
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("DOCARCHIVE_URL is required")
	}
	return cfg, nil
}

func loadStorage() Storage {
	return Storage{
		Backend:     envOr("MANIFEST_BACKEND", "local"),
		S3Endpoint:  envOr("S3_ENDPOINT", "http://localhost:9000"),
		S3Bucket:    envOr("S3_BUCKET", "docarchive"),
		S3AccessKey: envOr("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey: envOr("S3_SECRET_KEY", "minioadmin"),
		S3Region:    envOr("S3_REGION", "us-east-1"),
		S3UseSSL:    envBool("S3_USE_SSL", false),
		S3Prefix:    envOr("S3_PREFIX", ""),
	}
}

func (s Storage) validate() error {
	switch s.Backend {
	case "local", "s3":
		return nil
	default:
		return fmt.Errorf("unknown MANIFEST_BACKEND: %s", s.Backend)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
