// Package config loads the worker's environment-variable surface.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config is the full set of knobs the worker reads at startup.
type Config struct {
	Provider ProviderConfig
	DB       DBConfig
	Loop     LoopConfig
	Image    ImageConfig
	Tagging  TaggingConfig
	Embed    EmbedConfig
	Alias    AliasConfig
	LogLevel string // zerolog level name, default info
}

type ProviderConfig struct {
	Kind        string // local_station | remote
	Endpoint    string // LocalStation base URL
	RemoteURL   string
	RemoteToken string
	CaptionLen  string // short | normal | long
}

type DBConfig struct {
	Path string
}

type LoopConfig struct {
	PollSeconds         float64
	RetryBackoffSeconds float64
}

type ImageConfig struct {
	MaxSide     int
	JPEGQuality int
	RawBytes    bool
}

type TaggingConfig struct {
	MaxTags int
	Mode    string // query | caption | hybrid
}

type EmbedConfig struct {
	Model string
	URL   string
}

type AliasConfig struct {
	GenerateNames   bool
	CreateNamedLink bool
	NameMode        string // caption | query
}

// Load reads the worker's environment knobs, filling in defaults for
// anything unset.
func Load() (*Config, error) {
	cfg := &Config{
		Provider: ProviderConfig{
			Kind:        getEnv("PROVIDER", "local_station"),
			Endpoint:    getEnv("ENDPOINT", "http://127.0.0.1:2020"),
			RemoteURL:   getEnv("REMOTE_URL", ""),
			RemoteToken: getEnv("REMOTE_TOKEN", ""),
			CaptionLen:  strings.ToLower(getEnv("CAPTION_LENGTH", "normal")),
		},
		DB: DBConfig{
			Path: getEnv("DB_PATH", defaultDBPath()),
		},
		Loop: LoopConfig{
			PollSeconds:         getEnvFloat("POLL_SECONDS", 1.0),
			RetryBackoffSeconds: getEnvFloat("RETRY_BACKOFF_SECONDS", 5.0),
		},
		Image: ImageConfig{
			MaxSide:     getEnvInt("MAX_IMAGE_SIDE", 512),
			JPEGQuality: getEnvInt("JPEG_QUALITY", 85),
			RawBytes:    getEnvBool("RAW_IMAGE_BYTES", false),
		},
		Tagging: TaggingConfig{
			MaxTags: getEnvInt("SEGMENT_TOP_N", 8),
			Mode:    strings.ToLower(getEnv("TAGS_MODE", "hybrid")),
		},
		Embed: EmbedConfig{
			Model: getEnv("EMBEDDING_MODEL", "all-MiniLM-L6-v2"),
			URL:   getEnv("EMBEDDING_URL", ""),
		},
		Alias: AliasConfig{
			GenerateNames:   getEnvBool("GENERATE_NAMES", true),
			CreateNamedLink: getEnvBool("CREATE_NAMED_ALIAS", true),
			NameMode:        strings.ToLower(getEnv("NAME_MODE", "caption")),
		},
		LogLevel: strings.ToLower(getEnv("WORKER_LOG_LEVEL", "info")),
	}

	if cfg.Provider.Kind == "remote" {
		if cfg.Provider.RemoteURL == "" || cfg.Provider.RemoteToken == "" {
			return nil, fmt.Errorf("REMOTE_URL and REMOTE_TOKEN are required when PROVIDER=remote")
		}
	}

	return cfg, nil
}

func defaultDBPath() string {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	return filepath.Join(wd, "data", "moondream.sqlite3")
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
