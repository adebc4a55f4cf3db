package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Index     IndexConfig     `yaml:"index"`
	Search    SearchConfig    `yaml:"search"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Web       WebConfig       `yaml:"web"`
	Debug     bool            `yaml:"-"`
}

type IndexConfig struct {
	Extensions      []string `yaml:"extensions"`
	BundleSuffix    string   `yaml:"bundle_suffix"`
	WatchDebounceMs int      `yaml:"watch_debounce_ms"`
}

// WatchDebounce returns the quiet period the watcher waits before rebuilding.
func (c *IndexConfig) WatchDebounce() time.Duration {
	return time.Duration(c.WatchDebounceMs) * time.Millisecond
}

type SearchConfig struct {
	Neighbors  int    `yaml:"neighbors"`   // k nearest neighbours per query face
	ResultsDir string `yaml:"results_dir"` // root for copied matches
}

type EmbeddingConfig struct {
	URL          string `yaml:"url"`            // face embedding server
	MaxImageSize int    `yaml:"max_image_size"` // longest side before upload, 0 disables resizing
}

type WebConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func envBool(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}

// Defaults returns the embedded defaults without consulting the environment.
func Defaults() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return &cfg
}

func Load() *Config {
	cfg := Defaults()

	cfg.Embedding.URL = envString("EMBEDDING_URL", cfg.Embedding.URL)
	cfg.Embedding.MaxImageSize = envInt("EMBEDDING_MAX_IMAGE_SIZE", cfg.Embedding.MaxImageSize)
	cfg.Search.Neighbors = envInt("SEARCH_NEIGHBORS", cfg.Search.Neighbors)
	cfg.Search.ResultsDir = envString("RESULTS_DIR", cfg.Search.ResultsDir)
	cfg.Index.BundleSuffix = envString("BUNDLE_SUFFIX", cfg.Index.BundleSuffix)
	cfg.Index.WatchDebounceMs = envInt("WATCH_DEBOUNCE_MS", cfg.Index.WatchDebounceMs)
	if exts := os.Getenv("INDEX_EXTENSIONS"); exts != "" {
		cfg.Index.Extensions = splitList(exts)
	}
	cfg.Web.Host = envString("WEB_HOST", cfg.Web.Host)
	cfg.Web.Port = envInt("WEB_PORT", cfg.Web.Port)
	cfg.Debug = envBool("LOG_DEBUG")

	return cfg
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
