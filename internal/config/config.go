package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override values from the YAML file.
const (
	EnvSheetURL = "PROFILED_SHEET_URL"
	EnvListen   = "PROFILED_LISTEN"
	EnvLogLevel = "PROFILED_LOG_LEVEL"
)

const (
	defaultListen       = "127.0.0.1:8080"
	defaultTimezone     = "Asia/Taipei"
	defaultRefreshCron  = "*/15 * * * *"
	defaultImageFolder  = "images"
	defaultEmbargoDays  = 7
	defaultFetchTimeout = 30
	defaultCacheDir     = "/var/lib/profiled/sheet-cache"
	defaultLogLevel     = "info"
)

// ProfileConfig describes the static parts of the profile page.
type ProfileConfig struct {
	Name     string   `yaml:"name" json:"name"`
	Headline string   `yaml:"headline" json:"headline"`
	Bio      string   `yaml:"bio" json:"bio"`
	Avatar   string   `yaml:"avatar" json:"avatar"`
	Gallery  []string `yaml:"gallery" json:"gallery"`
	// Template, if set, is an HTML file served instead of the built-in page.
	// Its timeline container and avatar are still filled in by the server.
	Template string `yaml:"template" json:"template"`
}

// CaptureConfig controls the headless-browser snapshot of the rendered page.
type CaptureConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	OutputPath string `yaml:"output_path" json:"output_path"`
	Width      int    `yaml:"width" json:"width"`
	Height     int    `yaml:"height" json:"height"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the page and API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration. It is loaded once at
// startup and handed to every component; nothing mutates it afterwards.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone used to interpret timeline dates.
	Timezone string `yaml:"timezone" json:"timezone"`

	// SheetURL is the published or edit URL of the source spreadsheet.
	SheetURL string `yaml:"sheet_url" json:"sheet_url"`

	// ImageFolder is the prefix for bare image filenames ("photo.jpg" -> "images/photo.jpg").
	ImageFolder string `yaml:"image_folder" json:"image_folder"`

	// ImagesDir is the directory on disk served under /<ImageFolder>/.
	ImagesDir string `yaml:"images_dir" json:"images_dir"`

	// EmbargoDays is how long after an event its seat stays hidden.
	EmbargoDays int `yaml:"embargo_days" json:"embargo_days"`

	// RefreshCron is a cron-style schedule for re-running the pipeline.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	FetchTimeoutSeconds int `yaml:"fetch_timeout_seconds" json:"fetch_timeout_seconds"`

	// CacheDir stores the last downloaded workbook for conditional requests.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	Profile ProfileConfig `yaml:"profile" json:"profile"`
	Capture CaptureConfig `yaml:"capture" json:"capture"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values with defaults.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	c.SheetURL = strings.TrimSpace(c.SheetURL)
	c.ImageFolder = strings.Trim(strings.TrimSpace(c.ImageFolder), "/")
	if c.ImageFolder == "" {
		c.ImageFolder = defaultImageFolder
	}
	if c.ImagesDir == "" {
		c.ImagesDir = "./" + c.ImageFolder
	}
	if c.EmbargoDays <= 0 {
		c.EmbargoDays = defaultEmbargoDays
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.FetchTimeoutSeconds <= 0 {
		c.FetchTimeoutSeconds = defaultFetchTimeout
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.Profile.Gallery == nil {
		c.Profile.Gallery = []string{}
	}
	if c.Capture.OutputPath == "" {
		c.Capture.OutputPath = filepath.Join(filepath.Dir(c.CacheDir), "preview.png")
	}
}

// FetchTimeout returns FetchTimeoutSeconds as a duration.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// Location resolves Timezone, falling back to UTC when it is unknown.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate reports configuration errors that make the pipeline unusable.
func (c *Config) Validate() error {
	if c.SheetURL == "" {
		return errors.New("config: sheet_url is empty")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return errors.New("config: unknown timezone " + strconv.Quote(c.Timezone))
	}
	return nil
}

// Load loads configuration from the given YAML path and applies
// environment overrides.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - If the file exists, it is unmarshalled and normalized.
//   - A .env file next to the working directory, if present, is loaded
//     into the environment before overrides are applied.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	// Missing .env is the common case.
	_ = godotenv.Load()

	var cfg *Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		cfg = DefaultConfig()
		if err := Save(path, cfg); err != nil {
			return cfg, err
		}
	case err != nil:
		return nil, err
	default:
		cfg = &Config{}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv(os.Getenv)
	cfg.Normalize()
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(EnvSheetURL); v != "" {
		c.SheetURL = v
	}
	if v := getenv(EnvListen); v != "" {
		c.Listen = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

// Save writes the given configuration to path atomically (temp file +
// rename) with 0600 permissions, creating the parent directory (0700).
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".profiled-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
