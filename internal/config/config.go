package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g.
// CONCERTMAP_EVENTFUL_API_KEY.
const EnvPrefix = "CONCERTMAP_"

// HomeConfig is the location the kiosk opens on.
type HomeConfig struct {
	// Location is the free-text place sent to the event search.
	Location string `yaml:"location" json:"location" env:"LOCATION"`
	// Lat/Lng is the initial map center, used until geocoding succeeds.
	Lat float64 `yaml:"lat" json:"lat" env:"LAT"`
	Lng float64 `yaml:"lng" json:"lng" env:"LNG"`
}

// EventfulConfig covers both sides of the event search: the upstream API the
// relay forwards to and the relay URL the session queries.
type EventfulConfig struct {
	// BaseURL is the upstream search endpoint.
	BaseURL string `yaml:"base_url" json:"base_url" env:"BASE_URL"`
	// APIKey is the server-held credential. Prefer the environment over the file.
	APIKey string `yaml:"api_key,omitempty" json:"-" env:"API_KEY"`
	// RelayURL is where the session sends its queries. Empty means this
	// process's own /concerts endpoint.
	RelayURL string `yaml:"relay_url" json:"relay_url" env:"RELAY_URL"`
	// CacheTTL bounds how long relay responses are reused.
	CacheTTL time.Duration `yaml:"cache_ttl" json:"cache_ttl" env:"CACHE_TTL"`
	// CachePurge is a cron expression for dropping expired relay entries.
	CachePurge string `yaml:"cache_purge" json:"cache_purge" env:"CACHE_PURGE"`
}

// TimeoutsConfig holds the client-side waits of the session.
type TimeoutsConfig struct {
	Fetch           time.Duration `yaml:"fetch" json:"fetch" env:"FETCH"`
	InfoWindowDelay time.Duration `yaml:"info_window_delay" json:"info_window_delay" env:"INFO_WINDOW_DELAY"`
	Geocode         time.Duration `yaml:"geocode" json:"geocode" env:"GEOCODE"`
}

// GeocoderConfig describes the geocoding provider and its local cache.
type GeocoderConfig struct {
	BaseURL   string `yaml:"base_url" json:"base_url" env:"BASE_URL"`
	UserAgent string `yaml:"user_agent" json:"user_agent" env:"USER_AGENT"`
	// CachePath is the SQLite file for cached lookups. Empty disables caching.
	CachePath string `yaml:"cache_path" json:"cache_path" env:"CACHE_PATH"`
}

// PreviewConfig controls the headless map capture.
type PreviewConfig struct {
	Path   string `yaml:"path" json:"path" env:"PATH"`
	URL    string `yaml:"url" json:"url" env:"URL"`
	Width  int    `yaml:"width" json:"width" env:"WIDTH"`
	Height int    `yaml:"height" json:"height" env:"HEIGHT"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the map UI, API and relay.
	Listen string `yaml:"listen" json:"listen" env:"LISTEN"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level" env:"LOG_LEVEL"`

	// StaticDir is served at / for the browser side of the map.
	StaticDir string `yaml:"static_dir" json:"static_dir" env:"STATIC_DIR"`

	// Rollover is a cron expression at which the kiosk moves "today" forward.
	Rollover string `yaml:"rollover" json:"rollover" env:"ROLLOVER"`

	Home     HomeConfig     `yaml:"home" json:"home" envPrefix:"HOME_"`
	Eventful EventfulConfig `yaml:"eventful" json:"eventful" envPrefix:"EVENTFUL_"`
	Timeouts TimeoutsConfig `yaml:"timeouts" json:"timeouts" envPrefix:"TIMEOUT_"`
	Geocoder GeocoderConfig `yaml:"geocoder" json:"geocoder" envPrefix:"GEOCODER_"`
	Preview  PreviewConfig  `yaml:"preview" json:"preview" envPrefix:"PREVIEW_"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen          = "127.0.0.1:3000"
	defaultStaticDir       = "web/static"
	defaultLocation        = "Washington, DC"
	defaultLat             = 38.9071923
	defaultLng             = -77.03687070000001
	defaultEventfulURL     = "http://api.eventful.com/json/events/search"
	defaultCacheTTL        = 5 * time.Minute
	defaultCachePurge      = "*/10 * * * *"
	defaultRollover        = "5 0 * * *"
	defaultFetchTimeout    = 12 * time.Second
	defaultInfoWindowDelay = 600 * time.Millisecond
	defaultGeocodeTimeout  = 10 * time.Second
	defaultGeocoderURL     = "https://nominatim.openstreetmap.org"
	defaultUserAgent       = "concertmap/0.1"
	defaultPreviewWidth    = 1280
	defaultPreviewHeight   = 800
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Normalize()
	return cfg
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.StaticDir == "" {
		c.StaticDir = defaultStaticDir
	}
	if c.Rollover == "" {
		c.Rollover = defaultRollover
	}
	if c.Home.Location == "" {
		c.Home.Location = defaultLocation
		c.Home.Lat = defaultLat
		c.Home.Lng = defaultLng
	}
	if c.Eventful.BaseURL == "" {
		c.Eventful.BaseURL = defaultEventfulURL
	}
	if c.Eventful.CacheTTL <= 0 {
		c.Eventful.CacheTTL = defaultCacheTTL
	}
	if c.Eventful.CachePurge == "" {
		c.Eventful.CachePurge = defaultCachePurge
	}
	if c.Timeouts.Fetch <= 0 {
		c.Timeouts.Fetch = defaultFetchTimeout
	}
	if c.Timeouts.InfoWindowDelay <= 0 {
		c.Timeouts.InfoWindowDelay = defaultInfoWindowDelay
	}
	if c.Timeouts.Geocode <= 0 {
		c.Timeouts.Geocode = defaultGeocodeTimeout
	}
	if c.Geocoder.BaseURL == "" {
		c.Geocoder.BaseURL = defaultGeocoderURL
	}
	if c.Geocoder.UserAgent == "" {
		c.Geocoder.UserAgent = defaultUserAgent
	}
	if c.Preview.Width <= 0 {
		c.Preview.Width = defaultPreviewWidth
	}
	if c.Preview.Height <= 0 {
		c.Preview.Height = defaultPreviewHeight
	}
}

// RelayURL returns the URL the session should query, defaulting to this
// process's own relay endpoint.
func (c *Config) RelayURL() string {
	if c.Eventful.RelayURL != "" {
		return c.Eventful.RelayURL
	}
	return "http://" + c.Listen + "/concerts"
}

// ApplyEnv overrides fields from CONCERTMAP_* environment variables. Only
// variables that are set touch the config.
func (c *Config) ApplyEnv() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600 perms.
//   - Otherwise the YAML is read and normalized.
//   - In both cases environment overrides are applied last and are never
//     written back to disk.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	var cfg *Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// First run: create default config file.
		cfg = DefaultConfig()
		if err := Save(path, cfg); err != nil {
			// Even if save fails, return cfg with error so caller can decide.
			return cfg, err
		}
	case err != nil:
		return nil, err
	default:
		cfg = &Config{}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return cfg, nil
}

// Save writes the given configuration to the specified path atomically
// (temp file + rename) with 0600 permissions.
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

	tmp, err := os.CreateTemp(dir, ".concertmap-config-*.tmp")
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

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
