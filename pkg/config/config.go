package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration.
// Configuration is loaded from a JSON file with environment overrides.
type Config struct {
	Feed    FeedConfig    `json:"feed"`
	Tracks  TracksConfig  `json:"tracks"`
	Replay  ReplayConfig  `json:"replay"`
	Station StationConfig `json:"station"`
	Web     WebConfig     `json:"web"`
	Logging LoggingConfig `json:"logging"`
}

// FeedConfig contains the plane feed server connection settings.
type FeedConfig struct {
	// Host is the feed server hostname or address (default: "localhost")
	Host string `json:"host"`

	// Port is the feed server TCP port (default: 2020)
	Port int `json:"port"`

	// Handshake is the poll request sent before every read.
	// The feed server answers one request with one payload.
	Handshake string `json:"handshake"`

	// ReadSizeBytes is the per-read buffer size (default: 256)
	ReadSizeBytes int `json:"read_size_bytes"`

	// FailurePauseMS is how long the transport worker waits after a
	// send/read failure before announcing it (default: 1500)
	FailurePauseMS int `json:"failure_pause_ms"`

	// ReconnectPauseMS is how long the supervisor waits before dialing
	// the server again after a failure or control sentinel (default: 2000)
	ReconnectPauseMS int `json:"reconnect_pause_ms"`

	// PollTimeoutMS bounds how long one supervisor cycle waits for the
	// first payload (default: 1000)
	PollTimeoutMS int `json:"poll_timeout_ms"`

	// PollsPerSecond caps the worker's request/read cycle rate.
	// 0 = no limit, the server's own pacing drives the loop.
	PollsPerSecond float64 `json:"polls_per_second"`
}

// TracksConfig contains track store admission and eviction settings.
type TracksConfig struct {
	// MinElevationDeg is the admission cutoff in degrees. Position
	// reports below this elevation are dropped before reaching any
	// track (default: 0, the horizon)
	MinElevationDeg float64 `json:"min_elevation_deg"`

	// MaxAgeSeconds is the eviction threshold: tracks not updated within
	// this many seconds of the newest batch record are removed.
	// Negative disables eviction entirely (default: 15)
	MaxAgeSeconds float64 `json:"max_age_seconds"`

	// EpochRolloverSeconds is added to an epoch that runs backwards
	// across the day boundary. Both feed sides use the same constant, so
	// changing it desynchronizes replayed recordings (default: 86000)
	EpochRolloverSeconds float64 `json:"epoch_rollover_seconds"`

	// GapThresholdSeconds is the silence beyond which a reappearing
	// aircraft is flagged as a gapped track (default: 600000)
	GapThresholdSeconds float64 `json:"gap_threshold_seconds"`
}

// ReplayConfig contains recorded feed playback settings.
type ReplayConfig struct {
	// File is the recording to play back. Empty means live feed.
	File string `json:"file"`

	// LinesPerCall is the maximum number of recorded lines returned per
	// poll, approximating live arrival chunking (default: 140)
	LinesPerCall int `json:"lines_per_call"`

	// IntervalMS is the pause between replay polls (default: 1000)
	IntervalMS int `json:"interval_ms"`
}

// StationConfig describes the observing station the feed serves.
// The position fields identify the site in status output; the track
// engine itself works entirely in the feed's station-relative frame.
type StationConfig struct {
	// Name is a friendly identifier for this station
	Name string `json:"name"`

	// Latitude in decimal degrees (-90 to +90)
	Latitude float64 `json:"latitude"`

	// Longitude in decimal degrees (-180 to +180)
	Longitude float64 `json:"longitude"`

	// HeightM is the station height in meters above sea level
	HeightM float64 `json:"height_m"`

	// TimeZone is the IANA timezone name (e.g., "Europe/London")
	TimeZone string `json:"timezone"`
}

// WebConfig contains the HTTP API server settings.
type WebConfig struct {
	// Host is the server bind address (default: "0.0.0.0")
	Host string `json:"host"`

	// Port is the HTTP server port (default: "8080")
	Port string `json:"port"`

	// Username for the ops endpoints (default: "admin")
	Username string `json:"username"`

	// PasswordHash is the bcrypt hash of the ops password.
	// Empty disables the ops endpoints; keep it out of the config file
	// and set L2P_WEB_PASSWORD_HASH instead.
	PasswordHash string `json:"password_hash,omitempty"`

	// JWTSecret signs ops session tokens. Empty disables the ops
	// endpoints; prefer the L2P_WEB_JWT_SECRET environment variable.
	JWTSecret string `json:"jwt_secret,omitempty"`

	// TokenExpiryMinutes is the ops session lifetime (default: 60)
	TokenExpiryMinutes int `json:"token_expiry_minutes"`

	// CORSOrigins lists the allowed cross-origin hosts (default: ["*"])
	CORSOrigins []string `json:"cors_origins"`
}

// LoggingConfig contains log output settings.
type LoggingConfig struct {
	// File is the log file path. Empty selects the per-user default
	// location under the OS config directory.
	File string `json:"file"`

	// Level is one of "debug", "info", "warn", "error" (default: "info")
	Level string `json:"level"`

	// Stderr mirrors log records to standard error. Interactive clients
	// leave this off so the terminal UI stays clean.
	Stderr bool `json:"stderr"`
}

// Load reads configuration from a JSON file.
// A .env file in the working directory is loaded first, so overrides
// can live next to the binary. If the config file doesn't exist,
// returns a default configuration.
func Load(path string) (*Config, error) {
	// Pull in .env if one is present
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvironmentOverrides()
		return cfg, nil
	}

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvironmentOverrides()

	return &cfg, nil
}

// Save writes the configuration to a JSON file. The file is created
// owner-readable only since it can carry web credentials.
func (c *Config) Save(path string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Marshal to JSON with indentation
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Feed: FeedConfig{
			Host:             "localhost",
			Port:             2020,
			Handshake:        "reader\x00",
			ReadSizeBytes:    256,
			FailurePauseMS:   1500,
			ReconnectPauseMS: 2000,
			PollTimeoutMS:    1000,
			PollsPerSecond:   0, // server paced
		},
		Tracks: TracksConfig{
			MinElevationDeg:      0.0,
			MaxAgeSeconds:        15.0,
			EpochRolloverSeconds: 86000.0,
			GapThresholdSeconds:  600000.0,
		},
		Replay: ReplayConfig{
			File:         "",
			LinesPerCall: 140,
			IntervalMS:   1000,
		},
		Station: StationConfig{
			Name:      "Primary Station",
			Latitude:  0.0,
			Longitude: 0.0,
			HeightM:   0.0,
			TimeZone:  "UTC",
		},
		Web: WebConfig{
			Host:               "0.0.0.0",
			Port:               "8080",
			Username:           "admin",
			TokenExpiryMinutes: 60,
			CORSOrigins:        []string{"*"},
		},
		Logging: LoggingConfig{
			File:   "",
			Level:  "info",
			Stderr: false,
		},
	}
}

// Validate checks the configuration for values no component can run with.
func (c *Config) Validate() error {
	if c.Feed.Host == "" {
		return fmt.Errorf("feed.host must not be empty")
	}
	if c.Feed.Port <= 0 || c.Feed.Port > 65535 {
		return fmt.Errorf("feed.port %d is not a valid TCP port", c.Feed.Port)
	}
	if c.Feed.ReadSizeBytes <= 0 {
		return fmt.Errorf("feed.read_size_bytes must be positive, got %d", c.Feed.ReadSizeBytes)
	}
	if c.Tracks.EpochRolloverSeconds <= 0 {
		return fmt.Errorf("tracks.epoch_rollover_seconds must be positive, got %f", c.Tracks.EpochRolloverSeconds)
	}
	if c.Tracks.GapThresholdSeconds <= 0 {
		return fmt.Errorf("tracks.gap_threshold_seconds must be positive, got %f", c.Tracks.GapThresholdSeconds)
	}
	if c.Replay.LinesPerCall < 0 {
		return fmt.Errorf("replay.lines_per_call must not be negative, got %d", c.Replay.LinesPerCall)
	}
	if c.Replay.IntervalMS < 0 {
		return fmt.Errorf("replay.interval_ms must not be negative, got %d", c.Replay.IntervalMS)
	}
	if c.Station.Latitude < -90 || c.Station.Latitude > 90 {
		return fmt.Errorf("station.latitude %f is out of range", c.Station.Latitude)
	}
	if c.Station.Longitude < -180 || c.Station.Longitude > 180 {
		return fmt.Errorf("station.longitude %f is out of range", c.Station.Longitude)
	}
	if c.Web.Port != "" {
		p, err := strconv.Atoi(c.Web.Port)
		if err != nil || p <= 0 || p > 65535 {
			return fmt.Errorf("web.port %q is not a valid TCP port", c.Web.Port)
		}
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not a known level", c.Logging.Level)
	}
	return nil
}

// FailurePause returns the transport failure pause as a duration.
func (cfg FeedConfig) FailurePause() time.Duration {
	return time.Duration(cfg.FailurePauseMS) * time.Millisecond
}

// ReconnectPause returns the supervisor reconnect pause as a duration.
func (cfg FeedConfig) ReconnectPause() time.Duration {
	return time.Duration(cfg.ReconnectPauseMS) * time.Millisecond
}

// PollTimeout returns the per-cycle poll bound as a duration.
func (cfg FeedConfig) PollTimeout() time.Duration {
	return time.Duration(cfg.PollTimeoutMS) * time.Millisecond
}

// Interval returns the pause between replay polls as a duration.
func (cfg ReplayConfig) Interval() time.Duration {
	return time.Duration(cfg.IntervalMS) * time.Millisecond
}

// Addr returns the web server listen address in host:port form.
func (cfg WebConfig) Addr() string {
	return net.JoinHostPort(cfg.Host, cfg.Port)
}

// TokenExpiry returns the ops session lifetime as a duration.
func (cfg WebConfig) TokenExpiry() time.Duration {
	return time.Duration(cfg.TokenExpiryMinutes) * time.Minute
}

// OpsEnabled reports whether the protected ops endpoints can be served.
// Both a credential hash and a signing secret are required.
func (cfg WebConfig) OpsEnabled() bool {
	return cfg.Username != "" && cfg.PasswordHash != "" && cfg.JWTSecret != ""
}

// applyEnvironmentOverrides applies environment variable overrides to the
// config. This allows sensitive data like the web credentials to be kept
// out of config files.
func (c *Config) applyEnvironmentOverrides() {
	if host := os.Getenv("L2P_FEED_HOST"); host != "" {
		c.Feed.Host = host
	}
	if port := os.Getenv("L2P_FEED_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Feed.Port = p
		}
	}
	if file := os.Getenv("L2P_REPLAY_FILE"); file != "" {
		c.Replay.File = file
	}
	if user := os.Getenv("L2P_WEB_USERNAME"); user != "" {
		c.Web.Username = user
	}
	if hash := os.Getenv("L2P_WEB_PASSWORD_HASH"); hash != "" {
		c.Web.PasswordHash = hash
	}
	if secret := os.Getenv("L2P_WEB_JWT_SECRET"); secret != "" {
		c.Web.JWTSecret = secret
	}
	if file := os.Getenv("L2P_LOG_FILE"); file != "" {
		c.Logging.File = file
	}
	if level := os.Getenv("L2P_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}
