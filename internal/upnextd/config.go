package upnextd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/nat80/upnext/internal/core"
)

// Config is the top-level configuration for upnextd.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Kodi     KodiConfig     `toml:"kodi"`
	TMDB     TMDBConfig     `toml:"tmdb"`
	Playback PlaybackConfig `toml:"playback"`
	Detect   DetectConfig   `toml:"detect"`
	Popup    PopupConfig    `toml:"popup"`
	Tracker  TrackerConfig  `toml:"tracker"`
	Modules  ModulesConfig  `toml:"modules"`
}

// ServerConfig defines shared server settings.
type ServerConfig struct {
	Broker    string     `toml:"broker"`
	Identity  string     `toml:"identity"`
	TopicBase string     `toml:"topic_base"`
	LogLevel  string     `toml:"log_level"`
	LogFormat string     `toml:"log_format"`
	TLS       TLSConfig  `toml:"tls"`
	Auth      AuthConfig `toml:"auth"`
}

// TLSConfig holds TLS paths for MQTT.
type TLSConfig struct {
	CA   string `toml:"ca"`
	Cert string `toml:"cert"`
	Key  string `toml:"key"`
}

// AuthConfig holds MQTT auth credentials.
type AuthConfig struct {
	User string `toml:"user"`
	Pass string `toml:"pass"`
}

// KodiConfig configures the Kodi JSON-RPC connection.
type KodiConfig struct {
	BaseURL   string `toml:"base_url"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	TimeoutMS int64  `toml:"timeout_ms"`
}

// TMDBConfig configures the optional external metadata lookup.
type TMDBConfig struct {
	APIKey    string `toml:"api_key"`
	BaseURL   string `toml:"base_url"`
	TimeoutMS int64  `toml:"timeout_ms"`
}

// PlaybackConfig holds next-item selection behavior.
type PlaybackConfig struct {
	UnwatchedOnly    bool   `toml:"unwatched_only"`
	NextSeason       bool   `toml:"next_season"`
	PlayedLimit      int    `toml:"played_limit"`
	EnableQueue      bool   `toml:"enable_queue"`
	APIRetryAttempts int    `toml:"api_retry_attempts"`
	ExternalLookup   bool   `toml:"external_lookup"`
	SimCue           string `toml:"sim_cue"`
}

// DetectConfig holds end-credit detection behavior.
type DetectConfig struct {
	Enabled           bool    `toml:"enabled"`
	Chapters          bool    `toml:"chapters"`
	ChaptersThreshold float64 `toml:"chapters_threshold"`
	Period            int     `toml:"period"`
}

// PopupConfig holds the popup duration table.
type PopupConfig struct {
	Durations []PopupDurationConfig `toml:"durations"`
}

// PopupDurationConfig is one duration table entry: for videos longer than
// Threshold seconds the popup shows Duration seconds before the end.
type PopupDurationConfig struct {
	Threshold int `toml:"threshold"`
	Duration  int `toml:"duration"`
}

// TrackerConfig configures the tracker module.
type TrackerConfig struct {
	Enabled        bool  `toml:"enabled"`
	PollIntervalMS int64 `toml:"poll_interval_ms"`
}

// ModulesConfig holds supporting module configurations.
type ModulesConfig struct {
	EmbeddedMQTT EmbeddedMQTTConfig `toml:"embedded_mqtt"`
}

// EmbeddedMQTTConfig configures the embedded MQTT broker.
type EmbeddedMQTTConfig struct {
	Enabled        bool   `toml:"enabled"`
	Listen         string `toml:"listen"`
	AllowAnonymous bool   `toml:"allow_anonymous"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	TLSCA          string `toml:"tls_ca"`
	TLSCert        string `toml:"tls_cert"`
	TLSKey         string `toml:"tls_key"`
}

// DefaultConfig returns the built-in defaults. LoadConfig decodes over it so
// absent keys keep their default values.
func DefaultConfig() Config {
	defaults := core.DefaultSettings()
	durations := make([]PopupDurationConfig, 0, len(defaults.PopupDurations))
	for _, entry := range defaults.PopupDurations {
		durations = append(durations, PopupDurationConfig(entry))
	}
	return Config{
		Server: ServerConfig{
			Broker:    "tcp://127.0.0.1:1883",
			Identity:  "upnextd",
			TopicBase: "",
			LogLevel:  "info",
			LogFormat: "console",
		},
		Kodi: KodiConfig{
			BaseURL:   "http://127.0.0.1:8080",
			TimeoutMS: 5000,
		},
		TMDB: TMDBConfig{TimeoutMS: 10000},
		Playback: PlaybackConfig{
			UnwatchedOnly:    defaults.UnwatchedOnly,
			NextSeason:       defaults.NextSeason,
			PlayedLimit:      defaults.PlayedLimit,
			EnableQueue:      defaults.EnableQueue,
			APIRetryAttempts: defaults.APIRetryAttempts,
			ExternalLookup:   defaults.ExternalLookup,
			SimCue:           "auto",
		},
		Detect: DetectConfig{
			Enabled:           defaults.DetectEnabled,
			Chapters:          defaults.DetectChapters,
			ChaptersThreshold: defaults.DetectChaptersThreshold,
			Period:            defaults.DetectPeriod,
		},
		Popup: PopupConfig{Durations: durations},
		Tracker: TrackerConfig{
			Enabled:        true,
			PollIntervalMS: 1000,
		},
	}
}

// LoadConfig loads a config file from path over the defaults.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Config{}, err
	}
	if info.IsDir() {
		return Config{}, errors.New("config path is a directory")
	}

	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultConfigPath returns the default config location.
func DefaultConfigPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "upnext", "upnextd.toml"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "upnext", "upnextd.toml"), nil
}

// Settings converts the behavior sections into tracker settings.
func (c Config) Settings() (core.Settings, error) {
	simCue, err := core.ParseCueMode(c.Playback.SimCue)
	if err != nil {
		return core.Settings{}, fmt.Errorf("playback.sim_cue: %w", err)
	}

	durations := make([]core.PopupDuration, 0, len(c.Popup.Durations))
	for _, entry := range c.Popup.Durations {
		durations = append(durations, core.PopupDuration(entry))
	}

	return core.Settings{
		UnwatchedOnly:           c.Playback.UnwatchedOnly,
		NextSeason:              c.Playback.NextSeason,
		PlayedLimit:             c.Playback.PlayedLimit,
		EnableQueue:             c.Playback.EnableQueue,
		APIRetryAttempts:        c.Playback.APIRetryAttempts,
		DetectEnabled:           c.Detect.Enabled,
		DetectChapters:          c.Detect.Chapters,
		DetectChaptersThreshold: c.Detect.ChaptersThreshold,
		DetectPeriod:            c.Detect.Period,
		SimCue:                  simCue,
		PopupDurations:          durations,
		ExternalLookup:          c.Playback.ExternalLookup,
	}, nil
}
