package shared

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	ktoml "github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

//go:embed config.example.toml
var exampleConf []byte

// envPrefix is stripped from environment variables during config loading (e.g., NOWPLAYING_SERVER__PORT → server.port)
const envPrefix = "NOWPLAYING_"

// envAliases maps the bare variable names used by earlier releases to their config keys.
var envAliases = map[string]string{
	"SPOTIFY_CLIENT_ID":     "credentials.spotify.client_id",
	"SPOTIFY_CLIENT_SECRET": "credentials.spotify.client_secret",
	"SLACK_TOKEN":           "credentials.slack.token",
}

// Storage backends for the Spotify credential.
const (
	StorageFile    = "file"
	StorageKeyring = "keyring"
)

// Config represents the application configuration loaded from a TOML file and the environment.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Server      ServerConfig      `toml:"server"`
	Storage     StorageConfig     `toml:"storage"`
	Monitor     MonitorConfig     `toml:"monitor"`
	Database    DatabaseConfig    `toml:"database"`
	Log         LogConfig         `toml:"log"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
	Slack   SlackConfig   `toml:"slack"`
}

// SpotifyConfig contains Spotify API credentials and endpoints.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri" validate:"required,url"`
	AuthURL      string `toml:"auth_url" validate:"required,url"`
	TokenURL     string `toml:"token_url" validate:"required,url"`
	APIURL       string `toml:"api_url" validate:"required,url"`
}

// SlackConfig contains the pre-issued Slack user token used for profile updates.
type SlackConfig struct {
	Token    string `toml:"token"`
	APIURL   string `toml:"api_url" validate:"required,url"`
	RetryMax int    `toml:"retry_max" validate:"min=0,max=10"`
}

// ServerConfig contains callback listener settings.
type ServerConfig struct {
	Host string `toml:"host" validate:"required,hostname_rfc1123|ip"`
	Port int    `toml:"port" validate:"min=1,max=65535"`
}

// StorageConfig selects where the Spotify credential is persisted.
type StorageConfig struct {
	Type        string `toml:"type" validate:"oneof=file keyring"`
	Path        string `toml:"path"`
	KeyringUser string `toml:"keyring_user"`
}

// MonitorConfig tunes the playback polling loop.
type MonitorConfig struct {
	IdleDelayMS     int    `toml:"idle_delay_ms" validate:"min=1"`
	EndBufferMS     int    `toml:"end_buffer_ms" validate:"min=0"`
	MinIntervalMS   int    `toml:"min_interval_ms" validate:"min=0"`
	Burst           int    `toml:"burst" validate:"min=1"`
	StatusEmoji     string `toml:"status_emoji"`
	ShutdownGraceMS int    `toml:"shutdown_grace_ms" validate:"min=0"`
}

// DatabaseConfig contains play history database settings.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level     string `toml:"level" validate:"omitempty,oneof=debug info warn error fatal"`
	File      string `toml:"file"`
	MaxSizeMB int    `toml:"max_size_mb" validate:"min=0"`
}

// IdleDelay is the wait between polls while nothing is playing.
func (m MonitorConfig) IdleDelay() time.Duration {
	return time.Duration(m.IdleDelayMS) * time.Millisecond
}

// EndBuffer is added to the remaining track time before the next poll.
func (m MonitorConfig) EndBuffer() time.Duration {
	return time.Duration(m.EndBufferMS) * time.Millisecond
}

// MinInterval is the minimum spacing between polls enforced by the limiter.
func (m MonitorConfig) MinInterval() time.Duration {
	return time.Duration(m.MinIntervalMS) * time.Millisecond
}

// ShutdownGrace is the delay between clearing presence and exiting.
func (m MonitorConfig) ShutdownGrace() time.Duration {
	return time.Duration(m.ShutdownGraceMS) * time.Millisecond
}

// ListenAddr returns host:port for the callback listener.
func (s ServerConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoadConfig builds the configuration with precedence:
// embedded defaults → config file (if present) → environment variables.
//
// A missing config file is not an error; secrets are commonly supplied through the environment alone.
// environ defaults to [os.Environ].
func LoadConfig(path string, environ func() []string) (*Config, error) {
	if environ == nil {
		environ = os.Environ
	}

	config := DefaultConfig()
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), ktoml.Parser()); err != nil {
				return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	envProvider := env.Provider(".", env.Opt{
		TransformFunc: transformEnv,
		EnvironFunc:   environ,
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := k.UnmarshalWithConf("", config, koanf.UnmarshalConf{Tag: "toml"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if err := config.ApplyDefaults(); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// transformEnv maps an environment variable to a config key, or "" to skip it.
func transformEnv(key, value string) (string, any) {
	if k, ok := envAliases[key]; ok {
		return k, value
	}
	if !strings.HasPrefix(key, envPrefix) {
		return "", nil
	}
	stripped := strings.TrimPrefix(key, envPrefix)
	return strings.ToLower(strings.ReplaceAll(stripped, "__", ".")), value
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// ApplyDefaults fills values that depend on the host environment.
func (c *Config) ApplyDefaults() error {
	if c.Storage.Type == "" {
		c.Storage.Type = StorageFile
	}

	switch c.Storage.Type {
	case StorageFile:
		if c.Storage.Path == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("%w: storage.path required (auto-detect failed: %v)", ErrInvalidConfig, err)
			}
			c.Storage.Path = filepath.Join(configDir, "nowplaying", "credential.json")
		}
	case StorageKeyring:
		if c.Storage.KeyringUser == "" {
			current, err := user.Current()
			if err != nil {
				return fmt.Errorf("%w: storage.keyring_user required (auto-detect failed: %v)", ErrInvalidConfig, err)
			}
			c.Storage.KeyringUser = current.Username
		}
	}

	return nil
}

// Validate checks struct constraints. Credentials are checked separately by [Config.RequireSpotify] and
// [Config.RequireSlack] since not every command needs both.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// RequireSpotify reports whether the Spotify client credentials are present.
func (c *Config) RequireSpotify() error {
	if c.Credentials.Spotify.ClientID == "" || c.Credentials.Spotify.ClientSecret == "" {
		return fmt.Errorf("%w: set SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET or credentials.spotify in config", ErrMissingCredentials)
	}
	return nil
}

// RequireSlack reports whether the Slack token is present.
func (c *Config) RequireSlack() error {
	if c.Credentials.Slack.Token == "" {
		return fmt.Errorf("%w: set SLACK_TOKEN or credentials.slack.token in config", ErrMissingCredentials)
	}
	return nil
}

// Encode writes the configuration as TOML.
func (c *Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
