package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StoreDriverSQLite   = "sqlite"
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	defaultChannelsFile        = "votebot.yaml"
	defaultPrefix              = "!"
	defaultConfirmationTimeout = 60 * time.Second
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName   string
	HTTPPort      string
	StoreDriver   string
	DataDir       string
	PostgresDSN   string
	ChannelsFile  string
	PublicBaseURL string
	LogLevel      string
	LogFormat     string
	EnableHTTPAPI bool

	Channels  []Channel
	Transport Transport
}

// Channel is one governed channel from the channels file.
type Channel struct {
	Name                string
	Prefix              string
	ConfirmationTimeout time.Duration
}

// Transport carries the console transport's static identity data.
type Transport struct {
	Admins   []string
	Accounts map[string]string
}

type channelsFile struct {
	Channels []struct {
		Name                string `yaml:"name"`
		Prefix              string `yaml:"prefix"`
		ConfirmationTimeout string `yaml:"confirmation_timeout"`
	} `yaml:"channels"`
	Transport struct {
		Admins   []string          `yaml:"admins"`
		Accounts map[string]string `yaml:"accounts"`
	} `yaml:"transport"`
}

// Load reads the environment (primed from .env when present) and the
// channels file it points at.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		ServiceName:   envString("SERVICE_NAME", "votebot"),
		HTTPPort:      envString("HTTP_PORT", "8080"),
		StoreDriver:   strings.ToLower(envString("STORE_DRIVER", StoreDriverSQLite)),
		DataDir:       envString("DATA_DIR", "./data"),
		PostgresDSN:   strings.TrimSpace(os.Getenv("POSTGRES_DSN")),
		ChannelsFile:  envString("CHANNELS_FILE", defaultChannelsFile),
		PublicBaseURL: strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL")),
		LogLevel:      strings.ToLower(envString("LOG_LEVEL", "info")),
		LogFormat:     strings.ToLower(envString("LOG_FORMAT", "text")),
		EnableHTTPAPI: envBool("ENABLE_HTTP_API", true),
	}

	channels, transport, err := LoadChannelsFile(cfg.ChannelsFile)
	if err != nil {
		return Config{}, err
	}
	cfg.Channels = channels
	cfg.Transport = transport

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadChannelsFile parses the YAML channels file. A missing file yields no
// channels and an empty transport section.
func LoadChannelsFile(path string) ([]Channel, Transport, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, Transport{}, nil
		}
		return nil, Transport{}, fmt.Errorf("read channels file %s: %w", path, err)
	}

	var file channelsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, Transport{}, fmt.Errorf("parse channels file %s: %w", path, err)
	}

	channels := make([]Channel, 0, len(file.Channels))
	for i, item := range file.Channels {
		channel := Channel{
			Name:                strings.TrimSpace(item.Name),
			Prefix:              item.Prefix,
			ConfirmationTimeout: defaultConfirmationTimeout,
		}
		if channel.Prefix == "" {
			channel.Prefix = defaultPrefix
		}
		if raw := strings.TrimSpace(item.ConfirmationTimeout); raw != "" {
			timeout, err := time.ParseDuration(raw)
			if err != nil {
				return nil, Transport{}, fmt.Errorf("channels[%d].confirmation_timeout: %w", i, err)
			}
			channel.ConfirmationTimeout = timeout
		}
		channels = append(channels, channel)
	}

	transport := Transport{
		Admins:   file.Transport.Admins,
		Accounts: file.Transport.Accounts,
	}
	return channels, transport, nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case StoreDriverSQLite:
		if strings.TrimSpace(c.DataDir) == "" {
			errs = append(errs, errors.New("DATA_DIR is required for the sqlite store"))
		}
	case StoreDriverPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required for the postgres store"))
		}
	case StoreDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown LOG_FORMAT %q", c.LogFormat))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown LOG_LEVEL %q", c.LogLevel))
	}

	seen := make(map[string]bool, len(c.Channels))
	for i, channel := range c.Channels {
		key := strings.ToLower(channel.Name)
		switch {
		case key == "":
			errs = append(errs, fmt.Errorf("channels[%d]: name is required", i))
		case seen[key]:
			errs = append(errs, fmt.Errorf("channels[%d]: duplicate channel %q", i, channel.Name))
		}
		seen[key] = true
		if strings.TrimSpace(channel.Prefix) == "" {
			errs = append(errs, fmt.Errorf("channels[%d]: prefix must not be blank", i))
		}
		if channel.ConfirmationTimeout <= 0 {
			errs = append(errs, fmt.Errorf("channels[%d]: confirmation_timeout must be positive", i))
		}
	}
	return errors.Join(errs...)
}

func envString(name string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}
