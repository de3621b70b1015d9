package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeChannelsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "votebot.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write channels file: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CHANNELS_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	for _, name := range []string{"SERVICE_NAME", "HTTP_PORT", "STORE_DRIVER", "DATA_DIR", "LOG_LEVEL", "LOG_FORMAT", "ENABLE_HTTP_API", "PUBLIC_BASE_URL"} {
		t.Setenv(name, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServiceName != "votebot" || cfg.HTTPPort != "8080" || cfg.StoreDriver != StoreDriverSQLite {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.DataDir != "./data" || cfg.LogLevel != "info" || cfg.LogFormat != "text" || !cfg.EnableHTTPAPI {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if len(cfg.Channels) != 0 {
		t.Fatalf("expected no channels without a channels file, got %+v", cfg.Channels)
	}
}

func TestLoadChannelsFile(t *testing.T) {
	path := writeChannelsFile(t, `
channels:
  - name: "#governance"
  - name: "#ops"
    prefix: "?"
    confirmation_timeout: 15s
transport:
  admins: [alice]
  accounts:
    alice: alice-account
`)
	channels, transport, err := LoadChannelsFile(path)
	if err != nil {
		t.Fatalf("load channels file: %v", err)
	}
	if len(channels) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(channels))
	}
	if channels[0].Prefix != "!" || channels[0].ConfirmationTimeout != 60*time.Second {
		t.Fatalf("expected defaults for first channel, got %+v", channels[0])
	}
	if channels[1].Prefix != "?" || channels[1].ConfirmationTimeout != 15*time.Second {
		t.Fatalf("unexpected second channel: %+v", channels[1])
	}
	if len(transport.Admins) != 1 || transport.Accounts["alice"] != "alice-account" {
		t.Fatalf("unexpected transport section: %+v", transport)
	}
}

func TestLoadChannelsFileRejectsBadDuration(t *testing.T) {
	path := writeChannelsFile(t, "channels:\n  - name: \"#gov\"\n    confirmation_timeout: soon\n")
	if _, _, err := LoadChannelsFile(path); err == nil {
		t.Fatalf("expected duration parse error")
	}
}

func TestValidate(t *testing.T) {
	base := Config{StoreDriver: StoreDriverMemory, LogLevel: "info", LogFormat: "text"}
	if err := base.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "unknown driver", mutate: func(c *Config) { c.StoreDriver = "redis" }, want: "unknown STORE_DRIVER"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.StoreDriver = StoreDriverPostgres }, want: "POSTGRES_DSN is required"},
		{name: "bad log format", mutate: func(c *Config) { c.LogFormat = "xml" }, want: "unknown LOG_FORMAT"},
		{name: "empty channel", mutate: func(c *Config) {
			c.Channels = []Channel{{Prefix: "!", ConfirmationTimeout: time.Second}}
		}, want: "name is required"},
		{name: "duplicate channel", mutate: func(c *Config) {
			c.Channels = []Channel{
				{Name: "#gov", Prefix: "!", ConfirmationTimeout: time.Second},
				{Name: "#GOV", Prefix: "!", ConfirmationTimeout: time.Second},
			}
		}, want: "duplicate channel"},
		{name: "blank prefix", mutate: func(c *Config) {
			c.Channels = []Channel{{Name: "#gov", Prefix: " ", ConfirmationTimeout: time.Second}}
		}, want: "prefix must not be blank"},
		{name: "zero timeout", mutate: func(c *Config) {
			c.Channels = []Channel{{Name: "#gov", Prefix: "!"}}
		}, want: "confirmation_timeout must be positive"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestEnvBool(t *testing.T) {
	t.Setenv("VOTEBOT_TEST_FLAG", "off")
	if envBool("VOTEBOT_TEST_FLAG", true) {
		t.Fatalf("expected off to parse as false")
	}
	t.Setenv("VOTEBOT_TEST_FLAG", "maybe")
	if !envBool("VOTEBOT_TEST_FLAG", true) {
		t.Fatalf("expected unknown value to fall back")
	}
}
