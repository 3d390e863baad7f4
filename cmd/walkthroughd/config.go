package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"

	walkthrough "github.com/xraph/walkthrough"
)

// settings is everything the daemon reads from file and environment.
type settings struct {
	Core walkthrough.Config `mapstructure:",squash"`

	Listen string `mapstructure:"listen"`

	Store struct {
		Driver string `mapstructure:"driver"`
		DSN    string `mapstructure:"dsn"`
	} `mapstructure:"store"`

	Catalog struct {
		Dir   string `mapstructure:"dir"`
		Watch bool   `mapstructure:"watch"`
	} `mapstructure:"catalog"`

	Wire struct {
		PageToken string `mapstructure:"page_token"`
	} `mapstructure:"wire"`

	Audit struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"audit"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

// newViper returns a viper instance with defaults and the WALKTHROUGH_
// environment binding.
func newViper() *viper.Viper {
	v := viper.New()

	def := walkthrough.DefaultConfig()
	defaults := map[string]any{
		"session_ttl":           def.SessionTTL,
		"click_advance_delay":   def.ClickAdvanceDelay,
		"select_advance_delay":  def.SelectAdvanceDelay,
		"default_advance_delay": def.DefaultAdvanceDelay,
		"allowed_origins":       def.AllowedOrigins,
		"companion_source":      def.CompanionSource,
		"frames_per_second":     def.FramesPerSecond,
		"frame_burst":           def.FrameBurst,
		"handler_timeout":       def.HandlerTimeout,
		"admin_token":           def.AdminToken,
		"shutdown_timeout":      def.ShutdownTimeout,

		"listen":          ":8080",
		"store.driver":    "memory",
		"store.dsn":       "",
		"catalog.dir":     "",
		"catalog.watch":   true,
		"wire.page_token": "",
		"audit.enabled":   false,
		"log.level":       "info",
		"log.format":      "json",
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix("WALKTHROUGH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// loadSettings reads the optional config file and decodes everything.
func loadSettings(v *viper.Viper, file string) (settings, error) {
	var s settings
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return s, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	if err := v.Unmarshal(&s); err != nil {
		return s, fmt.Errorf("decode config: %w", err)
	}
	return s, nil
}

func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}
