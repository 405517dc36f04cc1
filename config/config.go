package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/adamwoolhether/httpmulti/client"
	"github.com/adamwoolhether/httpmulti/client/setup"
)

// Config holds the engine-wide settings of a [client.Client]. Pointer
// fields left nil keep the client default, an explicit zero is applied.
type Config struct {
	PoolSize        int          `json:"pool_size" yaml:"pool_size" validate:"omitempty,gt=0"`
	Timeout         *Duration    `json:"timeout" yaml:"timeout" validate:"omitempty,gte=0"`
	FollowRedirects *bool        `json:"follow_redirects" yaml:"follow_redirects"`
	MaxRedirects    *int         `json:"max_redirects" yaml:"max_redirects" validate:"omitempty,gte=-1"`
	Proxy           string       `json:"proxy" yaml:"proxy" validate:"omitempty,url"`
	VerifyTLS       *bool        `json:"verify_tls" yaml:"verify_tls"`
	CAFile          string       `json:"ca_file" yaml:"ca_file" validate:"omitempty,file"`
	Impersonate     *Impersonate `json:"impersonate" yaml:"impersonate"`
	Cookies         bool         `json:"cookies" yaml:"cookies"`
	UserAgent       string       `json:"user_agent" yaml:"user_agent"`
	Throttle        *Throttle    `json:"throttle" yaml:"throttle"`
	LogLevel        string       `json:"log_level" yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// Impersonate selects a browser profile. An empty target disables
// impersonation.
type Impersonate struct {
	Target         string `json:"target" yaml:"target"`
	DefaultHeaders bool   `json:"default_headers" yaml:"default_headers"`
}

// Throttle configures request rate limiting.
type Throttle struct {
	RPS   int `json:"rps" yaml:"rps" validate:"gt=0"`
	Burst int `json:"burst" yaml:"burst" validate:"gt=0"`
}

// LoadConfig reads and parses the file at path.
//
// The file format is determined by extension:
//   - .yaml, .yml -> YAML
//   - .json -> JSON
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseConfig(data, path)
}

// ParseConfig parses and validates data. The format follows the extension
// of path and defaults to YAML.
func ParseConfig(data []byte, path string) (*Config, error) {
	var cfg Config

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	if err := setup.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Options translates cfg into client options.
func (cfg *Config) Options() []client.Option {
	var opts []client.Option

	if cfg.PoolSize > 0 {
		opts = append(opts, client.WithPoolSize(cfg.PoolSize))
	}
	if cfg.Timeout != nil {
		opts = append(opts, client.WithTimeout(cfg.Timeout.Std()))
	}
	if cfg.FollowRedirects != nil {
		opts = append(opts, client.WithFollowRedirects(*cfg.FollowRedirects))
	}
	if cfg.MaxRedirects != nil {
		opts = append(opts, client.WithMaxRedirects(*cfg.MaxRedirects))
	}
	if cfg.Proxy != "" {
		opts = append(opts, client.WithProxy(cfg.Proxy))
	}
	if cfg.VerifyTLS != nil {
		opts = append(opts, client.WithVerifyTLS(*cfg.VerifyTLS))
	}
	if cfg.CAFile != "" {
		opts = append(opts, client.WithCAFile(cfg.CAFile))
	}
	if cfg.Impersonate != nil {
		opts = append(opts, client.WithImpersonate(cfg.Impersonate.Target, cfg.Impersonate.DefaultHeaders))
	}
	if cfg.Cookies {
		opts = append(opts, client.WithCookies(true))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, client.WithUserAgent(cfg.UserAgent))
	}
	if cfg.Throttle != nil {
		opts = append(opts, client.WithThrottle(cfg.Throttle.RPS, cfg.Throttle.Burst))
	}
	if cfg.LogLevel != "" {
		opts = append(opts, client.WithLogger(cfg.logger()))
	}

	return opts
}

func (cfg *Config) logger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// =============================================================================

// Duration is a time.Duration read from a Go duration string or from a
// number of seconds.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch v := v.(type) {
	case float64:
		*d = Duration(time.Duration(v * float64(time.Second)))
		return nil
	case string:
		return d.parse(v)
	}

	return fmt.Errorf("invalid duration %s", b)
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}

	if node.Tag == "!!int" || node.Tag == "!!float" {
		var secs float64
		if err := node.Decode(&secs); err != nil {
			return err
		}
		*d = Duration(time.Duration(secs * float64(time.Second)))
		return nil
	}

	return d.parse(node.Value)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) parse(s string) error {
	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)

	return nil
}

// ParseDurationString parses a duration string with support for common formats.
//
// Supported formats:
//   - Standard Go duration: "30s", "2m", "1h30m", "500ms"
//   - Seconds as integer: "30" (treated as 30 seconds)
func ParseDurationString(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	var seconds int
	if _, err := fmt.Sscanf(s, "%d", &seconds); err == nil && fmt.Sprint(seconds) == s {
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, fmt.Errorf("invalid duration format: %s", s)
}
