// Package config loads client settings from YAML or JSONC files, a .env
// file and the environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	satori "github.com/nonebot/adapter-satori"
)

// Logging selects the log level and output format.
type Logging struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"` // text or json
}

// Config is the file representation of a client.
type Config struct {
	Clients   []satori.ClientInfo `json:"clients" yaml:"clients"`
	Nicknames []string            `json:"nicknames,omitempty" yaml:"nicknames,omitempty"`

	HeartbeatInterval Duration `json:"heartbeat_interval" yaml:"heartbeat_interval"`
	ReconnectDelay    Duration `json:"reconnect_delay" yaml:"reconnect_delay"`
	ConnectTimeout    Duration `json:"connect_timeout" yaml:"connect_timeout"`
	ShutdownTimeout   Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`

	Log Logging `json:"log" yaml:"log"`
}

// Load reads the file at path, if path is non-empty, on top of the
// defaults. Variables from envFile are loaded into the process
// environment first; a missing envFile is not an error. When the file
// names no clients, a single client is taken from SATORI_HOST,
// SATORI_PORT, SATORI_PATH and SATORI_TOKEN.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	cfg := defaults()
	if path != "" {
		if err := readFile(path, &cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		return fmt.Errorf("%s: unsupported config format %q", path, ext)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("SATORI_NICKNAMES"); v != "" && len(c.Nicknames) == 0 {
		for _, n := range strings.Split(v, ",") {
			if n = strings.TrimSpace(n); n != "" {
				c.Nicknames = append(c.Nicknames, n)
			}
		}
	}
	if v := os.Getenv("SATORI_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if len(c.Clients) > 0 {
		for i := range c.Clients {
			if c.Clients[i].Host == "" {
				c.Clients[i].Host = defaultHost
			}
			if c.Clients[i].Port == 0 {
				c.Clients[i].Port = defaultPort
			}
		}
		return nil
	}

	host, hasHost := os.LookupEnv("SATORI_HOST")
	portStr, hasPort := os.LookupEnv("SATORI_PORT")
	if !hasHost && !hasPort {
		return nil
	}
	info := satori.ClientInfo{
		Host:  host,
		Port:  defaultPort,
		Path:  os.Getenv("SATORI_PATH"),
		Token: os.Getenv("SATORI_TOKEN"),
	}
	if info.Host == "" {
		info.Host = defaultHost
	}
	if hasPort {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("SATORI_PORT: %w", err)
		}
		info.Port = port
	}
	c.Clients = []satori.ClientInfo{info}
	return nil
}

// Validate reports the first configuration mistake.
func (c *Config) Validate() error {
	if len(c.Clients) == 0 {
		return errors.New("no clients configured")
	}
	for i, info := range c.Clients {
		if err := info.Validate(); err != nil {
			return fmt.Errorf("clients[%d]: %w", i, err)
		}
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log format %q: want text or json", c.Log.Format)
	}
	return nil
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log level %q: %w", c.Log.Level, err)
	}
	return level, nil
}

// Tokens returns every configured token, for log redaction.
func (c *Config) Tokens() []string {
	out := make([]string, 0, len(c.Clients))
	for _, info := range c.Clients {
		if info.Token != "" {
			out = append(out, info.Token)
		}
	}
	return out
}

// ClientConfig converts the file settings into a satori.Config. Handlers
// and the logger are left for the caller.
func (c *Config) ClientConfig() satori.Config {
	return satori.Config{
		Clients:           c.Clients,
		Nicknames:         c.Nicknames,
		HeartbeatInterval: time.Duration(c.HeartbeatInterval),
		ReconnectDelay:    time.Duration(c.ReconnectDelay),
		ConnectTimeout:    time.Duration(c.ConnectTimeout),
		ShutdownTimeout:   time.Duration(c.ShutdownTimeout),
	}
}
