// Package config handles configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/edge-proxy/config.toml",
	"configs/config.toml",
}

// reservedRoutes are served by the edge itself and must stay outside the API prefix.
var reservedRoutes = []string{"/healthz", "/proxy/status"}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config    string `kong:"short='c',help='Path to TOML or YAML config file.',env='CONFIG_PATH'"`
	Host      string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port      int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	ProxyPath string `kong:"help='Upstream base URL that API requests are forwarded to (overrides config).',env='PROXY_PATH'"`
	StaticDir string `kong:"help='Static asset root directory (overrides config).',env='STATIC_DIR'"`
	APIPrefix string `kong:"help='Path prefix routed to the upstream (overrides config).',env='API_PREFIX'"`
	LogLevel  string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
	LogFormat string `kong:"help='Log format: json|text|console (overrides config).',env='LOG_FORMAT'"`
}

// Config is the top-level application configuration. It is built once at
// startup and never mutated afterwards.
type Config struct {
	Server      ServerConfig      `toml:"server" yaml:"server"`
	Proxy       ProxyConfig       `toml:"proxy" yaml:"proxy"`
	Static      StaticConfig      `toml:"static" yaml:"static"`
	Compression CompressionConfig `toml:"compression" yaml:"compression"`
	Log         LogConfig         `toml:"log" yaml:"log"`
	Metrics     MetricsConfig     `toml:"metrics" yaml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host" yaml:"host"`
	Port         int             `toml:"port" yaml:"port"`
	BodyMaxBytes int64           `toml:"body_max_bytes" yaml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit" yaml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled" yaml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second" yaml:"requests_per_second"`
}

// ProxyConfig holds the API prefix and upstream connection settings.
type ProxyConfig struct {
	APIPrefix       string `toml:"api_prefix" yaml:"api_prefix"`
	BaseURL         string `toml:"base_url" yaml:"base_url"`
	TimeoutSeconds  int    `toml:"timeout_seconds" yaml:"timeout_seconds"`
	IdleConnections int    `toml:"idle_connections" yaml:"idle_connections"`
}

// StaticConfig holds the document root settings.
type StaticConfig struct {
	Root  string `toml:"root" yaml:"root"`
	Index string `toml:"index" yaml:"index"`
}

// CompressionConfig controls response compression.
type CompressionConfig struct {
	Disabled bool `toml:"disabled" yaml:"disabled"`
	Level    int  `toml:"level" yaml:"level"` // gzip level; 0 means default
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Path    string `toml:"path" yaml:"path"`
}

// Load reads the config file (if any) and applies CLI/env overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/edge-proxy/config.toml then configs/config.toml; finding nothing is
// fine as long as the environment supplies the required settings.
func Load(cli *CLI) (*Config, error) {
	var cfg Config

	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return nil, err
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// decodeFile unmarshals a TOML or YAML file, chosen by extension.
func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = toml.Unmarshal(data, cfg)
	}
	if err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.ProxyPath != "" {
		c.Proxy.BaseURL = cli.ProxyPath
	}
	if cli.StaticDir != "" {
		c.Static.Root = cli.StaticDir
	}
	if cli.APIPrefix != "" {
		c.Proxy.APIPrefix = cli.APIPrefix
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		c.Log.Format = cli.LogFormat
	}
}

func (c *Config) validate() error {
	if c.Server.Port == 0 {
		return errors.New("server.port is required (set PORT or server.port)")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	if err := validateBaseURL(c.Proxy.BaseURL); err != nil {
		return err
	}
	if c.Proxy.TimeoutSeconds < 0 {
		return fmt.Errorf("proxy.timeout_seconds must be non-negative; got %d", c.Proxy.TimeoutSeconds)
	}
	if c.Proxy.IdleConnections < 0 {
		return fmt.Errorf("proxy.idle_connections must be non-negative; got %d", c.Proxy.IdleConnections)
	}

	prefix := c.Proxy.APIPrefix
	if prefix[0] != '/' {
		return fmt.Errorf("proxy.api_prefix must start with '/'; got %q", prefix)
	}
	if prefix == "/" {
		return errors.New("proxy.api_prefix must not be '/'; static assets would be unreachable")
	}
	routes := reservedRoutes
	if c.Metrics.Enabled {
		if c.Metrics.Path[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", c.Metrics.Path)
		}
		routes = append([]string{c.Metrics.Path}, reservedRoutes...)
	}
	for _, r := range routes {
		if strings.HasPrefix(r, prefix) {
			return fmt.Errorf("route %q conflicts with proxy.api_prefix %q", r, prefix)
		}
	}

	if c.Static.Root == "" {
		return errors.New("static.root is required (set STATIC_DIR or static.root)")
	}
	info, err := os.Stat(c.Static.Root)
	if err != nil {
		return fmt.Errorf("static.root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("static.root %q is not a directory", c.Static.Root)
	}
	if strings.ContainsAny(c.Static.Index, `/\`) {
		return fmt.Errorf("static.index must be a plain file name; got %q", c.Static.Index)
	}

	if c.Compression.Level < -1 || c.Compression.Level > 9 {
		return fmt.Errorf("compression.level must be -1–9; got %d", c.Compression.Level)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text", "console":
	default:
		return fmt.Errorf("log.format must be one of: json, text, console; got %q", c.Log.Format)
	}

	return nil
}

// validateBaseURL checks that the upstream base is an absolute http(s) URL
// onto which a path-and-query can be appended verbatim.
func validateBaseURL(raw string) error {
	if raw == "" {
		return errors.New("proxy.base_url is required (set PROXY_PATH or proxy.base_url)")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("proxy.base_url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("proxy.base_url must use http or https; got %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("proxy.base_url must include a host; got %q", raw)
	}
	if u.RawQuery != "" || u.Fragment != "" || strings.ContainsAny(raw, "?#") {
		return fmt.Errorf("proxy.base_url must not carry a query or fragment; got %q", raw)
	}
	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// The port has no default: it is a required setting.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 10 * 1024 * 1024 // 10 MB
	}
	if c.Proxy.APIPrefix == "" {
		c.Proxy.APIPrefix = "/api"
	}
	// The path-and-query always starts with '/', so a trailing slash on the
	// base would double it.
	c.Proxy.BaseURL = strings.TrimSuffix(c.Proxy.BaseURL, "/")
	if c.Proxy.TimeoutSeconds == 0 {
		c.Proxy.TimeoutSeconds = 120
	}
	if c.Proxy.IdleConnections == 0 {
		c.Proxy.IdleConnections = 100
	}
	if c.Static.Index == "" {
		c.Static.Index = "index.html"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
