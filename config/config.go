// Package config holds the settings shared by the center, collector and
// viewer executables.
//
// Settings come from an optional YAML file named by $DMONITOR_CONFIG; the
// positional [ip [port]] arguments override the address.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"dmonitor/codec"
	"dmonitor/loadbalance"
	"dmonitor/protocol"
)

// EnvConfigPath names the environment variable holding the config file path.
const EnvConfigPath = "DMONITOR_CONFIG"

const (
	DefaultIP       = "127.0.0.1"
	DefaultPort     = 8000
	DefaultCodec    = "proto"
	DefaultLogLevel = "info"

	LogFormatJSON    = "json"
	LogFormatConsole = "console"

	DefaultEtcdDialTimeout = 5 * time.Second
	DefaultEtcdLeaseTTL    = 10 // seconds
	DefaultEtcdBalancer    = "round_robin"

	DefaultReportInterval   = 3 * time.Second
	DefaultQueryInterval    = time.Second
	DefaultStatusInterval   = 30 * time.Second
	DefaultHistorySize      = 20
	DefaultOfflineThreshold = 10 * time.Second
)

// ErrArgs reports malformed positional address arguments.
var ErrArgs = errors.New("config: invalid address arguments")

// EtcdConfig enables etcd-backed service discovery when Endpoints is set.
type EtcdConfig struct {
	Endpoints   []string      `yaml:"endpoints"`
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// LeaseTTL is the lease on published services, in seconds.
	LeaseTTL int64 `yaml:"lease_ttl"`

	// Balancer picks among published centers: round_robin, weighted_random
	// or consistent_hash (keyed by host name).
	Balancer string `yaml:"balancer"`
}

// RateLimitConfig bounds the request rate the center dispatches.
// A zero Rate disables limiting.
type RateLimitConfig struct {
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
}

type Config struct {
	// Addr is the center's host:port: the listen address for the center and
	// the destination for collectors and viewers.
	// Default: 127.0.0.1:8000
	Addr string `yaml:"addr"`

	// AdvertiseAddr is published to the directory instead of the listen
	// address, for centers listening on a wildcard address.
	AdvertiseAddr string `yaml:"advertise_addr"`

	// Codec is the payload encoding, "proto" or "json". All parties must agree.
	Codec string `yaml:"codec"`

	// MaxFrameSize bounds incoming frames in bytes. Default: 4 MiB.
	MaxFrameSize uint32 `yaml:"max_frame_size"`

	LogLevel string `yaml:"log_level"`

	// LogFormat is "json" (default) or "console" for human-readable output.
	LogFormat string `yaml:"log_format"`

	Etcd      EtcdConfig      `yaml:"etcd"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// HandlerTimeout bounds one dispatch on the center. Zero means no bound.
	HandlerTimeout time.Duration `yaml:"handler_timeout"`

	// ServerName is the host name a collector reports under (the OS host
	// name when empty) and the host a viewer shows (every host when empty).
	ServerName string `yaml:"server_name"`

	ReportInterval   time.Duration `yaml:"report_interval"`
	QueryInterval    time.Duration `yaml:"query_interval"`
	StatusInterval   time.Duration `yaml:"status_interval"`
	HistorySize      int           `yaml:"history_size"`
	OfflineThreshold time.Duration `yaml:"offline_threshold"`
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = net.JoinHostPort(DefaultIP, strconv.Itoa(DefaultPort))
	}
	if c.Codec == "" {
		c.Codec = DefaultCodec
	}
	if c.MaxFrameSize == 0 {
		c.MaxFrameSize = protocol.DefaultMaxFrameSize
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = LogFormatJSON
	}
	if c.Etcd.DialTimeout == 0 {
		c.Etcd.DialTimeout = DefaultEtcdDialTimeout
	}
	if c.Etcd.LeaseTTL == 0 {
		c.Etcd.LeaseTTL = DefaultEtcdLeaseTTL
	}
	if c.Etcd.Balancer == "" {
		c.Etcd.Balancer = DefaultEtcdBalancer
	}
	if c.RateLimit.Rate > 0 && c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = max(1, int(c.RateLimit.Rate))
	}
	if c.ReportInterval == 0 {
		c.ReportInterval = DefaultReportInterval
	}
	if c.QueryInterval == 0 {
		c.QueryInterval = DefaultQueryInterval
	}
	if c.StatusInterval == 0 {
		c.StatusInterval = DefaultStatusInterval
	}
	if c.HistorySize == 0 {
		c.HistorySize = DefaultHistorySize
	}
	if c.OfflineThreshold == 0 {
		c.OfflineThreshold = DefaultOfflineThreshold
	}
}

// Validate checks that values are within acceptable ranges.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return fmt.Errorf("config: addr %q: %w", c.Addr, err)
	}
	if _, err := codec.ParseCodecType(c.Codec); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid log_level %q", c.LogLevel)
	}
	if c.LogFormat != LogFormatJSON && c.LogFormat != LogFormatConsole {
		return fmt.Errorf("config: invalid log_format %q", c.LogFormat)
	}
	if _, err := loadbalance.New(c.Etcd.Balancer, ""); err != nil {
		return fmt.Errorf("config: etcd: %w", err)
	}
	if c.Etcd.LeaseTTL < 0 {
		return errors.New("config: etcd: lease_ttl must not be negative")
	}
	if c.RateLimit.Rate < 0 || c.RateLimit.Burst < 0 {
		return errors.New("config: rate_limit: rate and burst must not be negative")
	}
	if c.HandlerTimeout < 0 {
		return errors.New("config: handler_timeout must not be negative")
	}
	if c.ReportInterval < 0 || c.QueryInterval < 0 || c.StatusInterval < 0 || c.OfflineThreshold < 0 {
		return errors.New("config: intervals must not be negative")
	}
	if c.HistorySize < 0 {
		return errors.New("config: history_size must not be negative")
	}
	return nil
}

// CodecType returns the configured codec.
func (c *Config) CodecType() codec.CodecType {
	t, _ := codec.ParseCodecType(c.Codec)
	return t
}

// Parse reads a YAML config file. An empty path yields the defaults.
func Parse(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load parses the file named by $DMONITOR_CONFIG and overlays args.
func Load(args []string) (*Config, error) {
	cfg, err := Parse(os.Getenv(EnvConfigPath))
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyArgs(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyArgs overrides Addr from positional arguments: none keeps it, one is
// host:port or an ip (keeping the configured port), two are ip and port.
func (c *Config) ApplyArgs(args []string) error {
	host, port, err := net.SplitHostPort(c.Addr)
	if err != nil {
		return fmt.Errorf("config: addr %q: %w", c.Addr, err)
	}
	switch len(args) {
	case 0:
		return nil
	case 1:
		if h, p, err := net.SplitHostPort(args[0]); err == nil {
			host, port = h, p
		} else {
			host = args[0]
		}
	case 2:
		host, port = args[0], args[1]
	default:
		return fmt.Errorf("%w: expected at most 2, got %d", ErrArgs, len(args))
	}
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrArgs)
	}
	if n, err := strconv.ParseUint(port, 10, 16); err != nil || n == 0 {
		return fmt.Errorf("%w: port %q", ErrArgs, port)
	}
	c.Addr = net.JoinHostPort(host, port)
	return nil
}
