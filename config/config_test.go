package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dmonitor/codec"
	"dmonitor/protocol"
)

func TestDefaults(t *testing.T) {
	cfg, err := Parse("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != "127.0.0.1:8000" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.CodecType() != codec.CodecTypeProto {
		t.Errorf("codec = %v", cfg.CodecType())
	}
	if cfg.MaxFrameSize != protocol.DefaultMaxFrameSize {
		t.Errorf("MaxFrameSize = %d", cfg.MaxFrameSize)
	}
	if cfg.ReportInterval != 3*time.Second || cfg.QueryInterval != time.Second || cfg.StatusInterval != 30*time.Second {
		t.Errorf("intervals = %v %v %v", cfg.ReportInterval, cfg.QueryInterval, cfg.StatusInterval)
	}
	if cfg.HistorySize != 20 || cfg.OfflineThreshold != 10*time.Second {
		t.Errorf("history = %d offline = %v", cfg.HistorySize, cfg.OfflineThreshold)
	}
	if cfg.LogFormat != LogFormatJSON {
		t.Errorf("LogFormat = %q", cfg.LogFormat)
	}
	if len(cfg.Etcd.Endpoints) != 0 || cfg.Etcd.Balancer != "round_robin" {
		t.Errorf("etcd = %+v", cfg.Etcd)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dmonitor.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseFile(t *testing.T) {
	path := writeConfig(t, `
addr: 0.0.0.0:9000
advertise_addr: 10.0.0.5:9000
codec: json
log_level: debug
etcd:
  endpoints: [127.0.0.1:2379]
  lease_ttl: 5
  balancer: consistent_hash
rate_limit:
  rate: 50
handler_timeout: 2s
report_interval: 500ms
history_size: 5
`)
	cfg, err := Parse(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != "0.0.0.0:9000" || cfg.AdvertiseAddr != "10.0.0.5:9000" {
		t.Errorf("addr = %q advertise = %q", cfg.Addr, cfg.AdvertiseAddr)
	}
	if cfg.CodecType() != codec.CodecTypeJSON {
		t.Errorf("codec = %v", cfg.CodecType())
	}
	if cfg.Etcd.LeaseTTL != 5 || cfg.Etcd.Balancer != "consistent_hash" || cfg.Etcd.Endpoints[0] != "127.0.0.1:2379" {
		t.Errorf("etcd = %+v", cfg.Etcd)
	}
	if cfg.RateLimit.Burst != 50 {
		t.Errorf("burst = %d, expect defaulted to rate", cfg.RateLimit.Burst)
	}
	if cfg.HandlerTimeout != 2*time.Second || cfg.ReportInterval != 500*time.Millisecond || cfg.HistorySize != 5 {
		t.Errorf("cfg = %+v", cfg)
	}
	// Unset fields still get defaults.
	if cfg.QueryInterval != time.Second {
		t.Errorf("QueryInterval = %v", cfg.QueryInterval)
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"codec", "codec: xml\n", "unknown codec"},
		{"log level", "log_level: loud\n", "log_level"},
		{"log format", "log_format: xml\n", "log_format"},
		{"balancer", "etcd:\n  balancer: random\n", "unknown strategy"},
		{"addr", "addr: nowhere\n", "addr"},
		{"negative", "history_size: -1\n", "history_size"},
		{"yaml", "addr: [\n", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expect error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestApplyArgs(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{nil, "127.0.0.1:8000"},
		{[]string{"10.0.0.1"}, "10.0.0.1:8000"},
		{[]string{"10.0.0.1:9001"}, "10.0.0.1:9001"},
		{[]string{"10.0.0.1", "9002"}, "10.0.0.1:9002"},
		{[]string{"::1", "9003"}, "[::1]:9003"},
	}
	for _, tt := range tests {
		cfg := &Config{}
		cfg.ApplyDefaults()
		if err := cfg.ApplyArgs(tt.args); err != nil {
			t.Fatalf("%v: %v", tt.args, err)
		}
		if cfg.Addr != tt.want {
			t.Errorf("%v: expect %q, got %q", tt.args, tt.want, cfg.Addr)
		}
	}
}

func TestApplyArgsInvalid(t *testing.T) {
	for _, args := range [][]string{
		{"10.0.0.1", "http"},
		{"10.0.0.1", "0"},
		{"10.0.0.1", "70000"},
		{"", "8000"},
		{"a", "1", "extra"},
	} {
		cfg := &Config{}
		cfg.ApplyDefaults()
		if err := cfg.ApplyArgs(args); !errors.Is(err, ErrArgs) {
			t.Errorf("%v: expect ErrArgs, got %v", args, err)
		}
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv(EnvConfigPath, writeConfig(t, "addr: 10.1.1.1:7000\n"))
	cfg, err := Load([]string{"10.2.2.2"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != "10.2.2.2:7000" {
		t.Fatalf("expect args to override host only, got %q", cfg.Addr)
	}
}
