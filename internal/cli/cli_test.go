package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"dmonitor/config"
)

func TestSetupWithoutEtcd(t *testing.T) {
	t.Setenv(config.EnvConfigPath, "")
	env, err := Setup([]string{"10.0.0.9", "9100"}, "host-a")
	if err != nil {
		t.Fatal(err)
	}
	defer env.Close()

	if env.Directory != nil {
		t.Fatal("expect no directory without etcd endpoints")
	}
	if got := env.Target("MonitorReportService"); got != "10.0.0.9:9100" {
		t.Fatalf("expect configured address, got %q", got)
	}
	ch := env.NewChannel()
	if err := ch.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestSetupBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("codec: xml\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(config.EnvConfigPath, path)
	if _, err := Setup(nil, ""); err == nil {
		t.Fatal("expect error for invalid codec")
	}
}

func TestCommandArgs(t *testing.T) {
	var got []string
	cmd := Command("center", "Run the center", func(_ *cobra.Command, args []string) error {
		got = args
		return nil
	})

	cmd.SetArgs([]string{"127.0.0.1", "9000"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expect 2 args, got %v", got)
	}

	cmd.SetArgs([]string{"a", "b", "c"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expect error for 3 args")
	}
}

func TestSetupConsoleLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.yaml")
	if err := os.WriteFile(path, []byte("log_format: console\nlog_level: debug\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(config.EnvConfigPath, path)
	env, err := Setup(nil, "")
	if err != nil {
		t.Fatal(err)
	}
	defer env.Close()

	if env.Config.LogFormat != config.LogFormatConsole {
		t.Fatalf("expect console format, got %q", env.Config.LogFormat)
	}
	if !env.Logger.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("expect debug enabled")
	}
}
