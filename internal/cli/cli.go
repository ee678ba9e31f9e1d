// Package cli wires configuration, logging and discovery for the dmonitor
// executables.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dmonitor/client"
	"dmonitor/codec"
	"dmonitor/config"
	"dmonitor/discovery"
	"dmonitor/loadbalance"
	"dmonitor/logging"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Env is what every executable needs after startup.
type Env struct {
	Config    *config.Config
	Logger    *zap.Logger
	Directory discovery.Directory // nil unless etcd endpoints are configured

	closeDir func() error
}

// Setup loads the configuration (overlaying args), builds the logger and,
// when etcd is configured, the discovery directory. affinityKey feeds the
// consistent_hash balancer.
func Setup(args []string, affinityKey string) (*Env, error) {
	cfg, err := config.Load(args)
	if err != nil {
		return nil, err
	}
	newLogger := logging.New
	if cfg.LogFormat == config.LogFormatConsole {
		newLogger = logging.NewDevelopment
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	env := &Env{Config: cfg, Logger: logger}

	if len(cfg.Etcd.Endpoints) == 0 {
		return env, nil
	}
	picker, err := loadbalance.New(cfg.Etcd.Balancer, affinityKey)
	if err != nil {
		return nil, err
	}
	dir, err := discovery.NewEtcdDirectory(discovery.EtcdOptions{
		Endpoints:   cfg.Etcd.Endpoints,
		DialTimeout: cfg.Etcd.DialTimeout,
		LeaseTTL:    cfg.Etcd.LeaseTTL,
		Picker:      picker,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("using etcd discovery",
		zap.Strings("endpoints", cfg.Etcd.Endpoints),
		zap.String("balancer", picker.Name()))
	env.Directory = dir
	env.closeDir = dir.Close
	return env, nil
}

// Target is the destination for calls to service: its name when a directory
// resolves it, the configured address otherwise.
func (e *Env) Target(service string) string {
	if e.Directory != nil {
		return service
	}
	return e.Config.Addr
}

// NewChannel returns a client channel using the configured codec and directory.
func (e *Env) NewChannel() *client.Channel {
	opts := []client.Option{
		client.WithCodec(codec.GetCodec(e.Config.CodecType())),
		client.WithMaxFrameSize(e.Config.MaxFrameSize),
		client.WithLogger(e.Logger),
	}
	if e.Directory != nil {
		opts = append(opts, client.WithDirectory(e.Directory))
	}
	return client.NewChannel(opts...)
}

// Close releases the directory and flushes the logger.
func (e *Env) Close() {
	if e.closeDir != nil {
		if err := e.closeDir(); err != nil {
			e.Logger.Warn("closing directory", zap.Error(err))
		}
	}
	_ = e.Logger.Sync()
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}

// Command builds a root command taking the optional [ip [port]] arguments.
func Command(use, short string, run func(cmd *cobra.Command, args []string) error) *cobra.Command {
	return &cobra.Command{
		Use:           use + " [ip [port]]",
		Short:         short,
		Long:          short + ".\n\nSettings are read from the YAML file named by $" + config.EnvConfigPath + ".",
		Args:          cobra.MaximumNArgs(2),
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
}

// Execute runs cmd and exits non-zero on failure.
func Execute(cmd *cobra.Command) {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
