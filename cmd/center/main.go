// Command center aggregates metrics reported by collectors and answers
// viewer queries.
package main

import (
	"net"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"dmonitor/codec"
	"dmonitor/internal/cli"
	"dmonitor/middleware"
	"dmonitor/monitor"
	"dmonitor/server"
)

const drainTimeout = 5 * time.Second

func main() {
	cli.Execute(cli.Command("center", "Run the monitoring center", run))
}

func run(cmd *cobra.Command, args []string) error {
	env, err := cli.Setup(args, "")
	if err != nil {
		return err
	}
	defer env.Close()
	cfg, logger := env.Config, env.Logger

	store := monitor.NewStorage(
		monitor.WithHistorySize(cfg.HistorySize),
		monitor.WithOfflineThreshold(cfg.OfflineThreshold))

	opts := []server.Option{
		server.WithCodec(codec.GetCodec(cfg.CodecType())),
		server.WithMaxFrameSize(cfg.MaxFrameSize),
		server.WithLogger(logger),
	}
	if env.Directory != nil {
		opts = append(opts, server.WithDirectory(env.Directory, cfg.AdvertiseAddr))
	}
	srv := server.NewServer(opts...)
	srv.Use(middleware.LoggingMiddleware(logger))
	if cfg.RateLimit.Rate > 0 {
		srv.Use(middleware.RateLimitMiddleware(cfg.RateLimit.Rate, cfg.RateLimit.Burst))
	}
	if cfg.HandlerTimeout > 0 {
		srv.Use(middleware.TimeoutMiddleware(cfg.HandlerTimeout))
	}
	if err := srv.Register(monitor.NewReportService(store, logger)); err != nil {
		return err
	}
	if err := srv.Register(monitor.NewQueryService(store, logger)); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}

	sigCtx, stop := cli.SignalContext()
	defer stop()

	g, ctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		return srv.Serve(ln)
	})
	g.Go(func() error {
		return monitor.RunStatusLoop(ctx, store, cfg.StatusInterval, logger)
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		return srv.Shutdown(drainTimeout)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("center stopped")
	return nil
}
