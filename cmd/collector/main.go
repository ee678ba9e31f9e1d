// Command collector samples the local host and reports to the center.
package main

import (
	"github.com/spf13/cobra"

	"dmonitor/internal/cli"
	"dmonitor/monitor"
)

func main() {
	cli.Execute(cli.Command("collector", "Report host metrics to the monitoring center", run))
}

func run(cmd *cobra.Command, args []string) error {
	// The host name doubles as the consistent_hash key, pinning this
	// collector to one center.
	hostname := monitor.Hostname()
	env, err := cli.Setup(args, hostname)
	if err != nil {
		return err
	}
	defer env.Close()

	if env.Config.ServerName != "" {
		hostname = env.Config.ServerName
	}
	sampler, err := monitor.NewSampler("", hostname)
	if err != nil {
		return err
	}
	ch := env.NewChannel()
	defer ch.Close()

	ctx, stop := cli.SignalContext()
	defer stop()

	r := &monitor.Reporter{
		Sampler:  sampler,
		Channel:  ch,
		Address:  env.Target(monitor.ReportServiceName),
		Interval: env.Config.ReportInterval,
		Logger:   env.Logger,
	}
	return r.Run(ctx)
}
