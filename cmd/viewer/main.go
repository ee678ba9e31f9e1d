// Command viewer periodically prints the metrics held by the center.
package main

import (
	"github.com/spf13/cobra"

	"dmonitor/internal/cli"
	"dmonitor/monitor"
)

func main() {
	cli.Execute(cli.Command("viewer", "Show host metrics from the monitoring center", run))
}

func run(cmd *cobra.Command, args []string) error {
	env, err := cli.Setup(args, monitor.Hostname())
	if err != nil {
		return err
	}
	defer env.Close()

	ch := env.NewChannel()
	defer ch.Close()

	ctx, stop := cli.SignalContext()
	defer stop()

	v := &monitor.Viewer{
		Channel:    ch,
		Address:    env.Target(monitor.QueryServiceName),
		ServerName: env.Config.ServerName,
		Interval:   env.Config.QueryInterval,
		Out:        cmd.OutOrStdout(),
		Logger:     env.Logger,
	}
	return v.Run(ctx)
}
