package monitor

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"dmonitor/message"
)

// WriteTable renders metrics as an aligned text table. Rows with negative
// usage are shown as offline.
func WriteTable(w io.Writer, metrics []message.MetricsData) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "HOST\tSTATUS\tCPU\tMEMORY\tLAST REPORT")
	for _, m := range metrics {
		status, cpu, mem := "online", percent(m.CPUUsage), percent(m.MemoryUsage)
		if m.CPUUsage < 0 || m.MemoryUsage < 0 {
			status, cpu, mem = "offline", "-", "-"
		}
		last := time.UnixMilli(m.Timestamp).Format("15:04:05")
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", m.ServerName, status, cpu, mem, last)
	}
	if len(metrics) == 0 {
		fmt.Fprintln(tw, "(no data)\t\t\t\t")
	}
	return tw.Flush()
}

func percent(v float32) string {
	return fmt.Sprintf("%.1f%%", v)
}
