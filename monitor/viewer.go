package monitor

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"

	"dmonitor/client"
	"dmonitor/message"
)

const DefaultQueryInterval = time.Second

var errQueryFailed = errors.New("monitor: query unsuccessful")

// Viewer periodically queries the center and prints a table.
type Viewer struct {
	Channel    *client.Channel
	Address    string
	ServerName string // empty queries every host
	Interval   time.Duration
	Out        io.Writer
	Logger     *zap.Logger
}

// Query performs one query.
func (v *Viewer) Query(ctx context.Context) ([]message.MetricsData, error) {
	resp, err := client.Call[message.QueryResponse](ctx, v.Channel, v.Address, QueryServiceName, QueryMethod,
		&message.QueryRequest{ServerName: v.ServerName})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, errQueryFailed
	}
	return resp.Metrics, nil
}

// Run queries and prints until ctx ends. Failed queries are logged.
func (v *Viewer) Run(ctx context.Context) error {
	interval := v.Interval
	if interval <= 0 {
		interval = DefaultQueryInterval
	}
	logger := v.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		metrics, err := v.Query(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			logger.Warn("query failed", zap.Error(err))
		case err == nil:
			if err := WriteTable(v.Out, metrics); err != nil {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
