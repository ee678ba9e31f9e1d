package monitor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"dmonitor/client"
	"dmonitor/message"
)

const DefaultReportInterval = 3 * time.Second

// Reporter samples the local host and reports to the center on a fixed
// interval. Failed reports are logged and the next tick tries again over a
// fresh connection.
type Reporter struct {
	Sampler  *Sampler
	Channel  *client.Channel
	Address  string // center host:port, or a service name to resolve
	Interval time.Duration
	Logger   *zap.Logger
}

// Run reports immediately and then on every tick until ctx ends.
func (r *Reporter) Run(ctx context.Context) error {
	interval := r.Interval
	if interval <= 0 {
		interval = DefaultReportInterval
	}
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("collector started", zap.String("server", r.Sampler.Hostname()), zap.String("center", r.Address))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := r.ReportOnce(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("report failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// ReportOnce takes one sample and sends it.
func (r *Reporter) ReportOnce(ctx context.Context) error {
	m, err := r.Sampler.Sample()
	if err != nil {
		return err
	}
	resp, err := client.Call[message.ReportResponse](ctx, r.Channel, r.Address, ReportServiceName, ReportMethod,
		&message.ReportRequest{Metrics: m})
	if err != nil {
		return err
	}
	if !resp.Success {
		return &ResultError{Code: resp.Result.ErrCode, Msg: resp.Result.ErrMsg}
	}
	if r.Logger != nil {
		r.Logger.Debug("reported",
			zap.Int64("timestamp", m.Timestamp),
			zap.Float32("cpu", m.CPUUsage),
			zap.Float32("memory", m.MemoryUsage))
	}
	return nil
}

// ResultError is an unsuccessful application result returned by the center.
type ResultError struct {
	Code int32
	Msg  string
}

func (e *ResultError) Error() string {
	return fmt.Sprintf("monitor: center returned error %d: %s", e.Code, e.Msg)
}
