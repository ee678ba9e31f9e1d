package monitor

import (
	"context"

	"go.uber.org/zap"

	"dmonitor/message"
	"dmonitor/server"
)

const (
	ReportServiceName = "MonitorReportService"
	QueryServiceName  = "MonitorQueryService"
	ReportMethod      = "Report"
	QueryMethod       = "Query"
)

// NewReportService returns the service collectors report samples to.
func NewReportService(store *Storage, logger *zap.Logger) *server.Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := server.NewService(ReportServiceName)
	server.AddMethod(svc, ReportMethod, server.Sync(func(ctx context.Context, req *message.ReportRequest) (*message.ReportResponse, error) {
		m := req.Metrics
		store.Add(m)
		logger.Debug("stored metrics",
			zap.String("server", m.ServerName),
			zap.Int64("timestamp", m.Timestamp),
			zap.Float32("cpu", m.CPUUsage),
			zap.Float32("memory", m.MemoryUsage))
		return &message.ReportResponse{Success: true}, nil
	}))
	return svc
}

// NewQueryService returns the service viewers query.
func NewQueryService(store *Storage, logger *zap.Logger) *server.Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := server.NewService(QueryServiceName)
	server.AddMethod(svc, QueryMethod, server.Sync(func(ctx context.Context, req *message.QueryRequest) (*message.QueryResponse, error) {
		metrics := store.Query(req.ServerName)
		target := req.ServerName
		if target == "" {
			target = "ALL"
		}
		logger.Debug("query", zap.String("server", target), zap.Int("records", len(metrics)))
		return &message.QueryResponse{Metrics: metrics, Success: true}, nil
	}))
	return svc
}
