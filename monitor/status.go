package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const DefaultStatusInterval = 30 * time.Second

// LogStatus logs every host's liveness once.
func LogStatus(store *Storage, logger *zap.Logger) {
	status := store.Status()
	online := 0
	for _, st := range status {
		state := "OFFLINE"
		if st.Online {
			state = "ONLINE"
			online++
		}
		logger.Info("host status",
			zap.String("server", st.ServerName),
			zap.String("status", state),
			zap.Duration("last_seen", st.LastSeen.Truncate(time.Second)))
	}
	logger.Info("status summary", zap.Int("hosts", len(status)), zap.Int("online", online))
}

// RunStatusLoop calls LogStatus every interval until ctx ends.
func RunStatusLoop(ctx context.Context, store *Storage, interval time.Duration, logger *zap.Logger) error {
	if interval <= 0 {
		interval = DefaultStatusInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			LogStatus(store, logger)
		}
	}
}
