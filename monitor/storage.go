// Package monitor implements the host monitoring application on top of the
// RPC core: the center's metrics store and services, the collector's sampler
// and reporter loop, and the viewer's table rendering.
package monitor

import (
	"sort"
	"sync"
	"time"

	"dmonitor/message"
)

const (
	DefaultHistorySize      = 20
	DefaultOfflineThreshold = 10 * time.Second
)

// Offline hosts are reported with this CPU and memory usage by Query("").
const offlineUsage = -1

// HostStatus is a host's liveness as seen by the center.
type HostStatus struct {
	ServerName string
	Online     bool
	LastSeen   time.Duration // age of the latest sample
}

// Storage keeps a bounded history of samples per host.
type Storage struct {
	historySize int
	offline     time.Duration
	now         func() time.Time

	mu      sync.Mutex
	history map[string][]message.MetricsData
}

type StorageOption func(*Storage)

// WithHistorySize bounds the samples kept per host; the oldest is dropped first.
func WithHistorySize(n int) StorageOption {
	return func(s *Storage) {
		if n > 0 {
			s.historySize = n
		}
	}
}

// WithOfflineThreshold sets how old a host's latest sample may be before the
// host counts as offline.
func WithOfflineThreshold(d time.Duration) StorageOption {
	return func(s *Storage) {
		if d > 0 {
			s.offline = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) StorageOption {
	return func(s *Storage) { s.now = now }
}

func NewStorage(opts ...StorageOption) *Storage {
	s := &Storage{
		historySize: DefaultHistorySize,
		offline:     DefaultOfflineThreshold,
		now:         time.Now,
		history:     make(map[string][]message.MetricsData),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add appends a sample to its host's history.
func (s *Storage) Add(m message.MetricsData) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := append(s.history[m.ServerName], m)
	if len(h) > s.historySize {
		h = append(h[:0:0], h[len(h)-s.historySize:]...)
	}
	s.history[m.ServerName] = h
}

// Query returns the full history of serverName, oldest first, or nothing if
// the host is unknown. An empty serverName returns the latest sample of every
// host, sorted by host name, with offline hosts' usage set to -1.
func (s *Storage) Query(serverName string) []message.MetricsData {
	s.mu.Lock()
	defer s.mu.Unlock()

	if serverName != "" {
		h := s.history[serverName]
		if len(h) == 0 {
			return nil
		}
		return append([]message.MetricsData(nil), h...)
	}

	now := s.now()
	out := make([]message.MetricsData, 0, len(s.history))
	for _, name := range s.hostsLocked() {
		latest := s.history[name][len(s.history[name])-1]
		if !s.onlineLocked(latest, now) {
			latest.CPUUsage = offlineUsage
			latest.MemoryUsage = offlineUsage
		}
		out = append(out, latest)
	}
	return out
}

// Status reports every known host's liveness, sorted by host name.
func (s *Storage) Status() []HostStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make([]HostStatus, 0, len(s.history))
	for _, name := range s.hostsLocked() {
		latest := s.history[name][len(s.history[name])-1]
		out = append(out, HostStatus{
			ServerName: name,
			Online:     s.onlineLocked(latest, now),
			LastSeen:   age(latest, now),
		})
	}
	return out
}

func (s *Storage) hostsLocked() []string {
	names := make([]string, 0, len(s.history))
	for name, h := range s.history {
		if len(h) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (s *Storage) onlineLocked(m message.MetricsData, now time.Time) bool {
	return age(m, now) <= s.offline
}

func age(m message.MetricsData, now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(m.Timestamp))
}
