package monitor

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/prometheus/procfs"

	"dmonitor/message"
)

var errProcFormat = errors.New("monitor: unexpected /proc format")

// Sampler reads CPU and memory usage of the local host from procfs.
type Sampler struct {
	fs       procfs.FS
	hostname string
	now      func() time.Time

	mu        sync.Mutex
	prevTotal float64
	prevIdle  float64
}

// NewSampler reads procfs mounted at procRoot (/proc when empty). An empty
// hostname is taken from the OS.
func NewSampler(procRoot, hostname string) (*Sampler, error) {
	if procRoot == "" {
		procRoot = procfs.DefaultMountPoint
	}
	fs, err := procfs.NewFS(procRoot)
	if err != nil {
		return nil, fmt.Errorf("monitor: procfs: %w", err)
	}
	if hostname == "" {
		hostname = Hostname()
	}
	return &Sampler{fs: fs, hostname: hostname, now: time.Now}, nil
}

// Hostname returns the OS host name, or "unknown".
func Hostname() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "unknown"
	}
	return name
}

func (s *Sampler) Hostname() string {
	return s.hostname
}

// Sample returns one metrics record. CPU usage is measured since the previous
// Sample; the first call reports 0.
func (s *Sampler) Sample() (message.MetricsData, error) {
	cpu, err := s.cpuUsage()
	if err != nil {
		return message.MetricsData{}, err
	}
	mem, err := s.memoryUsage()
	if err != nil {
		return message.MetricsData{}, err
	}
	return message.MetricsData{
		ServerName:  s.hostname,
		Timestamp:   s.now().UnixMilli(),
		CPUUsage:    cpu,
		MemoryUsage: mem,
	}, nil
}

func (s *Sampler) cpuUsage() (float32, error) {
	stat, err := s.fs.Stat()
	if err != nil {
		return 0, fmt.Errorf("monitor: read stat: %w", err)
	}
	c := stat.CPUTotal
	total := c.User + c.Nice + c.System + c.Idle + c.Iowait + c.IRQ + c.SoftIRQ + c.Steal
	if total <= 0 {
		return 0, fmt.Errorf("%w: no cpu line in stat", errProcFormat)
	}
	idle := c.Idle + c.Iowait

	s.mu.Lock()
	defer s.mu.Unlock()
	var usage float32
	if s.prevTotal != 0 && total > s.prevTotal {
		totalDiff := total - s.prevTotal
		idleDiff := min(max(idle-s.prevIdle, 0), totalDiff)
		usage = float32(100 * (totalDiff - idleDiff) / totalDiff)
	}
	s.prevTotal, s.prevIdle = total, idle
	return usage, nil
}

func (s *Sampler) memoryUsage() (float32, error) {
	mi, err := s.fs.Meminfo()
	if err != nil {
		return 0, fmt.Errorf("monitor: read meminfo: %w", err)
	}
	if mi.MemTotal == nil || *mi.MemTotal == 0 {
		return 0, nil
	}
	total := *mi.MemTotal
	var available uint64
	if mi.MemAvailable != nil {
		available = min(*mi.MemAvailable, total)
	}
	return float32(100 * float64(total-available) / float64(total)), nil
}
