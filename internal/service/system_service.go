package service

import (
	"context"
	"runtime"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"go.uber.org/zap"

	"github.com/shivang-goliyan/CloudRadius-sub000/internal/provision"
)

// SystemStatus is the operational snapshot served on the status endpoint.
type SystemStatus struct {
	Healthy        bool      `json:"healthy"`
	DatabaseOK     bool      `json:"database_ok"`
	PendingRetries int64     `json:"pending_retries"`
	CPUPercent     float64   `json:"cpu_percent"`
	MemoryPercent  float64   `json:"memory_percent"`
	Goroutines     int       `json:"goroutines"`
	UptimeSeconds  int64     `json:"uptime_seconds"`
	Timestamp      time.Time `json:"timestamp"`
}

type SystemService struct {
	pool      *pgxpool.Pool
	outbox    *provision.Outbox
	logger    *zap.Logger
	startedAt time.Time
}

func NewSystemService(pool *pgxpool.Pool, outbox *provision.Outbox, logger *zap.Logger) *SystemService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SystemService{
		pool:      pool,
		outbox:    outbox,
		logger:    logger,
		startedAt: time.Now().UTC(),
	}
}

func (s *SystemService) Status(ctx context.Context) *SystemStatus {
	now := time.Now().UTC()
	status := &SystemStatus{
		Goroutines:    runtime.NumGoroutine(),
		UptimeSeconds: int64(now.Sub(s.startedAt).Seconds()),
		Timestamp:     now,
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if s.pool != nil && s.pool.Ping(pingCtx) == nil {
		status.DatabaseOK = true
	}
	status.Healthy = status.DatabaseOK

	if s.outbox != nil {
		if count, err := s.outbox.PendingCount(ctx); err == nil {
			status.PendingRetries = count
		}
	}

	if values, err := cpu.Percent(200*time.Millisecond, false); err == nil && len(values) > 0 {
		status.CPUPercent = values[0]
	}
	if stat, err := mem.VirtualMemory(); err == nil {
		status.MemoryPercent = stat.UsedPercent
	}

	return status
}
