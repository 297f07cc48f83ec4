package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/shivang-goliyan/CloudRadius-sub000/internal/service"
)

type SessionJob struct {
	sessionService *service.SessionService
	logger         *zap.Logger
}

func NewSessionJob(sessionService *service.SessionService, logger *zap.Logger) *SessionJob {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SessionJob{
		sessionService: sessionService,
		logger:         logger,
	}
}

func (j *SessionJob) CloseStale() {
	if j == nil || j.sessionService == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if _, err := j.sessionService.CloseStale(ctx); err != nil {
		j.logger.Warn("stale session sweep failed", zap.Error(err))
	}
}
