package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/shivang-goliyan/CloudRadius-sub000/internal/service"
)

type RetryJob struct {
	retryService *service.RetryService
	logger       *zap.Logger
}

func NewRetryJob(retryService *service.RetryService, logger *zap.Logger) *RetryJob {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RetryJob{
		retryService: retryService,
		logger:       logger,
	}
}

func (j *RetryJob) ReplayPending() {
	if j == nil || j.retryService == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := j.retryService.ReplayPending(ctx); err != nil {
		j.logger.Warn("provisioning replay finished with errors", zap.Error(err))
	}
}
