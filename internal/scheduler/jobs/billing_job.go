package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/shivang-goliyan/CloudRadius-sub000/internal/service"
)

type BillingJob struct {
	billingService *service.BillingService
	logger         *zap.Logger
}

func NewBillingJob(billingService *service.BillingService, logger *zap.Logger) *BillingJob {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BillingJob{
		billingService: billingService,
		logger:         logger,
	}
}

func (j *BillingJob) RunBillingCycle() {
	if j == nil || j.billingService == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := j.billingService.RunBillingCycle(ctx); err != nil {
		j.logger.Warn("billing cycle finished with errors", zap.Error(err))
	}
}

func (j *BillingJob) SendReminders() {
	if j == nil || j.billingService == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := j.billingService.SendReminders(ctx); err != nil {
		j.logger.Warn("reminder scan finished with errors", zap.Error(err))
	}
}
