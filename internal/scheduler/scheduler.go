package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	specBillingCycle = "0 0 1 * * *"
	specReminders    = "0 0 */6 * * *"
	specStaleSweep   = "0 */5 * * * *"
	specRetryReplay  = "0 */10 * * * *"
)

type BillingTask interface {
	RunBillingCycle()
	SendReminders()
}

type SessionTask interface {
	CloseStale()
}

type RetryTask interface {
	ReplayPending()
}

type Deps struct {
	BillingJob BillingTask
	SessionJob SessionTask
	RetryJob   RetryTask
}

func NewScheduler(deps Deps, logger *zap.Logger) *cron.Cron {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC))

	if deps.BillingJob != nil {
		addFunc(c, specBillingCycle, "billing.run_cycle", logger, deps.BillingJob.RunBillingCycle)
		addFunc(c, specReminders, "billing.send_reminders", logger, deps.BillingJob.SendReminders)
	}
	if deps.SessionJob != nil {
		addFunc(c, specStaleSweep, "session.close_stale", logger, deps.SessionJob.CloseStale)
	}
	if deps.RetryJob != nil {
		addFunc(c, specRetryReplay, "provision.replay_pending", logger, deps.RetryJob.ReplayPending)
	}

	return c
}

func addFunc(c *cron.Cron, spec string, name string, logger *zap.Logger, fn func()) {
	if c == nil || fn == nil {
		return
	}

	if _, err := c.AddFunc(spec, func() {
		defer recoverJobPanic(name, logger)
		start := time.Now()
		fn()
		logger.Debug("scheduler job finished", zap.String("job", name), zap.Duration("cost", time.Since(start)))
	}); err != nil {
		logger.Error("register scheduler job failed",
			zap.String("job", name),
			zap.String("spec", spec),
			zap.Error(err),
		)
	}
}

func recoverJobPanic(jobName string, logger *zap.Logger) {
	if logger == nil {
		return
	}

	if recovered := recover(); recovered != nil {
		logger.Error("scheduler job panic recovered",
			zap.String("job", jobName),
			zap.Any("panic", recovered),
		)
	}
}
