package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/shivang-goliyan/CloudRadius-sub000/internal/metrics"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/provision"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/repository"
)

const (
	retryBatchSize   = 100
	retryMaxAttempts = 10
)

// RetryService replays provisioning operations that failed against the
// policy store. Replay always works from current domain state, so an entry
// queued before three further updates still converges on the latest
// policy.
type RetryService struct {
	outbox     *provision.Outbox
	tenantRepo repository.TenantRepository
	subRepo    repository.SubscriberRepository
	planRepo   repository.PlanRepository
	nasRepo    repository.NasRepository
	engine     *provision.Engine
	logger     *zap.Logger
}

func NewRetryService(
	outbox *provision.Outbox,
	tenantRepo repository.TenantRepository,
	subRepo repository.SubscriberRepository,
	planRepo repository.PlanRepository,
	nasRepo repository.NasRepository,
	engine *provision.Engine,
	logger *zap.Logger,
) *RetryService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RetryService{
		outbox:     outbox,
		tenantRepo: tenantRepo,
		subRepo:    subRepo,
		planRepo:   planRepo,
		nasRepo:    nasRepo,
		engine:     engine,
		logger:     logger,
	}
}

// ReplayPending drains one batch of the outbox. Entries whose domain row
// disappeared are resolved as successes: there is nothing left to sync.
func (s *RetryService) ReplayPending(ctx context.Context) error {
	retries, err := s.outbox.ListDue(ctx, retryBatchSize, retryMaxAttempts)
	if err != nil {
		return err
	}

	var firstErr error
	for _, retry := range retries {
		if err := s.replayOne(ctx, retry); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if markErr := s.outbox.MarkFailed(ctx, retry.ID, err); markErr != nil {
				s.logger.Error("mark retry failed", zap.Error(markErr))
			}
			s.logger.Warn("provisioning replay failed",
				zap.String("op", retry.Op),
				zap.Int("attempts", retry.Attempts+1),
				zap.Error(err),
			)
			continue
		}

		if err := s.outbox.Resolve(ctx, retry.ID); err != nil {
			s.logger.Error("resolve retry failed", zap.Error(err))
		}
	}

	if count, err := s.outbox.PendingCount(ctx); err == nil {
		metrics.SetProvisionRetryBacklog(count)
	}

	return firstErr
}

func (s *RetryService) replayOne(ctx context.Context, retry provision.Retry) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	switch retry.Op {
	case provision.OpSubscriberSync:
		if retry.RefID == nil {
			return errors.New("subscriber sync retry without ref id")
		}
		sub, err := s.subRepo.FindByID(ctx, *retry.RefID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil
			}
			return err
		}
		tenant, err := s.tenantRepo.FindByID(ctx, sub.TenantID)
		if err != nil {
			return err
		}
		return s.engine.ProvisionSubscriber(ctx, tenant, sub)

	case provision.OpSubscriberRemove:
		if retry.RefKey == nil {
			return errors.New("subscriber remove retry without ref key")
		}
		return s.engine.RemoveNamespacedUser(ctx, *retry.RefKey)

	case provision.OpPlanSync:
		if retry.RefID == nil {
			return errors.New("plan sync retry without ref id")
		}
		plan, err := s.planRepo.FindByID(ctx, *retry.RefID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil
			}
			return err
		}
		tenant, err := s.tenantRepo.FindByID(ctx, plan.TenantID)
		if err != nil {
			return err
		}
		return s.engine.SyncPlanBandwidth(ctx, tenant.Slug, plan, "")

	case provision.OpPlanRemove:
		if retry.RefKey == nil {
			return errors.New("plan remove retry without ref key")
		}
		return s.engine.RemoveGroupByName(ctx, *retry.RefKey)

	case provision.OpNasSync:
		if retry.RefID == nil {
			return errors.New("nas sync retry without ref id")
		}
		nas, err := s.nasRepo.FindByID(ctx, *retry.RefID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil
			}
			return err
		}
		return s.engine.SyncNasDevice(ctx, nas)

	case provision.OpNasRemove:
		if retry.RefKey == nil {
			return errors.New("nas remove retry without ref key")
		}
		return s.engine.RemoveNasDevice(ctx, *retry.RefKey)

	default:
		s.logger.Warn("unknown retry op dropped", zap.String("op", retry.Op))
		return nil
	}
}
