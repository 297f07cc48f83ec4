package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/shivang-goliyan/CloudRadius-sub000/internal/event"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/metrics"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/model"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/provision"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/repository"
)

// Reminder offsets in days before expiry. Zero means "expires today".
var reminderOffsets = []int{3, 1, 0}

// NextExpiry returns the expiry for one validity period starting at from.
// Hours and days are fixed durations; months use calendar arithmetic, so
// Jan 31 plus one month lands on the civil date AddDate produces.
func NextExpiry(plan *model.Plan, from time.Time) time.Time {
	from = from.UTC()
	switch plan.ValidityUnit {
	case model.ValidityHours:
		return from.Add(time.Duration(plan.ValidityAmount) * time.Hour)
	case model.ValidityMonths:
		return from.AddDate(0, plan.ValidityAmount, 0)
	default:
		return from.AddDate(0, 0, plan.ValidityAmount)
	}
}

// GraceCutoff returns the latest expiry timestamp that is still inside the
// grace window at now. Anything at or before it is past grace.
func GraceCutoff(now time.Time, graceDays int) time.Time {
	if graceDays < 0 {
		graceDays = 0
	}
	return now.UTC().AddDate(0, 0, -graceDays)
}

// BillingService drives the subscription lifecycle: reminders before
// expiry, then auto-renewal or expiry once the grace window closes.
type BillingService struct {
	tenantRepo repository.TenantRepository
	subRepo    repository.SubscriberRepository
	planRepo   repository.PlanRepository
	auditRepo  repository.AuditRepository
	pool       *pgxpool.Pool
	engine     *provision.Engine
	outbox     *provision.Outbox
	sessionSvc *SessionService
	eventBus   *event.Bus
	logger     *zap.Logger
}

func NewBillingService(
	tenantRepo repository.TenantRepository,
	subRepo repository.SubscriberRepository,
	planRepo repository.PlanRepository,
	auditRepo repository.AuditRepository,
	pool *pgxpool.Pool,
	engine *provision.Engine,
	outbox *provision.Outbox,
	sessionSvc *SessionService,
	eventBus *event.Bus,
	logger *zap.Logger,
) *BillingService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BillingService{
		tenantRepo: tenantRepo,
		subRepo:    subRepo,
		planRepo:   planRepo,
		auditRepo:  auditRepo,
		pool:       pool,
		engine:     engine,
		outbox:     outbox,
		sessionSvc: sessionSvc,
		eventBus:   eventBus,
		logger:     logger,
	}
}

// SendReminders publishes an expiring event for every active subscriber
// whose expiry falls 3, 1 or 0 days out. The notification dispatcher
// subscribes to the event and handles delivery and dedup.
func (s *BillingService) SendReminders(ctx context.Context) error {
	tenants, err := s.tenantRepo.ListActive(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	var firstErr error
	for _, tenant := range tenants {
		for _, offset := range reminderOffsets {
			day := now.AddDate(0, 0, offset)
			subs, err := s.subRepo.ListExpiring(ctx, tenant.ID, day)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				s.logger.Warn("list expiring subscribers failed",
					zap.String("tenant_id", tenant.ID.String()),
					zap.Int("days_out", offset),
					zap.Error(err),
				)
				continue
			}

			for _, sub := range subs {
				if sub.ExpiresAt == nil || s.eventBus == nil {
					continue
				}
				s.eventBus.Publish(event.EventSubscriberExpiring, event.SubscriberExpiringPayload{
					SubscriberID: sub.ID.String(),
					TenantID:     tenant.ID.String(),
					DaysLeft:     offset,
					ExpiresAt:    sub.ExpiresAt.UTC(),
				})
			}
		}
	}

	return firstErr
}

// RunBillingCycle resolves every active subscriber whose expiry is past the
// tenant's grace window: auto-renew when enabled and funded, expire
// otherwise. Per-subscriber failures are isolated so one broken row cannot
// stall the whole cycle.
func (s *BillingService) RunBillingCycle(ctx context.Context) error {
	if s.pool == nil {
		return errors.New("database pool is nil")
	}

	tenants, err := s.tenantRepo.ListActive(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	var firstErr error
	for _, tenant := range tenants {
		cutoff := GraceCutoff(now, tenant.GraceDays)
		subs, err := s.subRepo.ListPastGrace(ctx, tenant.ID, cutoff)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			s.logger.Warn("list past-grace subscribers failed",
				zap.String("tenant_id", tenant.ID.String()),
				zap.Error(err),
			)
			continue
		}

		for _, sub := range subs {
			if err := s.resolveSubscriber(ctx, tenant, sub.ID, cutoff, now); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				s.logger.Warn("billing resolution failed",
					zap.String("subscriber_id", sub.ID.String()),
					zap.Error(err),
				)
			}
		}
	}

	return firstErr
}

// resolveSubscriber re-reads the row under a lock so a concurrent manual
// renewal between the scan and the resolution wins cleanly.
func (s *BillingService) resolveSubscriber(ctx context.Context, tenant *model.Tenant, subscriberID uuid.UUID, cutoff, now time.Time) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var status model.SubscriberStatus
	var planID *uuid.UUID
	var expiresAt *time.Time
	var balance int64
	var autoRenew bool
	err = tx.QueryRow(
		ctx,
		`SELECT status, plan_id, expires_at, balance, auto_renew
		   FROM subscribers
		  WHERE id = $1
		  FOR UPDATE`,
		subscriberID,
	).Scan(&status, &planID, &expiresAt, &balance, &autoRenew)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	}

	// Someone renewed or changed the account since the scan.
	if status != model.SubscriberStatusActive || expiresAt == nil || expiresAt.UTC().After(cutoff) {
		return nil
	}

	var plan *model.Plan
	if planID != nil {
		plan, err = s.planRepo.FindByID(ctx, *planID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
	}

	if autoRenew && plan != nil && balance >= plan.Price {
		return s.renewInTx(ctx, tx, tenant, subscriberID, plan, balance, now)
	}
	return s.expireInTx(ctx, tx, tenant, subscriberID, now)
}

func (s *BillingService) renewInTx(ctx context.Context, tx pgx.Tx, tenant *model.Tenant, subscriberID uuid.UUID, plan *model.Plan, balance int64, now time.Time) error {
	next := NextExpiry(plan, now)
	if _, err := tx.Exec(
		ctx,
		`UPDATE subscribers
		    SET balance = balance - $2,
		        expires_at = $3,
		        last_renewed_at = $4,
		        updated_at = NOW()
		  WHERE id = $1`,
		subscriberID, plan.Price, next, now,
	); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	metrics.IncSubscriberRenewed()

	sub, err := s.subRepo.FindByID(ctx, subscriberID)
	if err == nil {
		s.syncAfterBilling(ctx, tenant, sub)
	}

	if s.eventBus != nil {
		s.eventBus.Publish(event.EventSubscriberRenewed, event.SubscriberRenewedPayload{
			SubscriberID: subscriberID.String(),
			TenantID:     tenant.ID.String(),
			NewExpiry:    next,
			Charged:      plan.Price,
		})
	}

	writeAudit(ctx, s.auditRepo, s.logger, "", &tenant.ID, "subscriber.auto_renew", "subscriber", subscriberID.String(), map[string]interface{}{
		"balance": balance,
	}, map[string]interface{}{
		"balance":    balance - plan.Price,
		"expires_at": next,
	})

	return nil
}

func (s *BillingService) expireInTx(ctx context.Context, tx pgx.Tx, tenant *model.Tenant, subscriberID uuid.UUID, now time.Time) error {
	if _, err := tx.Exec(
		ctx,
		`UPDATE subscribers
		    SET status = $2, updated_at = NOW()
		  WHERE id = $1`,
		subscriberID, model.SubscriberStatusExpired,
	); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	metrics.IncSubscriberExpired()

	sub, err := s.subRepo.FindByID(ctx, subscriberID)
	if err == nil {
		s.syncAfterBilling(ctx, tenant, sub)
		if s.sessionSvc != nil {
			if _, err := s.sessionSvc.Disconnect(ctx, tenant, sub.Username); err != nil {
				s.logger.Warn("disconnect expired subscriber failed",
					zap.String("subscriber_id", subscriberID.String()),
					zap.Error(err),
				)
			}
		}
	}

	if s.eventBus != nil {
		s.eventBus.Publish(event.EventSubscriberExpired, event.SubscriberExpiredPayload{
			SubscriberID: subscriberID.String(),
			TenantID:     tenant.ID.String(),
		})
	}

	writeAudit(ctx, s.auditRepo, s.logger, "", &tenant.ID, "subscriber.expire", "subscriber", subscriberID.String(), nil, map[string]interface{}{
		"status": string(model.SubscriberStatusExpired),
	})

	return nil
}

func (s *BillingService) syncAfterBilling(ctx context.Context, tenant *model.Tenant, sub *model.Subscriber) {
	start := time.Now()
	if err := s.engine.ProvisionSubscriber(ctx, tenant, sub); err != nil {
		metrics.IncProvisionSyncError(provision.OpSubscriberSync)
		s.logger.Error("policy store sync after billing failed",
			zap.String("subscriber_id", sub.ID.String()),
			zap.Error(err),
		)
		if s.outbox != nil {
			if qErr := s.outbox.Enqueue(ctx, tenant.ID, provision.OpSubscriberSync, &sub.ID, nil, err); qErr != nil {
				s.logger.Error("enqueue provisioning retry failed", zap.Error(qErr))
			}
		}
		return
	}
	metrics.ObserveProvisionSync(provision.OpSubscriberSync, time.Since(start))
}
