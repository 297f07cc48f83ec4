package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/shivang-goliyan/CloudRadius-sub000/internal/aaa"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/event"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/metrics"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/model"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/policy"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/provision"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/repository"
)

var (
	ErrSubscriberNotFound     = errors.New("subscriber not found")
	ErrInvalidSubscriberID    = errors.New("invalid subscriber id")
	ErrInvalidSubscriberInput = errors.New("invalid subscriber input")
	ErrUsernameTaken          = errors.New("username already in use")
	ErrNotSuspended           = errors.New("subscriber is not suspended")
	ErrSubscriberDisabled     = errors.New("subscriber is disabled")
)

var (
	usernamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9@._-]{1,62}$`)
	macPattern      = regexp.MustCompile(`^([0-9A-Fa-f]{2}[:-]){5}[0-9A-Fa-f]{2}$`)
)

type CreateSubscriberRequest struct {
	Username   string     `json:"username"`
	Password   string     `json:"password"`
	PlanID     *string    `json:"plan_id"`
	NasID      *string    `json:"nas_id"`
	MacAddress *string    `json:"mac_address"`
	StaticIP   *string    `json:"static_ip"`
	Balance    int64      `json:"balance"`
	AutoRenew  bool       `json:"auto_renew"`
	ExpiresAt  *time.Time `json:"expires_at"`
	FullName   *string    `json:"full_name"`
	Phone      *string    `json:"phone"`
}

type UpdateSubscriberRequest struct {
	Password   *string    `json:"password"`
	PlanID     *string    `json:"plan_id"`
	ClearPlan  bool       `json:"clear_plan"`
	MacAddress *string    `json:"mac_address"`
	ClearMac   bool       `json:"clear_mac"`
	StaticIP   *string    `json:"static_ip"`
	ClearIP    bool       `json:"clear_ip"`
	Balance    *int64     `json:"balance"`
	AutoRenew  *bool      `json:"auto_renew"`
	ExpiresAt  *time.Time `json:"expires_at"`
	FullName   *string    `json:"full_name"`
	Phone      *string    `json:"phone"`
}

type ImportRowResult struct {
	Row      int    `json:"row"`
	Username string `json:"username"`
	Error    string `json:"error,omitempty"`
}

type ImportResult struct {
	Created int               `json:"created"`
	Failed  int               `json:"failed"`
	Rows    []ImportRowResult `json:"rows"`
}

type SubscriberService struct {
	subRepo    repository.SubscriberRepository
	planRepo   repository.PlanRepository
	auditRepo  repository.AuditRepository
	engine     *provision.Engine
	outbox     *provision.Outbox
	sessionSvc *SessionService
	eventBus   *event.Bus
	logger     *zap.Logger
}

func NewSubscriberService(
	subRepo repository.SubscriberRepository,
	planRepo repository.PlanRepository,
	auditRepo repository.AuditRepository,
	engine *provision.Engine,
	outbox *provision.Outbox,
	sessionSvc *SessionService,
	eventBus *event.Bus,
	logger *zap.Logger,
) *SubscriberService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SubscriberService{
		subRepo:    subRepo,
		planRepo:   planRepo,
		auditRepo:  auditRepo,
		engine:     engine,
		outbox:     outbox,
		sessionSvc: sessionSvc,
		eventBus:   eventBus,
		logger:     logger,
	}
}

func (s *SubscriberService) Create(ctx context.Context, operatorID string, tenant *model.Tenant, req CreateSubscriberRequest) (*model.Subscriber, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if !usernamePattern.MatchString(username) || strings.TrimSpace(req.Password) == "" {
		return nil, ErrInvalidSubscriberInput
	}
	if req.MacAddress != nil && *req.MacAddress != "" && !macPattern.MatchString(*req.MacAddress) {
		return nil, ErrInvalidSubscriberInput
	}
	if req.StaticIP != nil && *req.StaticIP != "" && net.ParseIP(*req.StaticIP) == nil {
		return nil, ErrInvalidSubscriberInput
	}

	var plan *model.Plan
	var planID *uuid.UUID
	if req.PlanID != nil && *req.PlanID != "" {
		parsed, err := uuid.Parse(*req.PlanID)
		if err != nil {
			return nil, ErrInvalidSubscriberInput
		}
		found, err := s.planRepo.FindByID(ctx, parsed)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrPlanNotFound
			}
			return nil, err
		}
		if found.TenantID != tenant.ID {
			return nil, ErrPlanNotFound
		}
		plan = found
		planID = &parsed
	}

	var nasID *uuid.UUID
	if req.NasID != nil && *req.NasID != "" {
		parsed, err := uuid.Parse(*req.NasID)
		if err != nil {
			return nil, ErrInvalidSubscriberInput
		}
		nasID = &parsed
	}

	now := time.Now().UTC()
	expiresAt := req.ExpiresAt
	if expiresAt == nil && plan != nil {
		next := NextExpiry(plan, now)
		expiresAt = &next
	}

	sub := &model.Subscriber{
		ID:         uuid.New(),
		TenantID:   tenant.ID,
		Username:   username,
		Password:   strings.TrimSpace(req.Password),
		Status:     model.SubscriberStatusActive,
		PlanID:     planID,
		NasID:      nasID,
		MacAddress: normalizedMac(req.MacAddress),
		StaticIP:   req.StaticIP,
		Balance:    req.Balance,
		AutoRenew:  req.AutoRenew,
		ExpiresAt:  expiresAt,
		FullName:   req.FullName,
		Phone:      req.Phone,
	}

	if err := s.subRepo.Create(ctx, sub); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}

	s.syncPolicy(ctx, tenant, sub)

	writeAudit(ctx, s.auditRepo, s.logger, operatorID, &tenant.ID, "subscriber.create", "subscriber", sub.ID.String(), nil, map[string]interface{}{
		"username": sub.Username,
		"plan_id":  req.PlanID,
	})

	return sub, nil
}

func (s *SubscriberService) Get(ctx context.Context, tenant *model.Tenant, subscriberID string) (*model.Subscriber, error) {
	id, err := uuid.Parse(strings.TrimSpace(subscriberID))
	if err != nil {
		return nil, ErrInvalidSubscriberID
	}

	sub, err := s.subRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSubscriberNotFound
		}
		return nil, err
	}
	if sub.TenantID != tenant.ID {
		return nil, ErrSubscriberNotFound
	}
	return sub, nil
}

func (s *SubscriberService) List(ctx context.Context, tenant *model.Tenant, filter repository.SubscriberListFilter) ([]*model.Subscriber, int64, error) {
	filter.TenantID = &tenant.ID

	items, err := s.subRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.subRepo.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *SubscriberService) Update(ctx context.Context, operatorID string, tenant *model.Tenant, subscriberID string, req UpdateSubscriberRequest) (*model.Subscriber, error) {
	sub, err := s.Get(ctx, tenant, subscriberID)
	if err != nil {
		return nil, err
	}

	oldPlanID := sub.PlanID
	oldValue := map[string]interface{}{
		"plan_id":    uuidStr(sub.PlanID),
		"expires_at": sub.ExpiresAt,
		"balance":    sub.Balance,
	}

	if req.Password != nil {
		if strings.TrimSpace(*req.Password) == "" {
			return nil, ErrInvalidSubscriberInput
		}
		sub.Password = strings.TrimSpace(*req.Password)
	}

	var newPlan *model.Plan
	if req.ClearPlan {
		sub.PlanID = nil
	} else if req.PlanID != nil && *req.PlanID != "" {
		parsed, err := uuid.Parse(*req.PlanID)
		if err != nil {
			return nil, ErrInvalidSubscriberInput
		}
		found, err := s.planRepo.FindByID(ctx, parsed)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrPlanNotFound
			}
			return nil, err
		}
		if found.TenantID != tenant.ID {
			return nil, ErrPlanNotFound
		}
		newPlan = found
		sub.PlanID = &parsed
	}

	if req.ClearMac {
		sub.MacAddress = nil
	} else if req.MacAddress != nil {
		if !macPattern.MatchString(*req.MacAddress) {
			return nil, ErrInvalidSubscriberInput
		}
		sub.MacAddress = normalizedMac(req.MacAddress)
	}

	if req.ClearIP {
		sub.StaticIP = nil
	} else if req.StaticIP != nil {
		if net.ParseIP(*req.StaticIP) == nil {
			return nil, ErrInvalidSubscriberInput
		}
		sub.StaticIP = req.StaticIP
	}

	if req.Balance != nil {
		sub.Balance = *req.Balance
	}
	if req.AutoRenew != nil {
		sub.AutoRenew = *req.AutoRenew
	}
	if req.ExpiresAt != nil {
		sub.ExpiresAt = req.ExpiresAt
	}
	if req.FullName != nil {
		sub.FullName = req.FullName
	}
	if req.Phone != nil {
		sub.Phone = req.Phone
	}

	if err := s.subRepo.Update(ctx, sub); err != nil {
		return nil, err
	}

	s.syncPolicy(ctx, tenant, sub)

	// A plan change takes effect on live sessions immediately via CoA; the
	// policy store alone only covers the next authentication.
	planChanged := uuidStr(oldPlanID) != uuidStr(sub.PlanID)
	if planChanged && newPlan != nil && s.sessionSvc != nil {
		rateLimit := policy.ForVendor("").RateLimit(newPlan)
		if _, err := s.sessionSvc.PushRateLimit(ctx, tenant, sub.Username, rateLimit); err != nil {
			s.logger.Warn("rate-limit push after plan change failed",
				zap.String("subscriber_id", sub.ID.String()),
				zap.Error(err),
			)
		}
	}

	writeAudit(ctx, s.auditRepo, s.logger, operatorID, &tenant.ID, "subscriber.update", "subscriber", sub.ID.String(), oldValue, map[string]interface{}{
		"plan_id":    uuidStr(sub.PlanID),
		"expires_at": sub.ExpiresAt,
		"balance":    sub.Balance,
	})

	return sub, nil
}

// Suspend blocks authentication and kicks live sessions while keeping the
// subscriber's other policy rows (credential, MAC binding) intact.
func (s *SubscriberService) Suspend(ctx context.Context, operatorID string, tenant *model.Tenant, subscriberID string) (*model.Subscriber, error) {
	sub, err := s.Get(ctx, tenant, subscriberID)
	if err != nil {
		return nil, err
	}
	if sub.Status == model.SubscriberStatusDisabled {
		return nil, ErrSubscriberDisabled
	}

	if err := s.subRepo.UpdateStatus(ctx, sub.ID, model.SubscriberStatusSuspended); err != nil {
		return nil, err
	}
	sub.Status = model.SubscriberStatusSuspended

	if err := s.engine.SetReject(ctx, tenant.Slug, sub.Username); err != nil {
		s.recordSyncFailure(ctx, tenant, sub, provision.OpSubscriberSync, err)
	}
	if err := s.engine.SyncSubscriberPlan(ctx, tenant.Slug, sub.Username, nil); err != nil {
		s.recordSyncFailure(ctx, tenant, sub, provision.OpSubscriberSync, err)
	}

	s.disconnect(ctx, tenant, sub)

	writeAudit(ctx, s.auditRepo, s.logger, operatorID, &tenant.ID, "subscriber.suspend", "subscriber", sub.ID.String(), nil, map[string]interface{}{
		"username": sub.Username,
	})

	return sub, nil
}

// Reactivate lifts a suspension: the reject marker goes away and plan
// membership is restored. Only suspended subscribers qualify.
func (s *SubscriberService) Reactivate(ctx context.Context, operatorID string, tenant *model.Tenant, subscriberID string) (*model.Subscriber, error) {
	sub, err := s.Get(ctx, tenant, subscriberID)
	if err != nil {
		return nil, err
	}
	if sub.Status != model.SubscriberStatusSuspended {
		return nil, ErrNotSuspended
	}

	if err := s.subRepo.UpdateStatus(ctx, sub.ID, model.SubscriberStatusActive); err != nil {
		return nil, err
	}
	sub.Status = model.SubscriberStatusActive

	if err := s.engine.ClearReject(ctx, tenant.Slug, sub.Username); err != nil {
		s.recordSyncFailure(ctx, tenant, sub, provision.OpSubscriberSync, err)
	}
	if err := s.engine.SyncSubscriberPlan(ctx, tenant.Slug, sub.Username, sub.PlanID); err != nil {
		s.recordSyncFailure(ctx, tenant, sub, provision.OpSubscriberSync, err)
	}

	writeAudit(ctx, s.auditRepo, s.logger, operatorID, &tenant.ID, "subscriber.reactivate", "subscriber", sub.ID.String(), nil, map[string]interface{}{
		"username": sub.Username,
	})

	return sub, nil
}

// Disable permanently blocks the account. Unlike Suspend, which keeps the
// credential and MAC rows for the way back, disabling strips every policy
// row; there is no way back except an explicit update by an operator.
func (s *SubscriberService) Disable(ctx context.Context, operatorID string, tenant *model.Tenant, subscriberID string) (*model.Subscriber, error) {
	sub, err := s.Get(ctx, tenant, subscriberID)
	if err != nil {
		return nil, err
	}

	if err := s.subRepo.UpdateStatus(ctx, sub.ID, model.SubscriberStatusDisabled); err != nil {
		return nil, err
	}
	sub.Status = model.SubscriberStatusDisabled

	if err := s.engine.RemoveSubscriberAuth(ctx, tenant.Slug, sub.Username); err != nil {
		key := aaa.Username(tenant.Slug, sub.Username)
		s.recordRemoveFailure(ctx, tenant, key, err)
	}
	s.disconnect(ctx, tenant, sub)

	writeAudit(ctx, s.auditRepo, s.logger, operatorID, &tenant.ID, "subscriber.disable", "subscriber", sub.ID.String(), nil, map[string]interface{}{
		"username": sub.Username,
	})

	return sub, nil
}

// Renew extends the subscription by one plan validity period, anchored on
// the current expiry when it is still in the future. Expired or suspended
// accounts come back active.
func (s *SubscriberService) Renew(ctx context.Context, operatorID string, tenant *model.Tenant, subscriberID string) (*model.Subscriber, error) {
	sub, err := s.Get(ctx, tenant, subscriberID)
	if err != nil {
		return nil, err
	}
	if sub.Status == model.SubscriberStatusDisabled {
		return nil, ErrSubscriberDisabled
	}
	if sub.PlanID == nil {
		return nil, ErrInvalidSubscriberInput
	}

	plan, err := s.planRepo.FindByID(ctx, *sub.PlanID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	anchor := now
	if sub.ExpiresAt != nil && sub.ExpiresAt.After(now) {
		anchor = sub.ExpiresAt.UTC()
	}
	next := NextExpiry(plan, anchor)

	sub.Status = model.SubscriberStatusActive
	sub.ExpiresAt = &next
	sub.LastRenewedAt = &now
	if err := s.subRepo.Update(ctx, sub); err != nil {
		return nil, err
	}

	s.syncPolicy(ctx, tenant, sub)

	if s.eventBus != nil {
		s.eventBus.Publish(event.EventSubscriberRenewed, event.SubscriberRenewedPayload{
			SubscriberID: sub.ID.String(),
			TenantID:     tenant.ID.String(),
			NewExpiry:    next,
		})
	}

	writeAudit(ctx, s.auditRepo, s.logger, operatorID, &tenant.ID, "subscriber.renew", "subscriber", sub.ID.String(), nil, map[string]interface{}{
		"expires_at": next,
	})

	return sub, nil
}

// Delete removes the subscriber and every policy row, then kicks any live
// sessions.
func (s *SubscriberService) Delete(ctx context.Context, operatorID string, tenant *model.Tenant, subscriberID string) error {
	sub, err := s.Get(ctx, tenant, subscriberID)
	if err != nil {
		return err
	}

	s.disconnect(ctx, tenant, sub)

	if err := s.engine.RemoveSubscriberAuth(ctx, tenant.Slug, sub.Username); err != nil {
		key := aaa.Username(tenant.Slug, sub.Username)
		s.recordRemoveFailure(ctx, tenant, key, err)
	}

	if err := s.subRepo.Delete(ctx, sub.ID); err != nil {
		return err
	}

	writeAudit(ctx, s.auditRepo, s.logger, operatorID, &tenant.ID, "subscriber.delete", "subscriber", sub.ID.String(), map[string]interface{}{
		"username": sub.Username,
	}, nil)

	return nil
}

// Import creates subscribers in bulk. Each row succeeds or fails on its
// own; a duplicate username in row 40 does not roll back rows 1..39.
func (s *SubscriberService) Import(ctx context.Context, operatorID string, tenant *model.Tenant, rows []CreateSubscriberRequest) ImportResult {
	result := ImportResult{Rows: make([]ImportRowResult, 0, len(rows))}

	for i, row := range rows {
		entry := ImportRowResult{Row: i + 1, Username: strings.TrimSpace(row.Username)}
		if _, err := s.Create(ctx, operatorID, tenant, row); err != nil {
			entry.Error = err.Error()
			result.Failed++
		} else {
			result.Created++
		}
		result.Rows = append(result.Rows, entry)
	}

	return result
}

// syncPolicy pushes the subscriber's full policy to the store. Failures
// never bubble up to the API caller: the domain row is already committed,
// so the failure is logged, counted and queued for replay.
func (s *SubscriberService) syncPolicy(ctx context.Context, tenant *model.Tenant, sub *model.Subscriber) {
	start := time.Now()
	if err := s.engine.ProvisionSubscriber(ctx, tenant, sub); err != nil {
		s.recordSyncFailure(ctx, tenant, sub, provision.OpSubscriberSync, err)
		return
	}
	metrics.ObserveProvisionSync(provision.OpSubscriberSync, time.Since(start))
}

func (s *SubscriberService) recordSyncFailure(ctx context.Context, tenant *model.Tenant, sub *model.Subscriber, op string, cause error) {
	metrics.IncProvisionSyncError(op)
	s.logger.Error("policy store sync failed",
		zap.String("op", op),
		zap.String("subscriber_id", sub.ID.String()),
		zap.Error(cause),
	)

	if s.outbox == nil {
		return
	}
	if err := s.outbox.Enqueue(ctx, tenant.ID, op, &sub.ID, nil, cause); err != nil {
		s.logger.Error("enqueue provisioning retry failed",
			zap.String("subscriber_id", sub.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *SubscriberService) recordRemoveFailure(ctx context.Context, tenant *model.Tenant, refKey string, cause error) {
	metrics.IncProvisionSyncError(provision.OpSubscriberRemove)
	s.logger.Error("policy store removal failed",
		zap.String("ref_key", refKey),
		zap.Error(cause),
	)

	if s.outbox == nil {
		return
	}
	if err := s.outbox.Enqueue(ctx, tenant.ID, provision.OpSubscriberRemove, nil, &refKey, cause); err != nil {
		s.logger.Error("enqueue provisioning retry failed",
			zap.String("ref_key", refKey),
			zap.Error(err),
		)
	}
}

func (s *SubscriberService) disconnect(ctx context.Context, tenant *model.Tenant, sub *model.Subscriber) {
	if s.sessionSvc == nil {
		return
	}
	result, err := s.sessionSvc.Disconnect(ctx, tenant, sub.Username)
	if err != nil {
		s.logger.Warn("disconnect after status change failed",
			zap.String("subscriber_id", sub.ID.String()),
			zap.Error(err),
		)
		return
	}
	if result.Attempted > result.Confirmed {
		s.logger.Warn("not every session confirmed the disconnect",
			zap.String("subscriber_id", sub.ID.String()),
			zap.Int("attempted", result.Attempted),
			zap.Int("confirmed", result.Confirmed),
		)
	}
}

func normalizedMac(mac *string) *string {
	if mac == nil || strings.TrimSpace(*mac) == "" {
		return nil
	}
	normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(*mac), "-", ":"))
	return &normalized
}

func uuidStr(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func formatAmount(amount int64, currency string) string {
	return fmt.Sprintf("%s %d.%02d", currency, amount/100, amount%100)
}
