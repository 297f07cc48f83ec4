package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shivang-goliyan/CloudRadius-sub000/internal/aaa"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/metrics"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/model"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/policy"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/provision"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/repository"
)

var (
	ErrPlanNotFound     = errors.New("plan not found")
	ErrInvalidPlanID    = errors.New("invalid plan id")
	ErrInvalidPlanInput = errors.New("invalid plan input")
	ErrPlanInUse        = errors.New("plan still has subscribers")
)

type CreatePlanRequest struct {
	Name               string  `json:"name"`
	DownloadSpeed      int     `json:"download_speed"`
	UploadSpeed        int     `json:"upload_speed"`
	SpeedUnit          string  `json:"speed_unit"`
	FupDownload        *int    `json:"fup_download"`
	FupUpload          *int    `json:"fup_upload"`
	BurstDownload      *int    `json:"burst_download"`
	BurstUpload        *int    `json:"burst_upload"`
	BurstThresholdDown *int    `json:"burst_threshold_down"`
	BurstThresholdUp   *int    `json:"burst_threshold_up"`
	BurstTimeSec       *int    `json:"burst_time_sec"`
	TimeWindow         *string `json:"time_window"`
	SharedDevices      *int    `json:"shared_devices"`
	Priority           int     `json:"priority"`
	ValidityAmount     int     `json:"validity_amount"`
	ValidityUnit       string  `json:"validity_unit"`
	Price              int64   `json:"price"`
}

type UpdatePlanRequest struct {
	Name               *string `json:"name"`
	DownloadSpeed      *int    `json:"download_speed"`
	UploadSpeed        *int    `json:"upload_speed"`
	FupDownload        *int    `json:"fup_download"`
	FupUpload          *int    `json:"fup_upload"`
	BurstDownload      *int    `json:"burst_download"`
	BurstUpload        *int    `json:"burst_upload"`
	BurstThresholdDown *int    `json:"burst_threshold_down"`
	BurstThresholdUp   *int    `json:"burst_threshold_up"`
	BurstTimeSec       *int    `json:"burst_time_sec"`
	TimeWindow         *string `json:"time_window"`
	SharedDevices      *int    `json:"shared_devices"`
	Priority           *int    `json:"priority"`
	ValidityAmount     *int    `json:"validity_amount"`
	ValidityUnit       *string `json:"validity_unit"`
	Price              *int64  `json:"price"`
}

type PlanService struct {
	planRepo   repository.PlanRepository
	subRepo    repository.SubscriberRepository
	auditRepo  repository.AuditRepository
	engine     *provision.Engine
	outbox     *provision.Outbox
	sessionSvc *SessionService
	logger     *zap.Logger
}

func NewPlanService(
	planRepo repository.PlanRepository,
	subRepo repository.SubscriberRepository,
	auditRepo repository.AuditRepository,
	engine *provision.Engine,
	outbox *provision.Outbox,
	sessionSvc *SessionService,
	logger *zap.Logger,
) *PlanService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PlanService{
		planRepo:   planRepo,
		subRepo:    subRepo,
		auditRepo:  auditRepo,
		engine:     engine,
		outbox:     outbox,
		sessionSvc: sessionSvc,
		logger:     logger,
	}
}

func (s *PlanService) Create(ctx context.Context, operatorID string, tenant *model.Tenant, req CreatePlanRequest) (*model.Plan, error) {
	if strings.TrimSpace(req.Name) == "" || req.DownloadSpeed <= 0 || req.UploadSpeed <= 0 {
		return nil, ErrInvalidPlanInput
	}
	if req.ValidityAmount <= 0 || req.Price < 0 {
		return nil, ErrInvalidPlanInput
	}

	speedUnit, err := parseSpeedUnit(req.SpeedUnit)
	if err != nil {
		return nil, err
	}
	validityUnit, err := parseValidityUnit(req.ValidityUnit)
	if err != nil {
		return nil, err
	}

	priority := req.Priority
	if priority < 1 || priority > 8 {
		priority = 8
	}

	plan := &model.Plan{
		ID:                 uuid.New(),
		TenantID:           tenant.ID,
		Name:               strings.TrimSpace(req.Name),
		DownloadSpeed:      req.DownloadSpeed,
		UploadSpeed:        req.UploadSpeed,
		SpeedUnit:          speedUnit,
		FupDownload:        req.FupDownload,
		FupUpload:          req.FupUpload,
		BurstDownload:      req.BurstDownload,
		BurstUpload:        req.BurstUpload,
		BurstThresholdDown: req.BurstThresholdDown,
		BurstThresholdUp:   req.BurstThresholdUp,
		BurstTimeSec:       req.BurstTimeSec,
		TimeWindow:         req.TimeWindow,
		SharedDevices:      req.SharedDevices,
		Priority:           priority,
		ValidityAmount:     req.ValidityAmount,
		ValidityUnit:       validityUnit,
		Price:              req.Price,
	}

	if err := s.planRepo.Create(ctx, plan); err != nil {
		return nil, err
	}

	s.syncBandwidth(ctx, tenant, plan)

	writeAudit(ctx, s.auditRepo, s.logger, operatorID, &tenant.ID, "plan.create", "plan", plan.ID.String(), nil, map[string]interface{}{
		"name":           plan.Name,
		"download_speed": plan.DownloadSpeed,
		"upload_speed":   plan.UploadSpeed,
	})

	return plan, nil
}

func (s *PlanService) Get(ctx context.Context, tenant *model.Tenant, planID string) (*model.Plan, error) {
	id, err := uuid.Parse(strings.TrimSpace(planID))
	if err != nil {
		return nil, ErrInvalidPlanID
	}

	plan, err := s.planRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	if plan.TenantID != tenant.ID {
		return nil, ErrPlanNotFound
	}
	return plan, nil
}

func (s *PlanService) List(ctx context.Context, tenant *model.Tenant) ([]*model.Plan, error) {
	return s.planRepo.ListByTenant(ctx, tenant.ID)
}

func (s *PlanService) Update(ctx context.Context, operatorID string, tenant *model.Tenant, planID string, req UpdatePlanRequest) (*model.Plan, error) {
	plan, err := s.Get(ctx, tenant, planID)
	if err != nil {
		return nil, err
	}

	oldValue := map[string]interface{}{
		"download_speed": plan.DownloadSpeed,
		"upload_speed":   plan.UploadSpeed,
		"price":          plan.Price,
	}

	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, ErrInvalidPlanInput
		}
		plan.Name = strings.TrimSpace(*req.Name)
	}
	if req.DownloadSpeed != nil {
		if *req.DownloadSpeed <= 0 {
			return nil, ErrInvalidPlanInput
		}
		plan.DownloadSpeed = *req.DownloadSpeed
	}
	if req.UploadSpeed != nil {
		if *req.UploadSpeed <= 0 {
			return nil, ErrInvalidPlanInput
		}
		plan.UploadSpeed = *req.UploadSpeed
	}
	if req.FupDownload != nil {
		plan.FupDownload = req.FupDownload
	}
	if req.FupUpload != nil {
		plan.FupUpload = req.FupUpload
	}
	if req.BurstDownload != nil {
		plan.BurstDownload = req.BurstDownload
	}
	if req.BurstUpload != nil {
		plan.BurstUpload = req.BurstUpload
	}
	if req.BurstThresholdDown != nil {
		plan.BurstThresholdDown = req.BurstThresholdDown
	}
	if req.BurstThresholdUp != nil {
		plan.BurstThresholdUp = req.BurstThresholdUp
	}
	if req.BurstTimeSec != nil {
		plan.BurstTimeSec = req.BurstTimeSec
	}
	if req.TimeWindow != nil {
		plan.TimeWindow = req.TimeWindow
	}
	if req.SharedDevices != nil {
		plan.SharedDevices = req.SharedDevices
	}
	if req.Priority != nil {
		if *req.Priority < 1 || *req.Priority > 8 {
			return nil, ErrInvalidPlanInput
		}
		plan.Priority = *req.Priority
	}
	if req.ValidityAmount != nil {
		if *req.ValidityAmount <= 0 {
			return nil, ErrInvalidPlanInput
		}
		plan.ValidityAmount = *req.ValidityAmount
	}
	if req.ValidityUnit != nil {
		unit, err := parseValidityUnit(*req.ValidityUnit)
		if err != nil {
			return nil, err
		}
		plan.ValidityUnit = unit
	}
	if req.Price != nil {
		if *req.Price < 0 {
			return nil, ErrInvalidPlanInput
		}
		plan.Price = *req.Price
	}

	if err := s.planRepo.Update(ctx, plan); err != nil {
		return nil, err
	}

	s.syncBandwidth(ctx, tenant, plan)
	s.pushRateLimitToSubscribers(ctx, tenant, plan)

	writeAudit(ctx, s.auditRepo, s.logger, operatorID, &tenant.ID, "plan.update", "plan", plan.ID.String(), oldValue, map[string]interface{}{
		"download_speed": plan.DownloadSpeed,
		"upload_speed":   plan.UploadSpeed,
		"price":          plan.Price,
	})

	return plan, nil
}

// Delete removes the plan and its group policy. A plan with subscribers
// still assigned cannot be deleted; reassign them first.
func (s *PlanService) Delete(ctx context.Context, operatorID string, tenant *model.Tenant, planID string) error {
	plan, err := s.Get(ctx, tenant, planID)
	if err != nil {
		return err
	}

	filter := repository.SubscriberListFilter{TenantID: &tenant.ID, PlanID: &plan.ID}
	count, err := s.subRepo.Count(ctx, filter)
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrPlanInUse
	}

	if err := s.engine.RemovePlanBandwidth(ctx, tenant.Slug, plan.ID); err != nil {
		key := aaa.GroupName(tenant.Slug, plan.ID)
		s.recordSyncFailure(ctx, tenant, provision.OpPlanRemove, nil, &key, err)
	}

	if err := s.planRepo.Delete(ctx, plan.ID); err != nil {
		return err
	}

	writeAudit(ctx, s.auditRepo, s.logger, operatorID, &tenant.ID, "plan.delete", "plan", plan.ID.String(), map[string]interface{}{
		"name": plan.Name,
	}, nil)

	return nil
}

func (s *PlanService) syncBandwidth(ctx context.Context, tenant *model.Tenant, plan *model.Plan) {
	start := time.Now()
	if err := s.engine.SyncPlanBandwidth(ctx, tenant.Slug, plan, ""); err != nil {
		s.recordSyncFailure(ctx, tenant, provision.OpPlanSync, &plan.ID, nil, err)
		return
	}
	metrics.ObserveProvisionSync(provision.OpPlanSync, time.Since(start))
}

// pushRateLimitToSubscribers applies the plan's new rate string to every
// live session of every subscriber on the plan. Best effort throughout.
func (s *PlanService) pushRateLimitToSubscribers(ctx context.Context, tenant *model.Tenant, plan *model.Plan) {
	if s.sessionSvc == nil {
		return
	}

	rateLimit := policy.ForVendor("").RateLimit(plan)
	filter := repository.SubscriberListFilter{
		TenantID:   &tenant.ID,
		PlanID:     &plan.ID,
		Pagination: repository.Pagination{Limit: 200},
	}

	for {
		subs, err := s.subRepo.List(ctx, filter)
		if err != nil {
			s.logger.Warn("list plan subscribers for coa push failed",
				zap.String("plan_id", plan.ID.String()),
				zap.Error(err),
			)
			return
		}
		if len(subs) == 0 {
			return
		}

		for _, sub := range subs {
			if !sub.Status.HasNetworkAccess() {
				continue
			}
			if _, err := s.sessionSvc.PushRateLimit(ctx, tenant, sub.Username, rateLimit); err != nil {
				s.logger.Warn("rate-limit push failed",
					zap.String("subscriber_id", sub.ID.String()),
					zap.Error(err),
				)
			}
		}

		if len(subs) < int(filter.Pagination.Limit) {
			return
		}
		filter.Pagination.Offset += filter.Pagination.Limit
	}
}

func (s *PlanService) recordSyncFailure(ctx context.Context, tenant *model.Tenant, op string, refID *uuid.UUID, refKey *string, cause error) {
	metrics.IncProvisionSyncError(op)
	s.logger.Error("policy store sync failed",
		zap.String("op", op),
		zap.Error(cause),
	)

	if s.outbox == nil {
		return
	}
	if err := s.outbox.Enqueue(ctx, tenant.ID, op, refID, refKey, cause); err != nil {
		s.logger.Error("enqueue provisioning retry failed", zap.Error(err))
	}
}

func parseSpeedUnit(raw string) (model.SpeedUnit, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "k", "kbps":
		return model.SpeedUnitKbps, nil
	case "", "m", "mbps":
		return model.SpeedUnitMbps, nil
	default:
		return "", ErrInvalidPlanInput
	}
}

func parseValidityUnit(raw string) (model.ValidityUnit, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "hours", "hour":
		return model.ValidityHours, nil
	case "", "days", "day":
		return model.ValidityDays, nil
	case "months", "month":
		return model.ValidityMonths, nil
	default:
		return "", ErrInvalidPlanInput
	}
}
