package service

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/shivang-goliyan/CloudRadius-sub000/internal/model"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/repository"
)

const (
	tenantDefaultGraceDays = 3
	tenantDefaultCurrency  = "USD"
)

var (
	ErrTenantNotFound     = errors.New("tenant not found")
	ErrInvalidTenantID    = errors.New("invalid tenant id")
	ErrInvalidTenantInput = errors.New("invalid tenant input")
	ErrSlugTaken          = errors.New("tenant slug already in use")
)

// Slugs end up inside RADIUS usernames, so they must never contain the
// namespace separator or LIKE metacharacters.
var slugPattern = regexp.MustCompile(`^[a-z0-9]{2,24}$`)

type CreateTenantRequest struct {
	Slug         string  `json:"slug"`
	Name         string  `json:"name"`
	GraceDays    *int    `json:"grace_days"`
	Currency     string  `json:"currency"`
	ContactEmail *string `json:"contact_email"`
}

type UpdateTenantRequest struct {
	Name         *string             `json:"name"`
	Status       *model.TenantStatus `json:"status"`
	GraceDays    *int                `json:"grace_days"`
	Currency     *string             `json:"currency"`
	ContactEmail *string             `json:"contact_email"`
}

type TenantService struct {
	tenantRepo repository.TenantRepository
	auditRepo  repository.AuditRepository
	logger     *zap.Logger
}

func NewTenantService(
	tenantRepo repository.TenantRepository,
	auditRepo repository.AuditRepository,
	logger *zap.Logger,
) *TenantService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TenantService{
		tenantRepo: tenantRepo,
		auditRepo:  auditRepo,
		logger:     logger,
	}
}

func (s *TenantService) Create(ctx context.Context, operatorID string, req CreateTenantRequest) (*model.Tenant, error) {
	slug := strings.ToLower(strings.TrimSpace(req.Slug))
	if !slugPattern.MatchString(slug) || strings.TrimSpace(req.Name) == "" {
		return nil, ErrInvalidTenantInput
	}

	graceDays := tenantDefaultGraceDays
	if req.GraceDays != nil {
		if *req.GraceDays < 0 {
			return nil, ErrInvalidTenantInput
		}
		graceDays = *req.GraceDays
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = tenantDefaultCurrency
	}

	tenant := &model.Tenant{
		ID:           uuid.New(),
		Slug:         slug,
		Name:         strings.TrimSpace(req.Name),
		Status:       model.TenantStatusActive,
		GraceDays:    graceDays,
		Currency:     currency,
		ContactEmail: req.ContactEmail,
	}

	if err := s.tenantRepo.Create(ctx, tenant); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrSlugTaken
		}
		return nil, err
	}

	writeAudit(ctx, s.auditRepo, s.logger, operatorID, &tenant.ID, "tenant.create", "tenant", tenant.ID.String(), nil, map[string]interface{}{
		"slug": tenant.Slug,
		"name": tenant.Name,
	})

	return tenant, nil
}

func (s *TenantService) Get(ctx context.Context, tenantID string) (*model.Tenant, error) {
	id, err := uuid.Parse(strings.TrimSpace(tenantID))
	if err != nil {
		return nil, ErrInvalidTenantID
	}

	tenant, err := s.tenantRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, err
	}
	return tenant, nil
}

func (s *TenantService) GetBySlug(ctx context.Context, slug string) (*model.Tenant, error) {
	tenant, err := s.tenantRepo.FindBySlug(ctx, strings.ToLower(strings.TrimSpace(slug)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, err
	}
	return tenant, nil
}

func (s *TenantService) ListActive(ctx context.Context) ([]*model.Tenant, error) {
	return s.tenantRepo.ListActive(ctx)
}

func (s *TenantService) Update(ctx context.Context, operatorID, tenantID string, req UpdateTenantRequest) (*model.Tenant, error) {
	tenant, err := s.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	oldValue := map[string]interface{}{
		"name":       tenant.Name,
		"status":     string(tenant.Status),
		"grace_days": tenant.GraceDays,
	}

	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, ErrInvalidTenantInput
		}
		tenant.Name = strings.TrimSpace(*req.Name)
	}
	if req.Status != nil {
		switch *req.Status {
		case model.TenantStatusActive, model.TenantStatusSuspended:
			tenant.Status = *req.Status
		default:
			return nil, ErrInvalidTenantInput
		}
	}
	if req.GraceDays != nil {
		if *req.GraceDays < 0 {
			return nil, ErrInvalidTenantInput
		}
		tenant.GraceDays = *req.GraceDays
	}
	if req.Currency != nil {
		currency := strings.ToUpper(strings.TrimSpace(*req.Currency))
		if currency == "" {
			return nil, ErrInvalidTenantInput
		}
		tenant.Currency = currency
	}
	if req.ContactEmail != nil {
		tenant.ContactEmail = req.ContactEmail
	}

	if err := s.tenantRepo.Update(ctx, tenant); err != nil {
		return nil, err
	}

	writeAudit(ctx, s.auditRepo, s.logger, operatorID, &tenant.ID, "tenant.update", "tenant", tenant.ID.String(), oldValue, map[string]interface{}{
		"name":       tenant.Name,
		"status":     string(tenant.Status),
		"grace_days": tenant.GraceDays,
	})

	return tenant, nil
}
