package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/shivang-goliyan/CloudRadius-sub000/internal/model"
)

var ErrNotFound = errors.New("not found")

type Pagination struct {
	Limit  int32 `json:"limit"`
	Offset int32 `json:"offset"`
}

type SubscriberListFilter struct {
	TenantID   *uuid.UUID              `json:"tenant_id,omitempty"`
	Status     *model.SubscriberStatus `json:"status,omitempty"`
	PlanID     *uuid.UUID              `json:"plan_id,omitempty"`
	Keyword    *string                 `json:"keyword,omitempty"`
	Pagination Pagination              `json:"pagination"`
}

type TenantRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Tenant, error)
	FindBySlug(ctx context.Context, slug string) (*model.Tenant, error)
	Create(ctx context.Context, tenant *model.Tenant) error
	Update(ctx context.Context, tenant *model.Tenant) error
	ListActive(ctx context.Context) ([]*model.Tenant, error)
}

type SubscriberRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Subscriber, error)
	FindByUsername(ctx context.Context, tenantID uuid.UUID, username string) (*model.Subscriber, error)
	Create(ctx context.Context, sub *model.Subscriber) error
	Update(ctx context.Context, sub *model.Subscriber) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.SubscriberStatus) error
	List(ctx context.Context, filter SubscriberListFilter) ([]*model.Subscriber, error)
	Count(ctx context.Context, filter SubscriberListFilter) (int64, error)
	// ListExpiring returns ACTIVE subscribers whose expiry date falls within
	// the UTC calendar day containing `day`.
	ListExpiring(ctx context.Context, tenantID uuid.UUID, day time.Time) ([]*model.Subscriber, error)
	// ListPastGrace returns ACTIVE subscribers whose expiry date is at or
	// before the cutoff.
	ListPastGrace(ctx context.Context, tenantID uuid.UUID, cutoff time.Time) ([]*model.Subscriber, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type PlanRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Plan, error)
	Create(ctx context.Context, plan *model.Plan) error
	Update(ctx context.Context, plan *model.Plan) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*model.Plan, error)
}

type NasRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.NasDevice, error)
	FindByIP(ctx context.Context, ip string) (*model.NasDevice, error)
	Create(ctx context.Context, nas *model.NasDevice) error
	Update(ctx context.Context, nas *model.NasDevice) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*model.NasDevice, error)
}

type OperatorRepository interface {
	FindByUsername(ctx context.Context, username string) (*model.Operator, error)
	Create(ctx context.Context, op *model.Operator) error
}

type AuditRepository interface {
	Create(ctx context.Context, entry *model.AuditLog) error
	ListByTenant(ctx context.Context, tenantID uuid.UUID, page Pagination) ([]*model.AuditLog, error)
}
