package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shivang-goliyan/CloudRadius-sub000/internal/model"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/repository"
)

var ErrInvalidOperatorID = errors.New("invalid operator id")

type AuditService struct {
	auditRepo repository.AuditRepository
	logger    *zap.Logger
}

func NewAuditService(auditRepo repository.AuditRepository, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AuditService{
		auditRepo: auditRepo,
		logger:    logger,
	}
}

func (s *AuditService) ListByTenant(ctx context.Context, tenantID string, page repository.Pagination) ([]*model.AuditLog, error) {
	id, err := uuid.Parse(strings.TrimSpace(tenantID))
	if err != nil {
		return nil, ErrInvalidTenantID
	}
	return s.auditRepo.ListByTenant(ctx, id, page)
}

// writeAudit records a management action. Audit writes never fail the
// calling workflow; a lost entry is logged and dropped.
func writeAudit(
	ctx context.Context,
	auditRepo repository.AuditRepository,
	logger *zap.Logger,
	operatorID string,
	tenantID *uuid.UUID,
	action, resourceType, resourceID string,
	oldValue, newValue map[string]interface{},
) {
	if auditRepo == nil {
		return
	}

	entry := &model.AuditLog{
		ID:           uuid.New(),
		TenantID:     tenantID,
		Action:       action,
		ResourceType: &resourceType,
		ResourceID:   &resourceID,
		OldValue:     oldValue,
		NewValue:     newValue,
	}
	if parsed, err := uuid.Parse(strings.TrimSpace(operatorID)); err == nil {
		entry.OperatorID = &parsed
	}

	if err := auditRepo.Create(ctx, entry); err != nil && logger != nil {
		logger.Warn("write audit entry failed",
			zap.String("action", action),
			zap.Error(err),
		)
	}
}
