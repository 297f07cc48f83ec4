package model

import (
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	ID           uuid.UUID              `db:"id" json:"id"`
	TenantID     *uuid.UUID             `db:"tenant_id" json:"tenant_id,omitempty"`
	OperatorID   *uuid.UUID             `db:"operator_id" json:"operator_id,omitempty"`
	Action       string                 `db:"action" json:"action"`
	ResourceType *string                `db:"resource_type" json:"resource_type,omitempty"`
	ResourceID   *string                `db:"resource_id" json:"resource_id,omitempty"`
	OldValue     map[string]interface{} `db:"old_value" json:"old_value,omitempty"`
	NewValue     map[string]interface{} `db:"new_value" json:"new_value,omitempty"`
	CreatedAt    time.Time              `db:"created_at" json:"created_at"`
}
