package model

import (
	"time"

	"github.com/google/uuid"
)

type OperatorRole string

const (
	OperatorRoleAdmin OperatorRole = "admin"
	OperatorRoleStaff OperatorRole = "staff"
)

// Operator is a staff account for the management API. Subscriber
// credentials live in the policy store, not here.
type Operator struct {
	ID           uuid.UUID    `db:"id" json:"id"`
	TenantID     *uuid.UUID   `db:"tenant_id" json:"tenant_id,omitempty"`
	Username     string       `db:"username" json:"username"`
	PasswordHash string       `db:"password_hash" json:"-"`
	Role         OperatorRole `db:"role" json:"role"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
}
