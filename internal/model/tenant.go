package model

import (
	"time"

	"github.com/google/uuid"
)

type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
)

// Tenant is an ISP/operator account. Slug is the stable short identifier
// prefixed onto every RADIUS username and group name so one policy store
// can multiplex all tenants.
type Tenant struct {
	ID            uuid.UUID    `db:"id" json:"id"`
	Slug          string       `db:"slug" json:"slug"`
	Name          string       `db:"name" json:"name"`
	Status        TenantStatus `db:"status" json:"status"`
	GraceDays     int          `db:"grace_days" json:"grace_days"`
	Currency      string       `db:"currency" json:"currency"`
	ContactEmail  *string      `db:"contact_email" json:"contact_email,omitempty"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`
}
