package model

import (
	"time"

	"github.com/google/uuid"
)

type SubscriberStatus string

const (
	SubscriberStatusActive    SubscriberStatus = "active"
	SubscriberStatusTrial     SubscriberStatus = "trial"
	SubscriberStatusSuspended SubscriberStatus = "suspended"
	SubscriberStatusExpired   SubscriberStatus = "expired"
	SubscriberStatusDisabled  SubscriberStatus = "disabled"
)

// HasNetworkAccess reports whether the status permits authentication.
// Anything else gets a forced-reject row in the policy store.
func (s SubscriberStatus) HasNetworkAccess() bool {
	return s == SubscriberStatusActive || s == SubscriberStatusTrial
}

// Subscriber is a broadband/hotspot account. Balance and plan prices are
// in minor currency units (cents).
type Subscriber struct {
	ID            uuid.UUID        `db:"id" json:"id"`
	TenantID      uuid.UUID        `db:"tenant_id" json:"tenant_id"`
	Username      string           `db:"username" json:"username"`
	Password      string           `db:"password" json:"-"`
	Status        SubscriberStatus `db:"status" json:"status"`
	PlanID        *uuid.UUID       `db:"plan_id" json:"plan_id,omitempty"`
	NasID         *uuid.UUID       `db:"nas_id" json:"nas_id,omitempty"`
	MacAddress    *string          `db:"mac_address" json:"mac_address,omitempty"`
	StaticIP      *string          `db:"static_ip" json:"static_ip,omitempty"`
	Balance       int64            `db:"balance" json:"balance"`
	AutoRenew     bool             `db:"auto_renew" json:"auto_renew"`
	ExpiresAt     *time.Time       `db:"expires_at" json:"expires_at,omitempty"`
	LastRenewedAt *time.Time       `db:"last_renewed_at" json:"last_renewed_at,omitempty"`
	FullName      *string          `db:"full_name" json:"full_name,omitempty"`
	Phone         *string          `db:"phone" json:"phone,omitempty"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
}
