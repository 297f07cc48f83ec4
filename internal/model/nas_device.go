package model

import (
	"time"

	"github.com/google/uuid"
)

// NasDevice is a network access server (router/BNG/controller) that
// authenticates subscribers against the policy store and accepts CoA and
// Disconnect packets on CoAPort. Vendor selects the rate-limit grammar
// used by the bandwidth encoder ("mikrotik" is the default).
type NasDevice struct {
	ID          uuid.UUID `db:"id" json:"id"`
	TenantID    uuid.UUID `db:"tenant_id" json:"tenant_id"`
	Name        string    `db:"name" json:"name"`
	IPAddress   string    `db:"ip_address" json:"ip_address"`
	Secret      string    `db:"secret" json:"-"`
	Vendor      string    `db:"vendor" json:"vendor"`
	CoAPort     int       `db:"coa_port" json:"coa_port"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
