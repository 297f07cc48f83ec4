// Package aaa provides typed access to the FreeRADIUS policy tables
// (radcheck, radreply, radusergroup, radgroupcheck, radgroupreply, nas,
// radacct). Row formats are the wire contract of the external RADIUS
// server; attribute names and operators must match its expectations.
package aaa

import (
	"strings"

	"github.com/google/uuid"
)

// One physical policy store multiplexes every tenant, so every RADIUS
// username and group name carries the tenant slug as a prefix. Two tenants
// with the same raw username never collide.

// Username returns the namespaced RADIUS username for a subscriber.
func Username(tenantSlug, rawUsername string) string {
	return strings.TrimSpace(tenantSlug) + "-" + strings.TrimSpace(rawUsername)
}

// GroupName returns the namespaced RADIUS group for a plan.
func GroupName(tenantSlug string, planID uuid.UUID) string {
	return strings.TrimSpace(tenantSlug) + "-plan-" + planID.String()
}

// TenantPrefix returns the match prefix covering every username of a
// tenant, suitable for a LIKE query against radacct.
func TenantPrefix(tenantSlug string) string {
	return strings.TrimSpace(tenantSlug) + "-"
}

// nasShortNameLimit is the shortname column width in the nas table.
const nasShortNameLimit = 32

// TruncateShortName clips a device name to the nas.shortname column width.
func TruncateShortName(name string) string {
	trimmed := strings.TrimSpace(name)
	if len(trimmed) <= nasShortNameLimit {
		return trimmed
	}
	return trimmed[:nasShortNameLimit]
}
