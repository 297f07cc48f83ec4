// Package provision translates domain records into policy store rows. All
// operations are idempotent replaces: run twice, they leave the same rows.
package provision

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shivang-goliyan/CloudRadius-sub000/internal/aaa"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/model"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/policy"
)

var ErrEmptyCredential = errors.New("subscriber has no stored credential")

// PolicyStore is the slice of the policy store adapter the engine writes
// through. *aaa.Store satisfies it.
type PolicyStore interface {
	ReplaceUserCheckAttrs(ctx context.Context, username string, attrs []aaa.Attribute) error
	SetUserCheckAttr(ctx context.Context, username string, attr aaa.Attribute) error
	ClearUserCheckAttr(ctx context.Context, username, attrName string) error
	SetUserReplyAttr(ctx context.Context, username string, attr aaa.Attribute) error
	ClearUserReplyAttr(ctx context.Context, username, attrName string) error
	ReplaceUserGroup(ctx context.Context, username, groupName string, priority int) error
	ReplaceGroupPolicy(ctx context.Context, groupName string, policy aaa.GroupPolicy) error
	RemoveGroup(ctx context.Context, groupName string) error
	RemoveUser(ctx context.Context, username string) error
	UpsertNas(ctx context.Context, entry aaa.NasEntry) error
	RemoveNas(ctx context.Context, ipAddress string) error
}

type Engine struct {
	store  PolicyStore
	logger *zap.Logger
}

func NewEngine(store PolicyStore, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		store:  store,
		logger: logger,
	}
}

// SyncSubscriberAuth writes exactly one credential row for the namespaced
// username. Any previously stored check rows are cleared first, including
// reject markers and MAC bindings; callers that need those must re-apply
// them afterwards (ProvisionSubscriber does).
func (e *Engine) SyncSubscriberAuth(ctx context.Context, tenantSlug string, sub *model.Subscriber) error {
	if sub == nil || strings.TrimSpace(sub.Password) == "" {
		return ErrEmptyCredential
	}

	username := aaa.Username(tenantSlug, sub.Username)
	return e.store.ReplaceUserCheckAttrs(ctx, username, []aaa.Attribute{
		{Name: aaa.AttrCleartextPassword, Op: aaa.OpOverwrite, Value: sub.Password},
	})
}

// SyncSubscriberPlan replaces the subscriber's group membership. A nil
// plan ID removes membership entirely, leaving no bandwidth policy.
func (e *Engine) SyncSubscriberPlan(ctx context.Context, tenantSlug, username string, planID *uuid.UUID) error {
	namespaced := aaa.Username(tenantSlug, username)
	if planID == nil {
		return e.store.ReplaceUserGroup(ctx, namespaced, "", 0)
	}
	return e.store.ReplaceUserGroup(ctx, namespaced, aaa.GroupName(tenantSlug, *planID), 1)
}

// SyncPlanBandwidth replaces the full attribute set for the plan's group
// with the encoder output for the given NAS vendor. Must follow every plan
// create or update.
func (e *Engine) SyncPlanBandwidth(ctx context.Context, tenantSlug string, plan *model.Plan, vendor string) error {
	if plan == nil {
		return errors.New("plan is nil")
	}

	encoded := policy.ForVendor(vendor).Encode(plan)
	return e.store.ReplaceGroupPolicy(ctx, aaa.GroupName(tenantSlug, plan.ID), encoded)
}

// SyncNasDevice upserts the device registration keyed by its IP address.
func (e *Engine) SyncNasDevice(ctx context.Context, nas *model.NasDevice) error {
	if nas == nil {
		return errors.New("nas device is nil")
	}

	description := ""
	if nas.Description != nil {
		description = *nas.Description
	}

	return e.store.UpsertNas(ctx, aaa.NasEntry{
		IPAddress:   nas.IPAddress,
		ShortName:   nas.Name,
		Type:        nas.Vendor,
		Secret:      nas.Secret,
		Description: description,
	})
}

// RemoveSubscriberAuth deletes every policy row for the namespaced
// username. Removing an unknown username is a no-op.
func (e *Engine) RemoveSubscriberAuth(ctx context.Context, tenantSlug, username string) error {
	return e.store.RemoveUser(ctx, aaa.Username(tenantSlug, username))
}

// RemovePlanBandwidth deletes the plan group's full attribute set.
func (e *Engine) RemovePlanBandwidth(ctx context.Context, tenantSlug string, planID uuid.UUID) error {
	return e.store.RemoveGroup(ctx, aaa.GroupName(tenantSlug, planID))
}

// RemoveNamespacedUser deletes every policy row for an already-namespaced
// username. Used by outbox replay, where the domain row is gone and only
// the namespaced key survives.
func (e *Engine) RemoveNamespacedUser(ctx context.Context, username string) error {
	return e.store.RemoveUser(ctx, username)
}

// RemoveGroupByName deletes a group's attribute set by its namespaced name.
func (e *Engine) RemoveGroupByName(ctx context.Context, groupName string) error {
	return e.store.RemoveGroup(ctx, groupName)
}

// RemoveNasDevice deletes the device registration for an IP.
func (e *Engine) RemoveNasDevice(ctx context.Context, ipAddress string) error {
	return e.store.RemoveNas(ctx, ipAddress)
}

// SetMacBinding pins authentication to one client MAC. The value is
// normalized to upper case; replacing an existing binding leaves a single
// row.
func (e *Engine) SetMacBinding(ctx context.Context, tenantSlug, username, mac string) error {
	return e.store.SetUserCheckAttr(ctx, aaa.Username(tenantSlug, username), aaa.Attribute{
		Name:  aaa.AttrCallingStationID,
		Op:    aaa.OpOverwrite,
		Value: strings.ToUpper(strings.TrimSpace(mac)),
	})
}

func (e *Engine) ClearMacBinding(ctx context.Context, tenantSlug, username string) error {
	return e.store.ClearUserCheckAttr(ctx, aaa.Username(tenantSlug, username), aaa.AttrCallingStationID)
}

// SetStaticIP writes the per-subscriber framed address reply override.
func (e *Engine) SetStaticIP(ctx context.Context, tenantSlug, username, ip string) error {
	return e.store.SetUserReplyAttr(ctx, aaa.Username(tenantSlug, username), aaa.Attribute{
		Name:  aaa.AttrFramedIPAddress,
		Op:    aaa.OpOverwrite,
		Value: strings.TrimSpace(ip),
	})
}

func (e *Engine) ClearStaticIP(ctx context.Context, tenantSlug, username string) error {
	return e.store.ClearUserReplyAttr(ctx, aaa.Username(tenantSlug, username), aaa.AttrFramedIPAddress)
}

// SetReject writes the forced-reject marker so the server refuses the user
// regardless of credentials.
func (e *Engine) SetReject(ctx context.Context, tenantSlug, username string) error {
	return e.store.SetUserCheckAttr(ctx, aaa.Username(tenantSlug, username), aaa.Attribute{
		Name:  aaa.AttrAuthType,
		Op:    aaa.OpOverwrite,
		Value: aaa.ValueReject,
	})
}

func (e *Engine) ClearReject(ctx context.Context, tenantSlug, username string) error {
	return e.store.ClearUserCheckAttr(ctx, aaa.Username(tenantSlug, username), aaa.AttrAuthType)
}

// SetExpiration writes the absolute expiry check item.
func (e *Engine) SetExpiration(ctx context.Context, tenantSlug, username string, expiresAt time.Time) error {
	return e.store.SetUserCheckAttr(ctx, aaa.Username(tenantSlug, username), aaa.Attribute{
		Name:  aaa.AttrExpiration,
		Op:    aaa.OpOverwrite,
		Value: aaa.FormatExpiration(expiresAt),
	})
}

func (e *Engine) ClearExpiration(ctx context.Context, tenantSlug, username string) error {
	return e.store.ClearUserCheckAttr(ctx, aaa.Username(tenantSlug, username), aaa.AttrExpiration)
}

// ProvisionSubscriber writes the complete policy for one subscriber:
// credential, expiry, MAC binding, static IP, reject marker and group
// membership, in that order. A disabled subscriber converges to zero rows.
// It is the one-stop call for the CRUD path and for outbox replay, and is
// safe to repeat.
func (e *Engine) ProvisionSubscriber(ctx context.Context, tenant *model.Tenant, sub *model.Subscriber) error {
	if tenant == nil || sub == nil {
		return errors.New("tenant and subscriber are required")
	}

	// Disabled accounts keep nothing in the store. A stale credential or MAC
	// row would still be served to the NAS alongside the reject marker.
	if sub.Status == model.SubscriberStatusDisabled {
		return e.RemoveSubscriberAuth(ctx, tenant.Slug, sub.Username)
	}

	if err := e.SyncSubscriberAuth(ctx, tenant.Slug, sub); err != nil {
		return err
	}

	if sub.ExpiresAt != nil {
		if err := e.SetExpiration(ctx, tenant.Slug, sub.Username, *sub.ExpiresAt); err != nil {
			return err
		}
	}

	if sub.MacAddress != nil && strings.TrimSpace(*sub.MacAddress) != "" {
		if err := e.SetMacBinding(ctx, tenant.Slug, sub.Username, *sub.MacAddress); err != nil {
			return err
		}
	}

	if sub.StaticIP != nil && strings.TrimSpace(*sub.StaticIP) != "" {
		if err := e.SetStaticIP(ctx, tenant.Slug, sub.Username, *sub.StaticIP); err != nil {
			return err
		}
	} else if err := e.ClearStaticIP(ctx, tenant.Slug, sub.Username); err != nil {
		return err
	}

	if !sub.Status.HasNetworkAccess() {
		if err := e.SetReject(ctx, tenant.Slug, sub.Username); err != nil {
			return err
		}
	}

	// Membership only while a plan is assigned and access is not suspended.
	planID := sub.PlanID
	if sub.Status == model.SubscriberStatusSuspended {
		planID = nil
	}
	return e.SyncSubscriberPlan(ctx, tenant.Slug, sub.Username, planID)
}
