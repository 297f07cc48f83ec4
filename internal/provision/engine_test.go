package provision

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shivang-goliyan/CloudRadius-sub000/internal/aaa"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/model"
)

// fakeStore keeps policy rows in memory with the same replace semantics as
// the real adapter.
type fakeStore struct {
	check      map[string][]aaa.Attribute
	reply      map[string][]aaa.Attribute
	groups     map[string]aaa.GroupPolicy
	membership map[string]string
	nas        map[string]aaa.NasEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		check:      make(map[string][]aaa.Attribute),
		reply:      make(map[string][]aaa.Attribute),
		groups:     make(map[string]aaa.GroupPolicy),
		membership: make(map[string]string),
		nas:        make(map[string]aaa.NasEntry),
	}
}

func (f *fakeStore) ReplaceUserCheckAttrs(_ context.Context, username string, attrs []aaa.Attribute) error {
	f.check[username] = append([]aaa.Attribute(nil), attrs...)
	return nil
}

func setAttr(rows []aaa.Attribute, attr aaa.Attribute) []aaa.Attribute {
	out := clearAttr(rows, attr.Name)
	return append(out, attr)
}

func clearAttr(rows []aaa.Attribute, name string) []aaa.Attribute {
	out := rows[:0:0]
	for _, row := range rows {
		if row.Name != name {
			out = append(out, row)
		}
	}
	return out
}

func (f *fakeStore) SetUserCheckAttr(_ context.Context, username string, attr aaa.Attribute) error {
	f.check[username] = setAttr(f.check[username], attr)
	return nil
}

func (f *fakeStore) ClearUserCheckAttr(_ context.Context, username, attrName string) error {
	f.check[username] = clearAttr(f.check[username], attrName)
	return nil
}

func (f *fakeStore) SetUserReplyAttr(_ context.Context, username string, attr aaa.Attribute) error {
	f.reply[username] = setAttr(f.reply[username], attr)
	return nil
}

func (f *fakeStore) ClearUserReplyAttr(_ context.Context, username, attrName string) error {
	f.reply[username] = clearAttr(f.reply[username], attrName)
	return nil
}

func (f *fakeStore) ReplaceUserGroup(_ context.Context, username, groupName string, _ int) error {
	if groupName == "" {
		delete(f.membership, username)
		return nil
	}
	f.membership[username] = groupName
	return nil
}

func (f *fakeStore) ReplaceGroupPolicy(_ context.Context, groupName string, policy aaa.GroupPolicy) error {
	f.groups[groupName] = policy
	return nil
}

func (f *fakeStore) RemoveGroup(_ context.Context, groupName string) error {
	delete(f.groups, groupName)
	return nil
}

func (f *fakeStore) RemoveUser(_ context.Context, username string) error {
	delete(f.check, username)
	delete(f.reply, username)
	delete(f.membership, username)
	return nil
}

func (f *fakeStore) UpsertNas(_ context.Context, entry aaa.NasEntry) error {
	f.nas[entry.IPAddress] = entry
	return nil
}

func (f *fakeStore) RemoveNas(_ context.Context, ipAddress string) error {
	delete(f.nas, ipAddress)
	return nil
}

func findAttr(rows []aaa.Attribute, name string) *aaa.Attribute {
	for i := range rows {
		if rows[i].Name == name {
			return &rows[i]
		}
	}
	return nil
}

func strPtr(s string) *string { return &s }

func TestSyncSubscriberAuthIdempotent(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(store, nil)

	sub := &model.Subscriber{Username: "alice", Password: "secret1"}
	for i := 0; i < 2; i++ {
		if err := engine.SyncSubscriberAuth(context.Background(), "acme", sub); err != nil {
			t.Fatalf("sync auth: %v", err)
		}
	}

	rows := store.check["acme-alice"]
	if len(rows) != 1 {
		t.Fatalf("expected exactly one credential row, got %d", len(rows))
	}
	if rows[0].Name != aaa.AttrCleartextPassword || rows[0].Op != aaa.OpOverwrite || rows[0].Value != "secret1" {
		t.Fatalf("unexpected credential row: %+v", rows[0])
	}
}

func TestSyncSubscriberAuthRejectsEmptyPassword(t *testing.T) {
	engine := NewEngine(newFakeStore(), nil)

	err := engine.SyncSubscriberAuth(context.Background(), "acme", &model.Subscriber{Username: "alice"})
	if err != ErrEmptyCredential {
		t.Fatalf("expected ErrEmptyCredential, got %v", err)
	}
}

func TestSyncSubscriberPlanMembership(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(store, nil)
	planID := uuid.New()

	if err := engine.SyncSubscriberPlan(context.Background(), "acme", "alice", &planID); err != nil {
		t.Fatalf("assign plan: %v", err)
	}
	if got, want := store.membership["acme-alice"], "acme-plan-"+planID.String(); got != want {
		t.Fatalf("membership = %q, want %q", got, want)
	}

	if err := engine.SyncSubscriberPlan(context.Background(), "acme", "alice", nil); err != nil {
		t.Fatalf("clear plan: %v", err)
	}
	if _, ok := store.membership["acme-alice"]; ok {
		t.Fatal("membership should be removed when plan is nil")
	}
}

func TestSyncPlanBandwidthWritesGroupPolicy(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(store, nil)

	devices := 3
	plan := &model.Plan{
		ID:            uuid.New(),
		DownloadSpeed: 50,
		UploadSpeed:   10,
		SpeedUnit:     model.SpeedUnitMbps,
		SharedDevices: &devices,
		Priority:      4,
	}

	if err := engine.SyncPlanBandwidth(context.Background(), "acme", plan, "mikrotik"); err != nil {
		t.Fatalf("sync plan: %v", err)
	}

	policy, ok := store.groups["acme-plan-"+plan.ID.String()]
	if !ok {
		t.Fatal("group policy not written")
	}
	rate := findAttr(policy.ReplyAttrs, aaa.AttrMikrotikRateLimit)
	if rate == nil || rate.Value != "10M/50M" {
		t.Fatalf("rate-limit attr = %+v, want 10M/50M", rate)
	}
	simul := findAttr(policy.CheckAttrs, aaa.AttrSimultaneousUse)
	if simul == nil || simul.Value != "3" {
		t.Fatalf("simultaneous-use attr = %+v, want 3", simul)
	}
}

func TestMacBindingSurvivesRejectCycle(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(store, nil)
	ctx := context.Background()

	if err := engine.SetMacBinding(ctx, "acme", "alice", "aa:bb:cc:dd:ee:ff"); err != nil {
		t.Fatalf("set mac: %v", err)
	}
	if err := engine.SetReject(ctx, "acme", "alice"); err != nil {
		t.Fatalf("set reject: %v", err)
	}
	if err := engine.ClearReject(ctx, "acme", "alice"); err != nil {
		t.Fatalf("clear reject: %v", err)
	}

	rows := store.check["acme-alice"]
	if findAttr(rows, aaa.AttrAuthType) != nil {
		t.Fatal("reject marker should be gone")
	}
	mac := findAttr(rows, aaa.AttrCallingStationID)
	if mac == nil || mac.Value != "AA:BB:CC:DD:EE:FF" {
		t.Fatalf("mac binding = %+v, want normalized AA:BB:CC:DD:EE:FF", mac)
	}
}

func TestProvisionSubscriberFullPolicy(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(store, nil)

	planID := uuid.New()
	expires := time.Date(2026, 9, 30, 23, 59, 59, 0, time.UTC)
	tenant := &model.Tenant{Slug: "acme"}
	sub := &model.Subscriber{
		Username:   "bob",
		Password:   "hunter2",
		Status:     model.SubscriberStatusActive,
		PlanID:     &planID,
		MacAddress: strPtr("00:11:22:33:44:55"),
		StaticIP:   strPtr("10.9.0.7"),
		ExpiresAt:  &expires,
	}

	if err := engine.ProvisionSubscriber(context.Background(), tenant, sub); err != nil {
		t.Fatalf("provision: %v", err)
	}

	rows := store.check["acme-bob"]
	if findAttr(rows, aaa.AttrCleartextPassword) == nil {
		t.Fatal("missing credential row")
	}
	exp := findAttr(rows, aaa.AttrExpiration)
	if exp == nil || exp.Value != "Sep 30 2026 23:59:59" {
		t.Fatalf("expiration attr = %+v", exp)
	}
	if findAttr(rows, aaa.AttrAuthType) != nil {
		t.Fatal("active subscriber must not carry a reject row")
	}
	ip := findAttr(store.reply["acme-bob"], aaa.AttrFramedIPAddress)
	if ip == nil || ip.Value != "10.9.0.7" {
		t.Fatalf("framed ip attr = %+v", ip)
	}
	if got, want := store.membership["acme-bob"], "acme-plan-"+planID.String(); got != want {
		t.Fatalf("membership = %q, want %q", got, want)
	}
}

func TestProvisionSuspendedSubscriberRejectsAndUnlinksPlan(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(store, nil)

	planID := uuid.New()
	tenant := &model.Tenant{Slug: "acme"}
	sub := &model.Subscriber{
		Username: "carol",
		Password: "pw",
		Status:   model.SubscriberStatusSuspended,
		PlanID:   &planID,
	}

	if err := engine.ProvisionSubscriber(context.Background(), tenant, sub); err != nil {
		t.Fatalf("provision: %v", err)
	}

	reject := findAttr(store.check["acme-carol"], aaa.AttrAuthType)
	if reject == nil || reject.Value != aaa.ValueReject {
		t.Fatalf("reject attr = %+v", reject)
	}
	if _, ok := store.membership["acme-carol"]; ok {
		t.Fatal("suspended subscriber must not keep plan membership")
	}
}

func TestProvisionDisabledSubscriberLeavesNoRows(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(store, nil)
	ctx := context.Background()

	planID := uuid.New()
	tenant := &model.Tenant{Slug: "acme"}
	sub := &model.Subscriber{
		Username:   "erin",
		Password:   "pw",
		Status:     model.SubscriberStatusActive,
		PlanID:     &planID,
		MacAddress: strPtr("aa:bb:cc:00:11:22"),
		StaticIP:   strPtr("10.9.0.9"),
	}
	if err := engine.ProvisionSubscriber(ctx, tenant, sub); err != nil {
		t.Fatalf("provision active: %v", err)
	}

	sub.Status = model.SubscriberStatusDisabled
	if err := engine.ProvisionSubscriber(ctx, tenant, sub); err != nil {
		t.Fatalf("provision disabled: %v", err)
	}

	if rows := store.check["acme-erin"]; len(rows) != 0 {
		t.Fatalf("disabled subscriber still has check rows: %+v", rows)
	}
	if rows := store.reply["acme-erin"]; len(rows) != 0 {
		t.Fatalf("disabled subscriber still has reply rows: %+v", rows)
	}
	if _, ok := store.membership["acme-erin"]; ok {
		t.Fatal("disabled subscriber still has group membership")
	}
}

func TestRemoveSubscriberAuthClearsEverything(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(store, nil)
	ctx := context.Background()

	sub := &model.Subscriber{Username: "dave", Password: "pw", Status: model.SubscriberStatusActive}
	if err := engine.ProvisionSubscriber(ctx, &model.Tenant{Slug: "acme"}, sub); err != nil {
		t.Fatalf("provision: %v", err)
	}
	if err := engine.RemoveSubscriberAuth(ctx, "acme", "dave"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if len(store.check["acme-dave"]) != 0 || len(store.reply["acme-dave"]) != 0 {
		t.Fatal("policy rows should be gone after removal")
	}
	if _, ok := store.membership["acme-dave"]; ok {
		t.Fatal("membership should be gone after removal")
	}
}

func TestSyncNasDevice(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(store, nil)

	nas := &model.NasDevice{
		Name:      "core-router",
		IPAddress: "192.0.2.10",
		Secret:    "s3cret",
		Vendor:    "mikrotik",
	}
	if err := engine.SyncNasDevice(context.Background(), nas); err != nil {
		t.Fatalf("sync nas: %v", err)
	}

	entry, ok := store.nas["192.0.2.10"]
	if !ok {
		t.Fatal("nas entry not written")
	}
	if entry.ShortName != "core-router" || entry.Secret != "s3cret" || entry.Type != "mikrotik" {
		t.Fatalf("unexpected nas entry: %+v", entry)
	}

	if err := engine.RemoveNasDevice(context.Background(), "192.0.2.10"); err != nil {
		t.Fatalf("remove nas: %v", err)
	}
	if _, ok := store.nas["192.0.2.10"]; ok {
		t.Fatal("nas entry should be gone after removal")
	}
}
