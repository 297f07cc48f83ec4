package aaa

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	testcontainers "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestReplaceUserCheckAttrsIdempotent(t *testing.T) {
	store := NewStore(startPostgresForTest(t))
	ctx := context.Background()
	username := Username("acme", "john")

	attrs := []Attribute{{Name: AttrCleartextPassword, Op: OpOverwrite, Value: "s3cret"}}
	for i := 0; i < 3; i++ {
		if err := store.ReplaceUserCheckAttrs(ctx, username, attrs); err != nil {
			t.Fatalf("replace attempt %d: %v", i, err)
		}
	}

	got, err := store.UserCheckAttrs(ctx, username)
	if err != nil {
		t.Fatalf("read check attrs: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected exactly one row after repeated replace, got %d", len(got))
	}
	if got[0].Name != AttrCleartextPassword || got[0].Op != OpOverwrite || got[0].Value != "s3cret" {
		t.Fatalf("unexpected row: %+v", got[0])
	}
}

func TestSetUserCheckAttrLeavesOthersAlone(t *testing.T) {
	store := NewStore(startPostgresForTest(t))
	ctx := context.Background()
	username := Username("acme", "john")

	if err := store.ReplaceUserCheckAttrs(ctx, username, []Attribute{
		{Name: AttrCleartextPassword, Op: OpOverwrite, Value: "s3cret"},
	}); err != nil {
		t.Fatalf("seed password: %v", err)
	}
	if err := store.SetUserCheckAttr(ctx, username, Attribute{
		Name: AttrAuthType, Op: OpOverwrite, Value: ValueReject,
	}); err != nil {
		t.Fatalf("set reject: %v", err)
	}
	if err := store.SetUserCheckAttr(ctx, username, Attribute{
		Name: AttrAuthType, Op: OpOverwrite, Value: ValueReject,
	}); err != nil {
		t.Fatalf("set reject again: %v", err)
	}

	got, err := store.UserCheckAttrs(ctx, username)
	if err != nil {
		t.Fatalf("read check attrs: %v", err)
	}
	byName := map[string]string{}
	for _, attr := range got {
		byName[attr.Name] = attr.Value
	}
	if len(got) != 2 {
		t.Fatalf("expected password plus reject, got %+v", got)
	}
	if byName[AttrCleartextPassword] != "s3cret" {
		t.Fatal("password row was disturbed by targeted set")
	}

	if err := store.ClearUserCheckAttr(ctx, username, AttrAuthType); err != nil {
		t.Fatalf("clear reject: %v", err)
	}
	got, err = store.UserCheckAttrs(ctx, username)
	if err != nil {
		t.Fatalf("re-read check attrs: %v", err)
	}
	if len(got) != 1 || got[0].Name != AttrCleartextPassword {
		t.Fatalf("expected only the password row, got %+v", got)
	}
}

func TestUserReplyAttrRoundTrip(t *testing.T) {
	store := NewStore(startPostgresForTest(t))
	ctx := context.Background()
	username := Username("acme", "john")

	if err := store.SetUserReplyAttr(ctx, username, Attribute{
		Name: AttrFramedIPAddress, Op: OpOverwrite, Value: "10.1.2.3",
	}); err != nil {
		t.Fatalf("set framed ip: %v", err)
	}
	if err := store.SetUserReplyAttr(ctx, username, Attribute{
		Name: AttrFramedIPAddress, Op: OpOverwrite, Value: "10.1.2.4",
	}); err != nil {
		t.Fatalf("overwrite framed ip: %v", err)
	}

	got, err := store.UserReplyAttrs(ctx, username)
	if err != nil {
		t.Fatalf("read reply attrs: %v", err)
	}
	if len(got) != 1 || got[0].Value != "10.1.2.4" {
		t.Fatalf("expected one row with the latest ip, got %+v", got)
	}

	if err := store.ClearUserReplyAttr(ctx, username, AttrFramedIPAddress); err != nil {
		t.Fatalf("clear framed ip: %v", err)
	}
	got, err = store.UserReplyAttrs(ctx, username)
	if err != nil {
		t.Fatalf("re-read reply attrs: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no rows, got %+v", got)
	}
}

func TestReplaceGroupPolicyReplacesBothSides(t *testing.T) {
	store := NewStore(startPostgresForTest(t))
	ctx := context.Background()
	groupName := GroupName("acme", uuid.New())

	first := GroupPolicy{
		CheckAttrs: []Attribute{{Name: AttrSimultaneousUse, Op: OpOverwrite, Value: "2"}},
		ReplyAttrs: []Attribute{{Name: AttrMikrotikRateLimit, Op: OpOverwrite, Value: "10M/50M"}},
	}
	if err := store.ReplaceGroupPolicy(ctx, groupName, first); err != nil {
		t.Fatalf("first replace: %v", err)
	}

	second := GroupPolicy{
		ReplyAttrs: []Attribute{{Name: AttrMikrotikRateLimit, Op: OpOverwrite, Value: "20M/100M"}},
	}
	if err := store.ReplaceGroupPolicy(ctx, groupName, second); err != nil {
		t.Fatalf("second replace: %v", err)
	}

	checks, err := store.GroupCheckAttrs(ctx, groupName)
	if err != nil {
		t.Fatalf("read group checks: %v", err)
	}
	if len(checks) != 0 {
		t.Fatalf("old check attrs survived the replace: %+v", checks)
	}

	replies, err := store.GroupReplyAttrs(ctx, groupName)
	if err != nil {
		t.Fatalf("read group replies: %v", err)
	}
	if len(replies) != 1 || replies[0].Value != "20M/100M" {
		t.Fatalf("expected only the new rate limit, got %+v", replies)
	}

	if err := store.RemoveGroup(ctx, groupName); err != nil {
		t.Fatalf("remove group: %v", err)
	}
	replies, err = store.GroupReplyAttrs(ctx, groupName)
	if err != nil {
		t.Fatalf("re-read group replies: %v", err)
	}
	if len(replies) != 0 {
		t.Fatalf("expected no rows after remove, got %+v", replies)
	}
}

func TestReplaceUserGroupMembership(t *testing.T) {
	store := NewStore(startPostgresForTest(t))
	ctx := context.Background()
	username := Username("acme", "john")

	groupA := GroupName("acme", uuid.New())
	groupB := GroupName("acme", uuid.New())

	if err := store.ReplaceUserGroup(ctx, username, groupA, 1); err != nil {
		t.Fatalf("join group A: %v", err)
	}
	if err := store.ReplaceUserGroup(ctx, username, groupB, 1); err != nil {
		t.Fatalf("move to group B: %v", err)
	}

	got, _, err := store.UserGroup(ctx, username)
	if err != nil {
		t.Fatalf("read membership: %v", err)
	}
	if got != groupB {
		t.Fatalf("expected membership in %q, got %q", groupB, got)
	}

	// Empty group clears membership entirely.
	if err := store.ReplaceUserGroup(ctx, username, "", 0); err != nil {
		t.Fatalf("clear membership: %v", err)
	}
	got, _, err = store.UserGroup(ctx, username)
	if err != nil {
		t.Fatalf("re-read membership: %v", err)
	}
	if got != "" {
		t.Fatalf("expected no membership, got %q", got)
	}
}

func TestRemoveUserClearsAllPolicyRows(t *testing.T) {
	store := NewStore(startPostgresForTest(t))
	ctx := context.Background()
	username := Username("acme", "john")

	if err := store.ReplaceUserCheckAttrs(ctx, username, []Attribute{
		{Name: AttrCleartextPassword, Op: OpOverwrite, Value: "s3cret"},
	}); err != nil {
		t.Fatalf("seed check: %v", err)
	}
	if err := store.SetUserReplyAttr(ctx, username, Attribute{
		Name: AttrFramedIPAddress, Op: OpOverwrite, Value: "10.1.2.3",
	}); err != nil {
		t.Fatalf("seed reply: %v", err)
	}
	if err := store.ReplaceUserGroup(ctx, username, GroupName("acme", uuid.New()), 1); err != nil {
		t.Fatalf("seed membership: %v", err)
	}

	if err := store.RemoveUser(ctx, username); err != nil {
		t.Fatalf("remove user: %v", err)
	}

	checks, err := store.UserCheckAttrs(ctx, username)
	if err != nil {
		t.Fatalf("read checks: %v", err)
	}
	replies, err := store.UserReplyAttrs(ctx, username)
	if err != nil {
		t.Fatalf("read replies: %v", err)
	}
	group, _, err := store.UserGroup(ctx, username)
	if err != nil {
		t.Fatalf("read membership: %v", err)
	}
	if len(checks) != 0 || len(replies) != 0 || group != "" {
		t.Fatalf("policy rows survived removal: checks=%+v replies=%+v group=%q", checks, replies, group)
	}
}

func TestUpsertNasRefreshesSecret(t *testing.T) {
	store := NewStore(startPostgresForTest(t))
	ctx := context.Background()

	entry := NasEntry{
		IPAddress:   "192.0.2.10",
		ShortName:   "edge-router",
		Type:        "mikrotik",
		Secret:      "first-secret",
		Description: "acme edge",
	}
	if err := store.UpsertNas(ctx, entry); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	entry.Secret = "rotated-secret"
	if err := store.UpsertNas(ctx, entry); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	var count int
	var secret string
	if err := store.pool.QueryRow(ctx,
		`SELECT COUNT(*), MAX(secret) FROM nas WHERE nasname = $1`, entry.IPAddress,
	).Scan(&count, &secret); err != nil {
		t.Fatalf("read nas row: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single nas row, got %d", count)
	}
	if secret != "rotated-secret" {
		t.Fatalf("secret was not refreshed, got %q", secret)
	}

	if err := store.RemoveNas(ctx, entry.IPAddress); err != nil {
		t.Fatalf("remove nas: %v", err)
	}
}

func TestOpenSessionsScopedToTenantPrefix(t *testing.T) {
	store := NewStore(startPostgresForTest(t))
	ctx := context.Background()

	seedSession(t, store.pool, "acme-john", "192.0.2.10", nil)
	seedSession(t, store.pool, "globex-john", "192.0.2.11", nil)
	stopped := time.Now().UTC().Add(-time.Hour)
	seedSession(t, store.pool, "acme-jane", "192.0.2.10", &stopped)

	open, err := store.OpenSessionsByPrefix(ctx, TenantPrefix("acme"))
	if err != nil {
		t.Fatalf("open by prefix: %v", err)
	}
	if len(open) != 1 || open[0].Username != "acme-john" {
		t.Fatalf("expected only acme-john open, got %+v", open)
	}

	byUser, err := store.OpenSessionsByUser(ctx, "globex-john")
	if err != nil {
		t.Fatalf("open by user: %v", err)
	}
	if len(byUser) != 1 || byUser[0].NasIPAddress != "192.0.2.11" {
		t.Fatalf("unexpected sessions for globex-john: %+v", byUser)
	}
}

func TestCloseStaleSessions(t *testing.T) {
	store := NewStore(startPostgresForTest(t))
	ctx := context.Background()

	old := time.Now().UTC().Add(-2 * time.Hour)
	seedSessionWithUpdate(t, store.pool, "acme-stale", "192.0.2.10", old)
	seedSessionWithUpdate(t, store.pool, "acme-fresh", "192.0.2.10", time.Now().UTC())

	closed, err := store.CloseStaleSessions(ctx, "", 15*time.Minute)
	if err != nil {
		t.Fatalf("close stale: %v", err)
	}
	if closed != 1 {
		t.Fatalf("expected one closed session, got %d", closed)
	}

	open, err := store.OpenSessionsByPrefix(ctx, TenantPrefix("acme"))
	if err != nil {
		t.Fatalf("open by prefix: %v", err)
	}
	if len(open) != 1 || open[0].Username != "acme-fresh" {
		t.Fatalf("expected only the fresh session open, got %+v", open)
	}

	var cause string
	if err := store.pool.QueryRow(ctx,
		`SELECT acctterminatecause FROM radacct WHERE username = 'acme-stale'`,
	).Scan(&cause); err != nil {
		t.Fatalf("read terminate cause: %v", err)
	}
	if cause != "Stale-Session" {
		t.Fatalf("expected Stale-Session cause, got %q", cause)
	}
}

func seedSession(t *testing.T, pool *pgxpool.Pool, username, nasIP string, stopTime *time.Time) {
	t.Helper()
	seedSessionRow(t, pool, username, nasIP, time.Now().UTC(), stopTime)
}

func seedSessionWithUpdate(t *testing.T, pool *pgxpool.Pool, username, nasIP string, updateTime time.Time) {
	t.Helper()
	seedSessionRow(t, pool, username, nasIP, updateTime, nil)
}

func seedSessionRow(t *testing.T, pool *pgxpool.Pool, username, nasIP string, updateTime time.Time, stopTime *time.Time) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO radacct (
			acctsessionid, acctuniqueid, username, nasipaddress,
			acctstarttime, acctupdatetime, acctstoptime,
			acctinputoctets, acctoutputoctets
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 0, 0)`,
		uuid.NewString(), uuid.NewString(), username, nasIP,
		updateTime.Add(-time.Minute), updateTime, stopTime,
	)
	if err != nil {
		t.Fatalf("seed radacct row: %v", err)
	}
}

func startPostgresForTest(t *testing.T) *pgxpool.Pool {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "postgres",
				"POSTGRES_PASSWORD": "postgres",
				"POSTGRES_DB":       "cloudradius_test",
			},
			WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("skipping test because docker/testcontainers is unavailable: %v", err)
	}

	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("container mapped port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://postgres:postgres@%s:%s/cloudradius_test?sslmode=disable", host, port.Port())
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("create pgx pool: %v", err)
	}
	t.Cleanup(pool.Close)

	deadline := time.Now().Add(30 * time.Second)
	for {
		err = pool.Ping(ctx)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("postgres did not become ready: %v", err)
		}
		time.Sleep(500 * time.Millisecond)
	}

	applyAllMigrations(t, ctx, pool)
	return pool
}

func applyAllMigrations(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()

	migrationsDir := filepath.Join(findRepoRoot(t), "migrations")
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	for _, file := range files {
		// #nosec G304 -- migration file list comes from controlled test directory.
		raw, err := os.ReadFile(filepath.Join(migrationsDir, file))
		if err != nil {
			t.Fatalf("read migration %s: %v", file, err)
		}
		if strings.TrimSpace(string(raw)) == "" {
			continue
		}
		if _, err := pool.Exec(ctx, string(raw)); err != nil {
			t.Fatalf("apply migration %s: %v", file, err)
		}
	}
}

func findRepoRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not locate repository root")
		}
		dir = parent
	}
}
