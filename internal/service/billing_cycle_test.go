package service

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

	"github.com/shivang-goliyan/CloudRadius-sub000/internal/aaa"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/model"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/provision"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/repository"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/repository/postgres"
)

// billingFixture wires the billing service against a real database the way
// main.go does, minus the session control plane (no NAS answers in tests).
type billingFixture struct {
	pool    *pgxpool.Pool
	store   *aaa.Store
	tenant  *model.Tenant
	plan    *model.Plan
	subRepo repository.SubscriberRepository
	billing *BillingService
}

func newBillingFixture(t *testing.T) *billingFixture {
	t.Helper()

	pool := startPostgresForTest(t)
	ctx := context.Background()

	tenantRepo := postgres.NewTenantRepository(pool)
	subRepo := postgres.NewSubscriberRepository(pool)
	planRepo := postgres.NewPlanRepository(pool)
	auditRepo := postgres.NewAuditRepository(pool)

	store := aaa.NewStore(pool)
	engine := provision.NewEngine(store, nil)
	outbox := provision.NewOutbox(pool)

	tenant := &model.Tenant{
		ID:        uuid.New(),
		Slug:      "acme",
		Name:      "Acme Broadband",
		Status:    model.TenantStatusActive,
		GraceDays: 3,
		Currency:  "USD",
	}
	if err := tenantRepo.Create(ctx, tenant); err != nil {
		t.Fatalf("seed tenant: %v", err)
	}

	plan := &model.Plan{
		ID:             uuid.New(),
		TenantID:       tenant.ID,
		Name:           "Home 50M",
		DownloadSpeed:  50,
		UploadSpeed:    10,
		SpeedUnit:      model.SpeedUnitMbps,
		Priority:       4,
		ValidityAmount: 30,
		ValidityUnit:   model.ValidityDays,
		Price:          500,
	}
	if err := planRepo.Create(ctx, plan); err != nil {
		t.Fatalf("seed plan: %v", err)
	}

	billing := NewBillingService(tenantRepo, subRepo, planRepo, auditRepo, pool, engine, outbox, nil, nil, nil)

	return &billingFixture{
		pool:    pool,
		store:   store,
		tenant:  tenant,
		plan:    plan,
		subRepo: subRepo,
		billing: billing,
	}
}

func (f *billingFixture) seedSubscriber(t *testing.T, username string, balance int64, autoRenew bool, expiredDaysAgo int) *model.Subscriber {
	t.Helper()

	expires := time.Now().UTC().AddDate(0, 0, -expiredDaysAgo)
	sub := &model.Subscriber{
		ID:        uuid.New(),
		TenantID:  f.tenant.ID,
		Username:  username,
		Password:  "pw-" + username,
		Status:    model.SubscriberStatusActive,
		PlanID:    &f.plan.ID,
		Balance:   balance,
		AutoRenew: autoRenew,
		ExpiresAt: &expires,
	}
	if err := f.subRepo.Create(context.Background(), sub); err != nil {
		t.Fatalf("seed subscriber %s: %v", username, err)
	}
	return sub
}

func TestRunBillingCycleAutoRenewsFundedSubscriber(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()

	sub := f.seedSubscriber(t, "john", 2*f.plan.Price, true, 5)
	before := time.Now().UTC()

	if err := f.billing.RunBillingCycle(ctx); err != nil {
		t.Fatalf("billing cycle: %v", err)
	}

	got, err := f.subRepo.FindByID(ctx, sub.ID)
	if err != nil {
		t.Fatalf("reload subscriber: %v", err)
	}
	if got.Status != model.SubscriberStatusActive {
		t.Fatalf("expected status active after renewal, got %s", got.Status)
	}
	if got.Balance != f.plan.Price {
		t.Fatalf("expected balance %d after one charge, got %d", f.plan.Price, got.Balance)
	}
	if got.ExpiresAt == nil || !got.ExpiresAt.After(before) {
		t.Fatalf("expected future expiry after renewal, got %v", got.ExpiresAt)
	}
	if got.LastRenewedAt == nil {
		t.Fatal("expected last_renewed_at to be stamped")
	}

	username := aaa.Username(f.tenant.Slug, "john")
	attrs, err := f.store.UserCheckAttrs(ctx, username)
	if err != nil {
		t.Fatalf("read check attrs: %v", err)
	}
	for _, attr := range attrs {
		if attr.Name == aaa.AttrAuthType {
			t.Fatalf("renewed subscriber must not carry a reject row, got %+v", attr)
		}
	}
	group, _, err := f.store.UserGroup(ctx, username)
	if err != nil {
		t.Fatalf("read membership: %v", err)
	}
	if want := aaa.GroupName(f.tenant.Slug, f.plan.ID); group != want {
		t.Fatalf("membership = %q, want %q", group, want)
	}
}

func TestRunBillingCycleExpiresUnfundedSubscriber(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()

	sub := f.seedSubscriber(t, "jane", f.plan.Price-1, true, 5)

	if err := f.billing.RunBillingCycle(ctx); err != nil {
		t.Fatalf("billing cycle: %v", err)
	}

	got, err := f.subRepo.FindByID(ctx, sub.ID)
	if err != nil {
		t.Fatalf("reload subscriber: %v", err)
	}
	if got.Status != model.SubscriberStatusExpired {
		t.Fatalf("expected status expired, got %s", got.Status)
	}
	if got.Balance != f.plan.Price-1 {
		t.Fatalf("expire must not charge the balance, got %d", got.Balance)
	}

	attrs, err := f.store.UserCheckAttrs(ctx, aaa.Username(f.tenant.Slug, "jane"))
	if err != nil {
		t.Fatalf("read check attrs: %v", err)
	}
	var reject bool
	for _, attr := range attrs {
		if attr.Name == aaa.AttrAuthType && attr.Value == aaa.ValueReject {
			reject = true
		}
	}
	if !reject {
		t.Fatalf("expired subscriber must carry a reject row, got %+v", attrs)
	}
}

func TestRunBillingCycleLeavesGraceWindowAlone(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()

	// Expired yesterday with a three-day grace window: not resolvable yet.
	sub := f.seedSubscriber(t, "fresh", 2*f.plan.Price, true, 1)

	if err := f.billing.RunBillingCycle(ctx); err != nil {
		t.Fatalf("billing cycle: %v", err)
	}

	got, err := f.subRepo.FindByID(ctx, sub.ID)
	if err != nil {
		t.Fatalf("reload subscriber: %v", err)
	}
	if got.Status != model.SubscriberStatusActive {
		t.Fatalf("subscriber inside grace must stay active, got %s", got.Status)
	}
	if got.Balance != 2*f.plan.Price {
		t.Fatalf("subscriber inside grace must not be charged, got %d", got.Balance)
	}
	if got.LastRenewedAt != nil {
		t.Fatal("subscriber inside grace must not be renewed")
	}
}

func TestImportIsolatesDuplicateUsernames(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()

	subRepo := postgres.NewSubscriberRepository(f.pool)
	planRepo := postgres.NewPlanRepository(f.pool)
	auditRepo := postgres.NewAuditRepository(f.pool)
	engine := provision.NewEngine(f.store, nil)
	outbox := provision.NewOutbox(f.pool)
	svc := NewSubscriberService(subRepo, planRepo, auditRepo, engine, outbox, nil, nil, nil)

	rows := []CreateSubscriberRequest{
		{Username: "alice", Password: "pw1"},
		{Username: "alice", Password: "pw2"},
		{Username: "bob", Password: "pw3"},
	}
	result := svc.Import(ctx, "", f.tenant, rows)

	if result.Created != 2 || result.Failed != 1 {
		t.Fatalf("expected 2 created / 1 failed, got %d / %d", result.Created, result.Failed)
	}
	if result.Rows[1].Error == "" {
		t.Fatal("duplicate row must carry an error")
	}
	if result.Rows[0].Error != "" || result.Rows[2].Error != "" {
		t.Fatalf("unique rows must succeed, got %+v", result.Rows)
	}

	total, err := subRepo.Count(ctx, repository.SubscriberListFilter{TenantID: &f.tenant.ID})
	if err != nil {
		t.Fatalf("count subscribers: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 stored subscribers, got %d", total)
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
