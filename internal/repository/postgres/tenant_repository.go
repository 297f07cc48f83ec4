package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shivang-goliyan/CloudRadius-sub000/internal/model"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/repository"
)

type tenantRepository struct {
	pool *pgxpool.Pool
}

func NewTenantRepository(pool *pgxpool.Pool) repository.TenantRepository {
	return &tenantRepository{pool: pool}
}

var _ repository.TenantRepository = (*tenantRepository)(nil)

const tenantColumns = `
	id,
	slug,
	name,
	status,
	grace_days,
	currency,
	contact_email,
	created_at,
	updated_at
`

func (r *tenantRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`
	tenant, err := scanTenant(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return tenant, nil
}

func (r *tenantRepository) FindBySlug(ctx context.Context, slug string) (*model.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE slug = $1`
	tenant, err := scanTenant(r.pool.QueryRow(ctx, query, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return tenant, nil
}

func (r *tenantRepository) Create(ctx context.Context, tenant *model.Tenant) error {
	if tenant.ID == uuid.Nil {
		tenant.ID = uuid.New()
	}

	now := time.Now().UTC()
	if tenant.CreatedAt.IsZero() {
		tenant.CreatedAt = now
	}
	if tenant.UpdatedAt.IsZero() {
		tenant.UpdatedAt = tenant.CreatedAt
	}

	query := `
		INSERT INTO tenants (
			id, slug, name, status, grace_days, currency,
			contact_email, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.pool.Exec(
		ctx,
		query,
		tenant.ID,
		tenant.Slug,
		tenant.Name,
		tenant.Status,
		tenant.GraceDays,
		tenant.Currency,
		tenant.ContactEmail,
		tenant.CreatedAt,
		tenant.UpdatedAt,
	)
	return err
}

func (r *tenantRepository) Update(ctx context.Context, tenant *model.Tenant) error {
	tenant.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE tenants
		SET name = $2,
			status = $3,
			grace_days = $4,
			currency = $5,
			contact_email = $6,
			updated_at = $7
		WHERE id = $1
	`

	tag, err := r.pool.Exec(
		ctx,
		query,
		tenant.ID,
		tenant.Name,
		tenant.Status,
		tenant.GraceDays,
		tenant.Currency,
		tenant.ContactEmail,
		tenant.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return ensureAffected(tag)
}

func (r *tenantRepository) ListActive(ctx context.Context) ([]*model.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE status = $1 ORDER BY slug ASC`
	rows, err := r.pool.Query(ctx, query, model.TenantStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tenants := make([]*model.Tenant, 0, 16)
	for rows.Next() {
		item, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return tenants, nil
}

func scanTenant(src scanTarget) (*model.Tenant, error) {
	tenant := &model.Tenant{}
	err := src.Scan(
		&tenant.ID,
		&tenant.Slug,
		&tenant.Name,
		&tenant.Status,
		&tenant.GraceDays,
		&tenant.Currency,
		&tenant.ContactEmail,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return tenant, nil
}
