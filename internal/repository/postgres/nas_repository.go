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

type nasRepository struct {
	pool *pgxpool.Pool
}

func NewNasRepository(pool *pgxpool.Pool) repository.NasRepository {
	return &nasRepository{pool: pool}
}

var _ repository.NasRepository = (*nasRepository)(nil)

const nasColumns = `
	id,
	tenant_id,
	name,
	ip_address,
	secret,
	vendor,
	coa_port,
	description,
	created_at,
	updated_at
`

func (r *nasRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.NasDevice, error) {
	query := `SELECT ` + nasColumns + ` FROM nas_devices WHERE id = $1`
	nas, err := scanNasDevice(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return nas, nil
}

func (r *nasRepository) FindByIP(ctx context.Context, ip string) (*model.NasDevice, error) {
	query := `SELECT ` + nasColumns + ` FROM nas_devices WHERE ip_address = $1`
	nas, err := scanNasDevice(r.pool.QueryRow(ctx, query, ip))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return nas, nil
}

func (r *nasRepository) Create(ctx context.Context, nas *model.NasDevice) error {
	if nas.ID == uuid.Nil {
		nas.ID = uuid.New()
	}

	now := time.Now().UTC()
	if nas.CreatedAt.IsZero() {
		nas.CreatedAt = now
	}
	if nas.UpdatedAt.IsZero() {
		nas.UpdatedAt = nas.CreatedAt
	}

	query := `
		INSERT INTO nas_devices (
			id, tenant_id, name, ip_address, secret,
			vendor, coa_port, description, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.pool.Exec(
		ctx,
		query,
		nas.ID,
		nas.TenantID,
		nas.Name,
		nas.IPAddress,
		nas.Secret,
		nas.Vendor,
		nas.CoAPort,
		nas.Description,
		nas.CreatedAt,
		nas.UpdatedAt,
	)
	return err
}

func (r *nasRepository) Update(ctx context.Context, nas *model.NasDevice) error {
	nas.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE nas_devices
		SET name = $2,
			ip_address = $3,
			secret = $4,
			vendor = $5,
			coa_port = $6,
			description = $7,
			updated_at = $8
		WHERE id = $1
	`

	tag, err := r.pool.Exec(
		ctx,
		query,
		nas.ID,
		nas.Name,
		nas.IPAddress,
		nas.Secret,
		nas.Vendor,
		nas.CoAPort,
		nas.Description,
		nas.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return ensureAffected(tag)
}

func (r *nasRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM nas_devices WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return ensureAffected(tag)
}

func (r *nasRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*model.NasDevice, error) {
	query := `SELECT ` + nasColumns + ` FROM nas_devices WHERE tenant_id = $1 ORDER BY name ASC`
	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	devices := make([]*model.NasDevice, 0, 8)
	for rows.Next() {
		item, err := scanNasDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return devices, nil
}

func scanNasDevice(src scanTarget) (*model.NasDevice, error) {
	nas := &model.NasDevice{}
	err := src.Scan(
		&nas.ID,
		&nas.TenantID,
		&nas.Name,
		&nas.IPAddress,
		&nas.Secret,
		&nas.Vendor,
		&nas.CoAPort,
		&nas.Description,
		&nas.CreatedAt,
		&nas.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return nas, nil
}
