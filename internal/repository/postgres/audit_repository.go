package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shivang-goliyan/CloudRadius-sub000/internal/model"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/repository"
)

type auditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) repository.AuditRepository {
	return &auditRepository{pool: pool}
}

var _ repository.AuditRepository = (*auditRepository)(nil)

func (r *auditRepository) Create(ctx context.Context, entry *model.AuditLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	oldValue, err := encodeJSONMap(entry.OldValue)
	if err != nil {
		return err
	}
	newValue, err := encodeJSONMap(entry.NewValue)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO audit_logs (
			id, tenant_id, operator_id, action,
			resource_type, resource_id, old_value, new_value, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.pool.Exec(
		ctx,
		query,
		entry.ID,
		entry.TenantID,
		entry.OperatorID,
		entry.Action,
		entry.ResourceType,
		entry.ResourceID,
		oldValue,
		newValue,
		entry.CreatedAt,
	)
	return err
}

func (r *auditRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID, page repository.Pagination) ([]*model.AuditLog, error) {
	limit, offset := normalizePagination(page)

	query := `
		SELECT id, tenant_id, operator_id, action,
		       resource_type, resource_id, old_value, new_value, created_at
		  FROM audit_logs
		 WHERE tenant_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]*model.AuditLog, 0, limit)
	for rows.Next() {
		entry := &model.AuditLog{}
		var oldRaw, newRaw []byte
		if err := rows.Scan(
			&entry.ID,
			&entry.TenantID,
			&entry.OperatorID,
			&entry.Action,
			&entry.ResourceType,
			&entry.ResourceID,
			&oldRaw,
			&newRaw,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}

		if entry.OldValue, err = decodeJSONMap(oldRaw); err != nil {
			return nil, err
		}
		if entry.NewValue, err = decodeJSONMap(newRaw); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}
