package provision

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Retry operations. The outbox stores the domain reference, not the row
// payload: replay re-reads current state and re-runs the sync, so a stale
// entry can never resurrect an old policy.
const (
	OpSubscriberSync   = "subscriber_sync"
	OpSubscriberRemove = "subscriber_remove"
	OpPlanSync         = "plan_sync"
	OpPlanRemove       = "plan_remove"
	OpNasSync          = "nas_sync"
	OpNasRemove        = "nas_remove"
)

// Retry is one pending re-sync. RefID names the domain row; for remove
// operations the RefKey keeps the namespaced name or IP, since the domain
// row is already gone.
type Retry struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	TenantID  uuid.UUID  `db:"tenant_id" json:"tenant_id"`
	Op        string     `db:"op" json:"op"`
	RefID     *uuid.UUID `db:"ref_id" json:"ref_id,omitempty"`
	RefKey    *string    `db:"ref_key" json:"ref_key,omitempty"`
	Attempts  int        `db:"attempts" json:"attempts"`
	LastError *string    `db:"last_error" json:"last_error,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// Outbox persists provisioning operations whose policy store write failed
// so the scheduler can replay them. One row per (tenant, op, reference);
// re-enqueueing an existing reference resets its error, not its identity.
type Outbox struct {
	pool *pgxpool.Pool
}

func NewOutbox(pool *pgxpool.Pool) *Outbox {
	return &Outbox{pool: pool}
}

func (o *Outbox) Enqueue(ctx context.Context, tenantID uuid.UUID, op string, refID *uuid.UUID, refKey *string, cause error) error {
	lastError := ""
	if cause != nil {
		lastError = cause.Error()
	}

	_, err := o.pool.Exec(
		ctx,
		`INSERT INTO provision_retries (id, tenant_id, op, ref_id, ref_key, attempts, last_error, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, 0, $6, NOW(), NOW())
		 ON CONFLICT (tenant_id, op, COALESCE(ref_id, '00000000-0000-0000-0000-000000000000'::uuid), COALESCE(ref_key, ''))
		 DO UPDATE SET last_error = EXCLUDED.last_error, updated_at = NOW()`,
		uuid.New(), tenantID, op, refID, refKey, lastError,
	)
	return err
}

// ListDue returns the oldest pending retries, capped at limit, skipping
// entries that have exhausted maxAttempts.
func (o *Outbox) ListDue(ctx context.Context, limit, maxAttempts int) ([]Retry, error) {
	rows, err := o.pool.Query(
		ctx,
		`SELECT id, tenant_id, op, ref_id, ref_key, attempts, last_error, created_at, updated_at
		   FROM provision_retries
		  WHERE attempts < $1
		  ORDER BY created_at ASC
		  LIMIT $2`,
		maxAttempts, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	retries := make([]Retry, 0, limit)
	for rows.Next() {
		var item Retry
		if err := rows.Scan(
			&item.ID,
			&item.TenantID,
			&item.Op,
			&item.RefID,
			&item.RefKey,
			&item.Attempts,
			&item.LastError,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, err
		}
		retries = append(retries, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return retries, nil
}

// MarkFailed bumps the attempt counter after an unsuccessful replay.
func (o *Outbox) MarkFailed(ctx context.Context, id uuid.UUID, cause error) error {
	lastError := ""
	if cause != nil {
		lastError = cause.Error()
	}

	_, err := o.pool.Exec(
		ctx,
		`UPDATE provision_retries
		    SET attempts = attempts + 1, last_error = $2, updated_at = NOW()
		  WHERE id = $1`,
		id, lastError,
	)
	return err
}

// Resolve deletes a retry after a successful replay (or when the domain
// row it referenced no longer exists).
func (o *Outbox) Resolve(ctx context.Context, id uuid.UUID) error {
	_, err := o.pool.Exec(ctx, `DELETE FROM provision_retries WHERE id = $1`, id)
	return err
}

// PendingCount reports the backlog size for the status endpoint.
func (o *Outbox) PendingCount(ctx context.Context) (int64, error) {
	var count int64
	if err := o.pool.QueryRow(ctx, `SELECT COUNT(*) FROM provision_retries`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
