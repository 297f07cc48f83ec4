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

type operatorRepository struct {
	pool *pgxpool.Pool
}

func NewOperatorRepository(pool *pgxpool.Pool) repository.OperatorRepository {
	return &operatorRepository{pool: pool}
}

var _ repository.OperatorRepository = (*operatorRepository)(nil)

func (r *operatorRepository) FindByUsername(ctx context.Context, username string) (*model.Operator, error) {
	query := `
		SELECT id, tenant_id, username, password_hash, role, created_at, updated_at
		  FROM operators
		 WHERE username = $1
	`
	op := &model.Operator{}
	err := r.pool.QueryRow(ctx, query, username).Scan(
		&op.ID,
		&op.TenantID,
		&op.Username,
		&op.PasswordHash,
		&op.Role,
		&op.CreatedAt,
		&op.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return op, nil
}

func (r *operatorRepository) Create(ctx context.Context, op *model.Operator) error {
	if op.ID == uuid.Nil {
		op.ID = uuid.New()
	}

	now := time.Now().UTC()
	if op.CreatedAt.IsZero() {
		op.CreatedAt = now
	}
	if op.UpdatedAt.IsZero() {
		op.UpdatedAt = op.CreatedAt
	}

	query := `
		INSERT INTO operators (id, tenant_id, username, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(
		ctx,
		query,
		op.ID,
		op.TenantID,
		op.Username,
		op.PasswordHash,
		op.Role,
		op.CreatedAt,
		op.UpdatedAt,
	)
	return err
}
