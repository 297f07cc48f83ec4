package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shivang-goliyan/CloudRadius-sub000/internal/model"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/repository"
)

type subscriberRepository struct {
	pool *pgxpool.Pool
}

func NewSubscriberRepository(pool *pgxpool.Pool) repository.SubscriberRepository {
	return &subscriberRepository{pool: pool}
}

var _ repository.SubscriberRepository = (*subscriberRepository)(nil)

const subscriberColumns = `
	id,
	tenant_id,
	username,
	password,
	status,
	plan_id,
	nas_id,
	mac_address,
	static_ip,
	balance,
	auto_renew,
	expires_at,
	last_renewed_at,
	full_name,
	phone,
	created_at,
	updated_at
`

func (r *subscriberRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Subscriber, error) {
	query := `SELECT ` + subscriberColumns + ` FROM subscribers WHERE id = $1`
	sub, err := scanSubscriber(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (r *subscriberRepository) FindByUsername(ctx context.Context, tenantID uuid.UUID, username string) (*model.Subscriber, error) {
	query := `SELECT ` + subscriberColumns + ` FROM subscribers WHERE tenant_id = $1 AND username = $2`
	sub, err := scanSubscriber(r.pool.QueryRow(ctx, query, tenantID, username))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (r *subscriberRepository) Create(ctx context.Context, sub *model.Subscriber) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}

	now := time.Now().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = sub.CreatedAt
	}

	query := `
		INSERT INTO subscribers (
			id, tenant_id, username, password, status,
			plan_id, nas_id, mac_address, static_ip,
			balance, auto_renew, expires_at, last_renewed_at,
			full_name, phone, created_at, updated_at
		)
		VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13,
			$14, $15, $16, $17
		)
	`

	_, err := r.pool.Exec(
		ctx,
		query,
		sub.ID,
		sub.TenantID,
		sub.Username,
		sub.Password,
		sub.Status,
		sub.PlanID,
		sub.NasID,
		sub.MacAddress,
		sub.StaticIP,
		sub.Balance,
		sub.AutoRenew,
		sub.ExpiresAt,
		sub.LastRenewedAt,
		sub.FullName,
		sub.Phone,
		sub.CreatedAt,
		sub.UpdatedAt,
	)
	return err
}

func (r *subscriberRepository) Update(ctx context.Context, sub *model.Subscriber) error {
	sub.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE subscribers
		SET username = $2,
			password = $3,
			status = $4,
			plan_id = $5,
			nas_id = $6,
			mac_address = $7,
			static_ip = $8,
			balance = $9,
			auto_renew = $10,
			expires_at = $11,
			last_renewed_at = $12,
			full_name = $13,
			phone = $14,
			updated_at = $15
		WHERE id = $1
	`

	tag, err := r.pool.Exec(
		ctx,
		query,
		sub.ID,
		sub.Username,
		sub.Password,
		sub.Status,
		sub.PlanID,
		sub.NasID,
		sub.MacAddress,
		sub.StaticIP,
		sub.Balance,
		sub.AutoRenew,
		sub.ExpiresAt,
		sub.LastRenewedAt,
		sub.FullName,
		sub.Phone,
		sub.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return ensureAffected(tag)
}

func (r *subscriberRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.SubscriberStatus) error {
	query := `UPDATE subscribers SET status = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, status)
	if err != nil {
		return err
	}
	return ensureAffected(tag)
}

func (r *subscriberRepository) List(ctx context.Context, filter repository.SubscriberListFilter) ([]*model.Subscriber, error) {
	limit, offset := normalizePagination(filter.Pagination)

	args := make([]any, 0, 6)
	conditions := buildSubscriberListConditions(filter, &args)

	var builder strings.Builder
	builder.WriteString("SELECT ")
	builder.WriteString(subscriberColumns)
	builder.WriteString(" FROM subscribers")

	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}

	args = append(args, limit, offset)
	_, _ = fmt.Fprintf(&builder, " ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, builder.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := make([]*model.Subscriber, 0, limit)
	for rows.Next() {
		item, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return subs, nil
}

func (r *subscriberRepository) Count(ctx context.Context, filter repository.SubscriberListFilter) (int64, error) {
	args := make([]any, 0, 4)
	conditions := buildSubscriberListConditions(filter, &args)

	var builder strings.Builder
	builder.WriteString("SELECT COUNT(*) FROM subscribers")
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}

	var total int64
	if err := r.pool.QueryRow(ctx, builder.String(), args...).Scan(&total); err != nil {
		return 0, err
	}

	return total, nil
}

func (r *subscriberRepository) ListExpiring(ctx context.Context, tenantID uuid.UUID, day time.Time) ([]*model.Subscriber, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	query := `
		SELECT ` + subscriberColumns + `
		  FROM subscribers
		 WHERE tenant_id = $1
		   AND status = $2
		   AND expires_at >= $3
		   AND expires_at < $4
		 ORDER BY expires_at ASC
	`
	return r.queryMany(ctx, query, tenantID, model.SubscriberStatusActive, dayStart, dayEnd)
}

func (r *subscriberRepository) ListPastGrace(ctx context.Context, tenantID uuid.UUID, cutoff time.Time) ([]*model.Subscriber, error) {
	query := `
		SELECT ` + subscriberColumns + `
		  FROM subscribers
		 WHERE tenant_id = $1
		   AND status = $2
		   AND expires_at IS NOT NULL
		   AND expires_at <= $3
		 ORDER BY expires_at ASC
	`
	return r.queryMany(ctx, query, tenantID, model.SubscriberStatusActive, cutoff)
}

func (r *subscriberRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM subscribers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return ensureAffected(tag)
}

func (r *subscriberRepository) queryMany(ctx context.Context, query string, args ...any) ([]*model.Subscriber, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := make([]*model.Subscriber, 0, 32)
	for rows.Next() {
		item, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return subs, nil
}

func buildSubscriberListConditions(filter repository.SubscriberListFilter, args *[]any) []string {
	conditions := make([]string, 0, 4)

	if filter.TenantID != nil {
		*args = append(*args, *filter.TenantID)
		conditions = append(conditions, fmt.Sprintf("tenant_id = $%d", len(*args)))
	}
	if filter.Status != nil {
		*args = append(*args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(*args)))
	}
	if filter.PlanID != nil {
		*args = append(*args, *filter.PlanID)
		conditions = append(conditions, fmt.Sprintf("plan_id = $%d", len(*args)))
	}
	if filter.Keyword != nil {
		keyword := "%" + strings.TrimSpace(*filter.Keyword) + "%"
		*args = append(*args, keyword)
		argPos := len(*args)
		conditions = append(conditions, fmt.Sprintf("(username ILIKE $%d OR full_name ILIKE $%d OR phone ILIKE $%d)", argPos, argPos, argPos))
	}

	return conditions
}

func scanSubscriber(src scanTarget) (*model.Subscriber, error) {
	sub := &model.Subscriber{}
	err := src.Scan(
		&sub.ID,
		&sub.TenantID,
		&sub.Username,
		&sub.Password,
		&sub.Status,
		&sub.PlanID,
		&sub.NasID,
		&sub.MacAddress,
		&sub.StaticIP,
		&sub.Balance,
		&sub.AutoRenew,
		&sub.ExpiresAt,
		&sub.LastRenewedAt,
		&sub.FullName,
		&sub.Phone,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return sub, nil
}
