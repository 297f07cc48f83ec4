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

type planRepository struct {
	pool *pgxpool.Pool
}

func NewPlanRepository(pool *pgxpool.Pool) repository.PlanRepository {
	return &planRepository{pool: pool}
}

var _ repository.PlanRepository = (*planRepository)(nil)

const planColumns = `
	id,
	tenant_id,
	name,
	download_speed,
	upload_speed,
	speed_unit,
	fup_download,
	fup_upload,
	burst_download,
	burst_upload,
	burst_threshold_down,
	burst_threshold_up,
	burst_time_sec,
	time_window,
	shared_devices,
	priority,
	validity_amount,
	validity_unit,
	price,
	created_at,
	updated_at
`

func (r *planRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans WHERE id = $1`
	plan, err := scanPlan(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func (r *planRepository) Create(ctx context.Context, plan *model.Plan) error {
	if plan.ID == uuid.Nil {
		plan.ID = uuid.New()
	}

	now := time.Now().UTC()
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = now
	}
	if plan.UpdatedAt.IsZero() {
		plan.UpdatedAt = plan.CreatedAt
	}

	query := `
		INSERT INTO plans (
			id, tenant_id, name,
			download_speed, upload_speed, speed_unit,
			fup_download, fup_upload,
			burst_download, burst_upload,
			burst_threshold_down, burst_threshold_up, burst_time_sec,
			time_window, shared_devices, priority,
			validity_amount, validity_unit, price,
			created_at, updated_at
		)
		VALUES (
			$1, $2, $3,
			$4, $5, $6,
			$7, $8,
			$9, $10,
			$11, $12, $13,
			$14, $15, $16,
			$17, $18, $19,
			$20, $21
		)
	`

	_, err := r.pool.Exec(
		ctx,
		query,
		plan.ID,
		plan.TenantID,
		plan.Name,
		plan.DownloadSpeed,
		plan.UploadSpeed,
		plan.SpeedUnit,
		plan.FupDownload,
		plan.FupUpload,
		plan.BurstDownload,
		plan.BurstUpload,
		plan.BurstThresholdDown,
		plan.BurstThresholdUp,
		plan.BurstTimeSec,
		plan.TimeWindow,
		plan.SharedDevices,
		plan.Priority,
		plan.ValidityAmount,
		plan.ValidityUnit,
		plan.Price,
		plan.CreatedAt,
		plan.UpdatedAt,
	)
	return err
}

func (r *planRepository) Update(ctx context.Context, plan *model.Plan) error {
	plan.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE plans
		SET name = $2,
			download_speed = $3,
			upload_speed = $4,
			speed_unit = $5,
			fup_download = $6,
			fup_upload = $7,
			burst_download = $8,
			burst_upload = $9,
			burst_threshold_down = $10,
			burst_threshold_up = $11,
			burst_time_sec = $12,
			time_window = $13,
			shared_devices = $14,
			priority = $15,
			validity_amount = $16,
			validity_unit = $17,
			price = $18,
			updated_at = $19
		WHERE id = $1
	`

	tag, err := r.pool.Exec(
		ctx,
		query,
		plan.ID,
		plan.Name,
		plan.DownloadSpeed,
		plan.UploadSpeed,
		plan.SpeedUnit,
		plan.FupDownload,
		plan.FupUpload,
		plan.BurstDownload,
		plan.BurstUpload,
		plan.BurstThresholdDown,
		plan.BurstThresholdUp,
		plan.BurstTimeSec,
		plan.TimeWindow,
		plan.SharedDevices,
		plan.Priority,
		plan.ValidityAmount,
		plan.ValidityUnit,
		plan.Price,
		plan.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return ensureAffected(tag)
}

func (r *planRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM plans WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return ensureAffected(tag)
}

func (r *planRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*model.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans WHERE tenant_id = $1 ORDER BY name ASC`
	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	plans := make([]*model.Plan, 0, 16)
	for rows.Next() {
		item, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return plans, nil
}

func scanPlan(src scanTarget) (*model.Plan, error) {
	plan := &model.Plan{}
	err := src.Scan(
		&plan.ID,
		&plan.TenantID,
		&plan.Name,
		&plan.DownloadSpeed,
		&plan.UploadSpeed,
		&plan.SpeedUnit,
		&plan.FupDownload,
		&plan.FupUpload,
		&plan.BurstDownload,
		&plan.BurstUpload,
		&plan.BurstThresholdDown,
		&plan.BurstThresholdUp,
		&plan.BurstTimeSec,
		&plan.TimeWindow,
		&plan.SharedDevices,
		&plan.Priority,
		&plan.ValidityAmount,
		&plan.ValidityUnit,
		&plan.Price,
		&plan.CreatedAt,
		&plan.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return plan, nil
}
