package model

import (
	"time"

	"github.com/google/uuid"
)

type SpeedUnit string

const (
	SpeedUnitKbps SpeedUnit = "k"
	SpeedUnitMbps SpeedUnit = "m"
)

type ValidityUnit string

const (
	ValidityHours  ValidityUnit = "hours"
	ValidityDays   ValidityUnit = "days"
	ValidityMonths ValidityUnit = "months"
)

// Plan is a bandwidth package. Speeds are expressed in SpeedUnit; burst and
// FUP overrides share the plan's unit. Priority runs 1..8 where 1 is the
// highest precedence on the NAS queue.
type Plan struct {
	ID                 uuid.UUID    `db:"id" json:"id"`
	TenantID           uuid.UUID    `db:"tenant_id" json:"tenant_id"`
	Name               string       `db:"name" json:"name"`
	DownloadSpeed      int          `db:"download_speed" json:"download_speed"`
	UploadSpeed        int          `db:"upload_speed" json:"upload_speed"`
	SpeedUnit          SpeedUnit    `db:"speed_unit" json:"speed_unit"`
	FupDownload        *int         `db:"fup_download" json:"fup_download,omitempty"`
	FupUpload          *int         `db:"fup_upload" json:"fup_upload,omitempty"`
	BurstDownload      *int         `db:"burst_download" json:"burst_download,omitempty"`
	BurstUpload        *int         `db:"burst_upload" json:"burst_upload,omitempty"`
	BurstThresholdDown *int         `db:"burst_threshold_down" json:"burst_threshold_down,omitempty"`
	BurstThresholdUp   *int         `db:"burst_threshold_up" json:"burst_threshold_up,omitempty"`
	BurstTimeSec       *int         `db:"burst_time_sec" json:"burst_time_sec,omitempty"`
	TimeWindow         *string      `db:"time_window" json:"time_window,omitempty"`
	SharedDevices      *int         `db:"shared_devices" json:"shared_devices,omitempty"`
	Priority           int          `db:"priority" json:"priority"`
	ValidityAmount     int          `db:"validity_amount" json:"validity_amount"`
	ValidityUnit       ValidityUnit `db:"validity_unit" json:"validity_unit"`
	Price              int64        `db:"price" json:"price"`
	CreatedAt          time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time    `db:"updated_at" json:"updated_at"`
}
