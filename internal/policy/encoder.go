// Package policy turns plan records into the ordered attribute sets the
// policy store serves to the NAS. Encoding is pure and deterministic; a
// well-formed plan never fails to encode, absent optional fields simply
// omit their attribute.
package policy

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shivang-goliyan/CloudRadius-sub000/internal/aaa"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/model"
)

// Encoder produces the group policy for one vendor's rate-limit grammar.
type Encoder interface {
	// Encode returns the full attribute set for a plan's group.
	Encode(plan *model.Plan) aaa.GroupPolicy
	// RateLimit returns just the rate-limit string, used for CoA pushes.
	RateLimit(plan *model.Plan) string
}

// ForVendor selects the encoder for a NAS vendor tag. Unknown vendors get
// the mikrotik grammar, which most compatible firmwares accept.
func ForVendor(vendor string) Encoder {
	switch strings.ToLower(strings.TrimSpace(vendor)) {
	case "", "mikrotik", "routeros":
		return MikrotikEncoder{}
	default:
		return MikrotikEncoder{}
	}
}

// MikrotikEncoder renders the RouterOS rate-limit grammar:
//
//	rx/tx [rx-burst/tx-burst [rx-thr/tx-thr [time/time [priority [rx-min/tx-min]]]]]
//
// where rx is the subscriber's upload seen from the NAS. The queue priority
// rides inside the rate string (position five); lower value wins, matching
// the plan's 1..8 ordering. The FUP override occupies the trailing min-rate
// segment, which RouterOS applies once the burst budget is spent.
type MikrotikEncoder struct{}

var _ Encoder = MikrotikEncoder{}

const defaultBurstTimeSec = 8

func (MikrotikEncoder) Encode(plan *model.Plan) aaa.GroupPolicy {
	out := aaa.GroupPolicy{}
	if plan == nil {
		return out
	}

	out.ReplyAttrs = append(out.ReplyAttrs, aaa.Attribute{
		Name:  aaa.AttrMikrotikRateLimit,
		Op:    aaa.OpOverwrite,
		Value: MikrotikEncoder{}.RateLimit(plan),
	})

	// No Session-Timeout: sessions run until expiry or disconnect, never a
	// fixed wall-clock budget.

	if plan.SharedDevices != nil && *plan.SharedDevices > 0 {
		out.CheckAttrs = append(out.CheckAttrs, aaa.Attribute{
			Name:  aaa.AttrSimultaneousUse,
			Op:    aaa.OpOverwrite,
			Value: strconv.Itoa(*plan.SharedDevices),
		})
	}

	if plan.TimeWindow != nil && strings.TrimSpace(*plan.TimeWindow) != "" {
		out.CheckAttrs = append(out.CheckAttrs, aaa.Attribute{
			Name:  aaa.AttrLoginTime,
			Op:    aaa.OpOverwrite,
			Value: strings.TrimSpace(*plan.TimeWindow),
		})
	}

	return out
}

func (MikrotikEncoder) RateLimit(plan *model.Plan) string {
	unit := unitSuffix(plan.SpeedUnit)
	base := pair(plan.UploadSpeed, plan.DownloadSpeed, unit)

	hasBurst := plan.BurstUpload != nil && plan.BurstDownload != nil
	hasFup := plan.FupUpload != nil && plan.FupDownload != nil
	hasPriority := plan.Priority != 0

	// Priority lives in the fifth positional segment, so a plan that sets
	// it needs the full grammar even without burst or FUP overrides.
	if !hasBurst && !hasFup && !hasPriority {
		return base
	}

	// Positional grammar: every segment before the last used one must be
	// present, defaulting to the base rate where the plan is silent.
	burstUp, burstDown := plan.UploadSpeed, plan.DownloadSpeed
	if hasBurst {
		burstUp, burstDown = *plan.BurstUpload, *plan.BurstDownload
	}

	thrUp, thrDown := plan.UploadSpeed, plan.DownloadSpeed
	if plan.BurstThresholdUp != nil {
		thrUp = *plan.BurstThresholdUp
	}
	if plan.BurstThresholdDown != nil {
		thrDown = *plan.BurstThresholdDown
	}

	burstTime := defaultBurstTimeSec
	if plan.BurstTimeSec != nil && *plan.BurstTimeSec > 0 {
		burstTime = *plan.BurstTimeSec
	}

	segments := []string{
		base,
		pair(burstUp, burstDown, unit),
		pair(thrUp, thrDown, unit),
		fmt.Sprintf("%d/%d", burstTime, burstTime),
		strconv.Itoa(clampPriority(plan.Priority)),
	}

	if hasFup {
		segments = append(segments, pair(*plan.FupUpload, *plan.FupDownload, unit))
	}

	return strings.Join(segments, " ")
}

func pair(up, down int, unit string) string {
	return fmt.Sprintf("%d%s/%d%s", up, unit, down, unit)
}

func unitSuffix(unit model.SpeedUnit) string {
	switch unit {
	case model.SpeedUnitKbps:
		return "k"
	case model.SpeedUnitMbps:
		return "M"
	default:
		return "M"
	}
}

func clampPriority(priority int) int {
	if priority < 1 {
		return 8
	}
	if priority > 8 {
		return 8
	}
	return priority
}
