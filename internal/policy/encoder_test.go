package policy

import (
	"testing"

	"github.com/shivang-goliyan/CloudRadius-sub000/internal/aaa"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/model"
)

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func TestRateLimitBaseOnly(t *testing.T) {
	plan := &model.Plan{
		DownloadSpeed: 50,
		UploadSpeed:   10,
		SpeedUnit:     model.SpeedUnitMbps,
	}

	got := MikrotikEncoder{}.RateLimit(plan)
	if got != "10M/50M" {
		t.Fatalf("expected 10M/50M, got %q", got)
	}
}

func TestRateLimitKilobitUnit(t *testing.T) {
	plan := &model.Plan{
		DownloadSpeed: 512,
		UploadSpeed:   256,
		SpeedUnit:     model.SpeedUnitKbps,
	}

	got := MikrotikEncoder{}.RateLimit(plan)
	if got != "256k/512k" {
		t.Fatalf("expected 256k/512k, got %q", got)
	}
}

func TestRateLimitWithBurst(t *testing.T) {
	plan := &model.Plan{
		DownloadSpeed:      50,
		UploadSpeed:        10,
		SpeedUnit:          model.SpeedUnitMbps,
		BurstDownload:      intPtr(100),
		BurstUpload:        intPtr(20),
		BurstThresholdDown: intPtr(40),
		BurstThresholdUp:   intPtr(8),
		BurstTimeSec:       intPtr(16),
		Priority:           4,
	}

	got := MikrotikEncoder{}.RateLimit(plan)
	want := "10M/50M 20M/100M 8M/40M 16/16 4"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestRateLimitBurstDefaultsThresholdAndTime(t *testing.T) {
	plan := &model.Plan{
		DownloadSpeed: 50,
		UploadSpeed:   10,
		SpeedUnit:     model.SpeedUnitMbps,
		BurstDownload: intPtr(100),
		BurstUpload:   intPtr(20),
		Priority:      1,
	}

	got := MikrotikEncoder{}.RateLimit(plan)
	want := "10M/50M 20M/100M 10M/50M 8/8 1"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestRateLimitFupFillsLeadingSegments(t *testing.T) {
	// FUP without burst still needs the full positional grammar, so the
	// burst segments repeat the base rate.
	plan := &model.Plan{
		DownloadSpeed: 50,
		UploadSpeed:   10,
		SpeedUnit:     model.SpeedUnitMbps,
		FupDownload:   intPtr(5),
		FupUpload:     intPtr(2),
		Priority:      8,
	}

	got := MikrotikEncoder{}.RateLimit(plan)
	want := "10M/50M 10M/50M 10M/50M 8/8 8 2M/5M"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestRateLimitPriorityWithoutBurstOrFup(t *testing.T) {
	// The queue priority occupies the fifth segment, so it must force the
	// full grammar even when burst and FUP are unset.
	for _, tc := range []struct {
		priority int
		want     string
	}{
		{1, "10M/50M 10M/50M 10M/50M 8/8 1"},
		{3, "10M/50M 10M/50M 10M/50M 8/8 3"},
		{8, "10M/50M 10M/50M 10M/50M 8/8 8"},
	} {
		plan := &model.Plan{
			DownloadSpeed: 50,
			UploadSpeed:   10,
			SpeedUnit:     model.SpeedUnitMbps,
			Priority:      tc.priority,
		}

		got := MikrotikEncoder{}.RateLimit(plan)
		if got != tc.want {
			t.Fatalf("priority %d: expected %q, got %q", tc.priority, tc.want, got)
		}
	}
}

func TestRateLimitPriorityClamped(t *testing.T) {
	for _, tc := range []struct {
		priority int
		want     string
	}{
		{0, "8"},
		{-3, "8"},
		{9, "8"},
		{1, "1"},
		{8, "8"},
	} {
		plan := &model.Plan{
			DownloadSpeed: 10,
			UploadSpeed:   10,
			SpeedUnit:     model.SpeedUnitMbps,
			BurstDownload: intPtr(20),
			BurstUpload:   intPtr(20),
			Priority:      tc.priority,
		}

		got := MikrotikEncoder{}.RateLimit(plan)
		want := "10M/10M 20M/20M 10M/10M 8/8 " + tc.want
		if got != want {
			t.Fatalf("priority %d: expected %q, got %q", tc.priority, want, got)
		}
	}
}

func TestEncodeGroupPolicy(t *testing.T) {
	plan := &model.Plan{
		DownloadSpeed: 50,
		UploadSpeed:   10,
		SpeedUnit:     model.SpeedUnitMbps,
		SharedDevices: intPtr(3),
		TimeWindow:    strPtr("Al0800-2300"),
	}

	got := MikrotikEncoder{}.Encode(plan)

	if len(got.ReplyAttrs) != 1 {
		t.Fatalf("expected one reply attribute, got %d", len(got.ReplyAttrs))
	}
	if got.ReplyAttrs[0].Name != aaa.AttrMikrotikRateLimit || got.ReplyAttrs[0].Value != "10M/50M" {
		t.Fatalf("unexpected rate-limit attribute: %+v", got.ReplyAttrs[0])
	}

	checks := map[string]string{}
	for _, attr := range got.CheckAttrs {
		if attr.Op != aaa.OpOverwrite {
			t.Fatalf("check attribute %s has op %q, expected %q", attr.Name, attr.Op, aaa.OpOverwrite)
		}
		checks[attr.Name] = attr.Value
	}
	if checks[aaa.AttrSimultaneousUse] != "3" {
		t.Fatalf("expected Simultaneous-Use 3, got %q", checks[aaa.AttrSimultaneousUse])
	}
	if checks[aaa.AttrLoginTime] != "Al0800-2300" {
		t.Fatalf("expected Login-Time window, got %q", checks[aaa.AttrLoginTime])
	}
}

func TestEncodeOmitsOptionalAttrs(t *testing.T) {
	plan := &model.Plan{
		DownloadSpeed: 10,
		UploadSpeed:   10,
		SpeedUnit:     model.SpeedUnitMbps,
	}

	got := MikrotikEncoder{}.Encode(plan)
	if len(got.CheckAttrs) != 0 {
		t.Fatalf("expected no check attributes, got %+v", got.CheckAttrs)
	}
}

func TestForVendorFallsBackToMikrotik(t *testing.T) {
	for _, vendor := range []string{"", "mikrotik", "RouterOS", "cisco", "unknown"} {
		if _, ok := ForVendor(vendor).(MikrotikEncoder); !ok {
			t.Fatalf("vendor %q: expected MikrotikEncoder", vendor)
		}
	}
}
