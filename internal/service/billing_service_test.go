package service

import (
	"testing"
	"time"

	"github.com/shivang-goliyan/CloudRadius-sub000/internal/model"
)

func TestNextExpiryHours(t *testing.T) {
	plan := &model.Plan{ValidityAmount: 6, ValidityUnit: model.ValidityHours}
	from := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	got := NextExpiry(plan, from)
	want := time.Date(2026, 8, 1, 16, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestNextExpiryDays(t *testing.T) {
	plan := &model.Plan{ValidityAmount: 7, ValidityUnit: model.ValidityDays}
	from := time.Date(2026, 8, 28, 23, 59, 59, 0, time.UTC)

	got := NextExpiry(plan, from)
	want := time.Date(2026, 9, 4, 23, 59, 59, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestNextExpiryMonthsUsesCalendarArithmetic(t *testing.T) {
	plan := &model.Plan{ValidityAmount: 1, ValidityUnit: model.ValidityMonths}

	// Jan 31 plus one month normalizes the way AddDate does, not a fixed
	// 30-day duration.
	from := time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC)
	got := NextExpiry(plan, from)
	want := from.AddDate(0, 1, 0)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestNextExpiryNormalizesToUTC(t *testing.T) {
	plan := &model.Plan{ValidityAmount: 1, ValidityUnit: model.ValidityDays}
	loc := time.FixedZone("UTC+5", 5*3600)
	from := time.Date(2026, 8, 1, 1, 0, 0, 0, loc)

	got := NextExpiry(plan, from)
	if got.Location() != time.UTC {
		t.Fatalf("expected UTC result, got %v", got.Location())
	}
	if !got.Equal(from.AddDate(0, 0, 1)) {
		t.Fatalf("expected same instant plus a day, got %v", got)
	}
}

func TestGraceCutoff(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	got := GraceCutoff(now, 3)
	want := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	// A subscriber expired just inside the window is not past grace yet.
	expiredAt := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)
	if !expiredAt.After(got) {
		t.Fatal("expiry inside the grace window should be after the cutoff")
	}
}

func TestGraceCutoffNegativeDaysClampsToZero(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	if got := GraceCutoff(now, -5); !got.Equal(now) {
		t.Fatalf("expected cutoff at now for negative grace, got %v", got)
	}
}
