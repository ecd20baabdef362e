package models

import (
	"testing"
	"time"
)

func TestEffectiveSortTimePrefersValidExif(t *testing.T) {
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	exif := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	create := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	r := &MediaRecord{ExifTimestamp: &exif, CreateTime: &create}
	got := r.EffectiveSortTime(now)
	if got == nil || !got.Equal(exif) {
		t.Fatalf("expected exif timestamp, got %v", got)
	}
}

func TestEffectiveSortTimeRejectsImplausibleExifYear(t *testing.T) {
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	badExif := time.Date(1850, 1, 1, 0, 0, 0, 0, time.UTC)
	create := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	r := &MediaRecord{ExifTimestamp: &badExif, CreateTime: &create}
	got := r.EffectiveSortTime(now)
	if got == nil || !got.Equal(create) {
		t.Fatalf("expected fallback to create time, got %v", got)
	}
}

func TestEffectiveSortTimeRejectsFutureCreateTime(t *testing.T) {
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	future := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	modify := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	r := &MediaRecord{CreateTime: &future, ModifyTime: &modify}
	got := r.EffectiveSortTime(now)
	if got == nil || !got.Equal(modify) {
		t.Fatalf("expected fallback to modify time, got %v", got)
	}
}

func TestEffectiveSortTimeNilWhenAllUnset(t *testing.T) {
	r := &MediaRecord{}
	if got := r.EffectiveSortTime(time.Now()); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestScanPhaseScanning(t *testing.T) {
	active := []ScanPhase{PhaseCollecting, PhaseCounting, PhaseProcessing, PhaseWriting, PhaseDeleting}
	for _, p := range active {
		if !p.Scanning() {
			t.Errorf("%s should report Scanning() == true", p)
		}
	}

	inactive := []ScanPhase{PhaseIdle, PhaseCompleted, PhaseError, PhaseCancelled}
	for _, p := range inactive {
		if p.Scanning() {
			t.Errorf("%s should report Scanning() == false", p)
		}
	}
}
