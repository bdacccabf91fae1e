package policy

import (
	"testing"
	"time"
)

func TestNeedsFreshProbe_NoPreviousScan(t *testing.T) {
	if !NeedsFreshProbe(nil, false, time.Now()) {
		t.Error("Expected fresh probe when no previous scan exists")
	}
}

func TestNeedsFreshProbe_ForceAlwaysWins(t *testing.T) {
	now := time.Now()
	recent := now.Add(-time.Minute)
	if !NeedsFreshProbe(&recent, true, now) {
		t.Error("Expected forced request to require a probe despite fresh cache")
	}
}

func TestNeedsFreshProbe_StalenessBoundary(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	exactlyStale := now.Add(-StalenessWindow)
	if !NeedsFreshProbe(&exactlyStale, false, now) {
		t.Error("Scan exactly 14 days old must force a fresh probe")
	}

	oneSecondYounger := now.Add(-StalenessWindow + time.Second)
	if NeedsFreshProbe(&oneSecondYounger, false, now) {
		t.Error("Scan one second inside the window must not force a probe")
	}

	older := now.Add(-15 * 24 * time.Hour)
	if !NeedsFreshProbe(&older, false, now) {
		t.Error("15-day-old scan must force a fresh probe")
	}
}

func TestNeedsFreshProbe_Idempotent(t *testing.T) {
	now := time.Now()
	prev := now.Add(-time.Hour)
	first := NeedsFreshProbe(&prev, false, now)
	for i := 0; i < 5; i++ {
		if NeedsFreshProbe(&prev, false, now) != first {
			t.Fatal("Repeated calls with identical inputs returned different results")
		}
	}
}
