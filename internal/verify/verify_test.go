package verify

import (
	"testing"
	"time"
)

func TestEntryFresh(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	maxAge := 30 * 24 * time.Hour

	fresh := Entry{Verified: true, LastChecked: now.Add(-10 * 24 * time.Hour)}
	if !fresh.Fresh(now, maxAge) {
		t.Error("expected entry within max-age to be fresh")
	}

	stale := Entry{Verified: true, LastChecked: now.Add(-40 * 24 * time.Hour)}
	if stale.Fresh(now, maxAge) {
		t.Error("expected entry past max-age to be stale")
	}

	unverified := Entry{Verified: false, LastChecked: now}
	if unverified.Fresh(now, maxAge) {
		t.Error("an unverified entry is never fresh")
	}
}

func TestFetchMethodFor(t *testing.T) {
	cases := []struct {
		name string
		r    Result
		want string
	}{
		{"plain", Result{Verified: true}, "verified"},
		{"corrected", Result{Verified: true, Corrected: true}, "corrected"},
		{"fallback", Result{Verified: true, Fallback: true}, "fallback"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := fetchMethodFor(tc.r); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}
