package cooldown

import (
	"testing"
	"time"
)

func TestHumanize(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "0 seconds"},
		{45, "45 seconds"},
		{44.5, "45 seconds"},
		{119.4, "119 seconds"},
		{90, "90 seconds"},
		{120, "2 minutes"},
		{150, "3 minutes"},
		{5400, "90 minutes"},
		{7199, "120 minutes"},
		{7200, "2 hours"},
		{86399, "24 hours"},
		{172800, "2 days"},
		{216000, "3 days"},
	}
	for _, tc := range cases {
		if got := Humanize(tc.in); got != tc.want {
			t.Fatalf("Humanize(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCheckBoundary(t *testing.T) {
	last := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	cd := 60 * time.Second

	v := Check(last.Add(cd-time.Second), last, cd)
	if v.Allowed {
		t.Fatalf("move at T+C-1 must be rejected")
	}
	if v.Wait() != "1 seconds" {
		t.Fatalf("wait = %q", v.Wait())
	}

	v = Check(last.Add(30*time.Second), last, cd)
	if v.Allowed || v.Wait() != "30 seconds" {
		t.Fatalf("unexpected verdict at T+30: %+v %q", v, v.Wait())
	}

	if v := Check(last.Add(cd), last, cd); !v.Allowed {
		t.Fatalf("move at T+C must be accepted")
	}
	if v := Check(last.Add(cd-500*time.Millisecond), last, cd); !v.Allowed {
		t.Fatalf("sub-second remainder must be accepted")
	}
}

func TestCheckDisabled(t *testing.T) {
	now := time.Now()
	if v := Check(now, now, 0); !v.Allowed {
		t.Fatalf("zero cooldown must allow")
	}
	if v := Check(now, time.Time{}, time.Hour); !v.Allowed {
		t.Fatalf("zero last move must allow")
	}
}
