package timefmt

import (
	"errors"
	"testing"
	"time"
)

func TestToBaseSixty(t *testing.T) {
	cases := []struct {
		in       int64
		carry    int64
		leftover int64
	}{
		{45, 0, 45},
		{59, 0, 59},
		{60, 1, 0},
		{125, 2, 5},
		{3600, 60, 0},
	}
	for _, c := range cases {
		carry, left := ToBaseSixty(c.in)
		if carry != c.carry || left != c.leftover {
			t.Fatalf("ToBaseSixty(%d) = (%d,%d), want (%d,%d)", c.in, carry, left, c.carry, c.leftover)
		}
	}
}

func TestToDays(t *testing.T) {
	if d, h := ToDays(20); d != 0 || h != 20 {
		t.Fatalf("ToDays(20) = (%d,%d), want (0,20)", d, h)
	}
	if d, h := ToDays(50); d != 2 || h != 2 {
		t.Fatalf("ToDays(50) = (%d,%d), want (2,2)", d, h)
	}
	if d, h := ToDays(24); d != 1 || h != 0 {
		t.Fatalf("ToDays(24) = (%d,%d), want (1,0)", d, h)
	}
}

func TestAverageDuration(t *testing.T) {
	cases := []struct {
		name   string
		deltas []int64
		want   string
	}{
		{"single zero", []int64{0}, "0 days, 0 hours, 0 min, 0s."},
		{"single sample", []int64{130}, "0 days, 0 hours, 2 min, 10s."},
		{"two samples", []int64{0, 600}, "0 days, 0 hours, 5 min, 0s."},
		{"multi day", []int64{2*86400 + 3*3600 + 4*60 + 5}, "2 days, 3 hours, 4 min, 5s."},
		{"three samples", []int64{24, 6677, 34}, "0 days, 0 hours, 37 min, 25s."},
		{"half second carries into minutes", []int64{0, 119}, "0 days, 0 hours, 1 min, 0s."},
		{"half second carries into hours", []int64{0, 7199}, "0 days, 1 hours, 0 min, 0s."},
		{"fraction rounds down", []int64{1, 2, 2}, "0 days, 0 hours, 0 min, 2s."},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := AverageDuration(c.deltas)
			if err != nil {
				t.Fatalf("AverageDuration: %v", err)
			}
			if got != c.want {
				t.Fatalf("AverageDuration(%v) = %q, want %q", c.deltas, got, c.want)
			}
		})
	}
}

func TestAverageDurationEmpty(t *testing.T) {
	if _, err := AverageDuration(nil); !errors.Is(err, ErrNoDeltas) {
		t.Fatalf("expected ErrNoDeltas, got %v", err)
	}
}

func TestElapsedSecondsClockSkew(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	if got := ElapsedSeconds(now.Add(time.Minute), now); got != 0 {
		t.Fatalf("negative elapsed should floor at 0, got %d", got)
	}
	if got := ElapsedSeconds(now.Add(-600*time.Second), now); got != 600 {
		t.Fatalf("ElapsedSeconds = %d, want 600", got)
	}
	if got := ElapsedSeconds(time.Time{}, now); got != 0 {
		t.Fatalf("zero last turn should yield 0, got %d", got)
	}
}

func TestSinceText(t *testing.T) {
	now := time.Date(2024, 1, 3, 13, 2, 3, 0, time.UTC)
	last := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	want := "It's been 2 days 1 hours 2 minutes 3 seconds since the last turn."
	if got := SinceText(last, now); got != want {
		t.Fatalf("SinceText = %q, want %q", got, want)
	}
}
