package timefmt

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrNoDeltas is returned when an average is requested over an empty sequence.
var ErrNoDeltas = errors.New("no turn deltas to average")

// ToBaseSixty carries whole sixties out of n: seconds into minutes, minutes into hours.
func ToBaseSixty(n int64) (int64, int64) {
	if n > 59 {
		return n / 60, n % 60
	}
	return 0, n
}

// ToDays carries whole days out of an hour count.
func ToDays(hours int64) (int64, int64) {
	if hours > 23 {
		return hours / 24, hours % 24
	}
	return 0, hours
}

// Breakdown splits a non-negative second count into days, hours, minutes and seconds.
func Breakdown(seconds int64) (days, hours, minutes, secs int64) {
	if seconds < 0 {
		seconds = 0
	}
	minutes, secs = ToBaseSixty(seconds)
	hours, minutes = ToBaseSixty(minutes)
	days, hours = ToDays(hours)
	return days, hours, minutes, secs
}

// Mean returns the arithmetic mean of deltas in seconds.
func Mean(deltas []int64) (float64, error) {
	if len(deltas) == 0 {
		return 0, ErrNoDeltas
	}
	var sum float64
	for _, d := range deltas {
		sum += float64(d)
	}
	return sum / float64(len(deltas)), nil
}

// AverageDuration renders the mean of deltas as "D days, H hours, M min, Ss.".
func AverageDuration(deltas []int64) (string, error) {
	mean, err := Mean(deltas)
	if err != nil {
		return "", err
	}
	days, hours, minutes, secs := Breakdown(int64(math.Round(mean)))
	return fmt.Sprintf("%d days, %d hours, %d min, %ds.", days, hours, minutes, secs), nil
}

// SinceText describes how long ago last was, relative to now.
func SinceText(last, now time.Time) string {
	elapsed := int64(now.Sub(last) / time.Second)
	days, hours, minutes, secs := Breakdown(elapsed)
	return fmt.Sprintf("It's been %d days %d hours %d minutes %d seconds since the last turn.", days, hours, minutes, secs)
}

// ElapsedSeconds returns whole seconds from last to now, floored at zero for clock skew.
func ElapsedSeconds(last, now time.Time) int64 {
	if last.IsZero() {
		return 0
	}
	d := int64(now.Sub(last) / time.Second)
	if d < 0 {
		return 0
	}
	return d
}
