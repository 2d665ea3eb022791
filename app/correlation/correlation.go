package correlation

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// minSamples is the smallest number of aligned days a coefficient is
// computed from. Below it the result is not meaningful.
const minSamples = 3

const (
	StrengthStrong     = "strong"
	StrengthModerate   = "moderate"
	StrengthWeak       = "weak"
	StrengthNegligible = "negligible"
)

// DailyPoint is one day's value of a series, keyed by the UTC date.
type DailyPoint struct {
	Date  time.Time
	Value float64
}

// Result is the outcome of correlating two daily series.
type Result struct {
	Coefficient float64
	Samples     int
	Strength    string
	Valid       bool
}

// Shift marks a day whose sentiment moved sharply against the
// previous day.
type Shift struct {
	Date      time.Time
	Delta     float64
	Direction string // "up" or "down"
}

// Pearson aligns the two series on shared dates and computes the
// Pearson coefficient over the intersection. Fewer than minSamples
// shared days, or a flat series, yields an invalid result.
func Pearson(sentiment, prices []DailyPoint) Result {
	xs, ys := align(sentiment, prices)
	if len(xs) < minSamples {
		return Result{Samples: len(xs)}
	}

	r := stat.Correlation(xs, ys, nil)
	if math.IsNaN(r) {
		return Result{Samples: len(xs)}
	}

	return Result{
		Coefficient: r,
		Samples:     len(xs),
		Strength:    StrengthFor(r),
		Valid:       true,
	}
}

// Lagged correlates sentiment against prices shifted lagDays into the
// future, asking whether today's mood precedes tomorrow's move.
func Lagged(sentiment, prices []DailyPoint, lagDays int) Result {
	shifted := make([]DailyPoint, 0, len(prices))
	for _, p := range prices {
		shifted = append(shifted, DailyPoint{
			Date:  p.Date.AddDate(0, 0, -lagDays),
			Value: p.Value,
		})
	}
	return Pearson(sentiment, shifted)
}

// DetectShifts returns the days whose average sentiment changed by at
// least threshold relative to the preceding day.
func DetectShifts(sentiment []DailyPoint, threshold float64) []Shift {
	ordered := make([]DailyPoint, len(sentiment))
	copy(ordered, sentiment)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Date.Before(ordered[j].Date) })

	var shifts []Shift
	for i := 1; i < len(ordered); i++ {
		delta := ordered[i].Value - ordered[i-1].Value
		if math.Abs(delta) < threshold {
			continue
		}
		direction := "up"
		if delta < 0 {
			direction = "down"
		}
		shifts = append(shifts, Shift{Date: ordered[i].Date, Delta: delta, Direction: direction})
	}
	return shifts
}

// StrengthFor maps a coefficient magnitude to its verbal strength.
func StrengthFor(r float64) string {
	switch abs := math.Abs(r); {
	case abs >= 0.7:
		return StrengthStrong
	case abs >= 0.4:
		return StrengthModerate
	case abs >= 0.2:
		return StrengthWeak
	default:
		return StrengthNegligible
	}
}

// align intersects the two series on the calendar day and returns the
// paired values in date order.
func align(a, b []DailyPoint) ([]float64, []float64) {
	byDay := make(map[string]float64, len(b))
	for _, p := range b {
		byDay[dayKey(p.Date)] = p.Value
	}

	paired := make([]DailyPoint, 0, len(a))
	for _, p := range a {
		if _, ok := byDay[dayKey(p.Date)]; ok {
			paired = append(paired, p)
		}
	}
	sort.Slice(paired, func(i, j int) bool { return paired[i].Date.Before(paired[j].Date) })

	xs := make([]float64, 0, len(paired))
	ys := make([]float64, 0, len(paired))
	for _, p := range paired {
		xs = append(xs, p.Value)
		ys = append(ys, byDay[dayKey(p.Date)])
	}
	return xs, ys
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
