// Package stats derives round consensus, tracker comparisons and accuracy
// leaderboards. Everything here is a pure function over values it is handed.
package stats

import (
	"math"
	"strconv"
	"strings"
)

// parseNumber reads a vote or estimate token as a finite number.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// roundTo rounds half up (toward +Inf) at the given number of decimals.
func roundTo(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Floor(v*p+0.5) / p
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func ptr(v float64) *float64 {
	return &v
}
