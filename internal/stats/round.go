package stats

import "sort"

// RoundStats summarises the votes of a revealed round.
type RoundStats struct {
	Average   *float64 `json:"average,omitempty"`
	Median    *float64 `json:"median,omitempty"`
	Consensus bool     `json:"consensus"`
}

// ComputeRoundStats takes the raw vote tokens of a round. Average and median
// cover the numeric tokens only; consensus compares raw tokens, so a round of
// identical non-numeric tokens is still unanimous.
func ComputeRoundStats(values []string) RoundStats {
	var result RoundStats

	numeric := make([]float64, 0, len(values))
	for _, v := range values {
		if n, ok := parseNumber(v); ok {
			numeric = append(numeric, n)
		}
	}

	if len(numeric) > 0 {
		result.Average = ptr(roundTo(mean(numeric), 1))
		result.Median = ptr(median(numeric))
	}

	result.Consensus = len(values) > 0
	for _, v := range values {
		if v != values[0] {
			result.Consensus = false
			break
		}
	}

	return result
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return roundTo((sorted[mid-1]+sorted[mid])/2, 1)
}
