package stats

import (
	"math"
	"sort"

	"github.com/thereayou/planning-poker/internal/models"
)

// LeaderboardEntry is one participant's accuracy against accepted estimates.
type LeaderboardEntry struct {
	Rank         int     `json:"rank"`
	Name         string  `json:"name"`
	TotalVotes   int     `json:"totalVotes"`
	ExactMatches int     `json:"exactMatches"`
	WithinOne    int     `json:"withinOne"`
	AccuracyPct  int     `json:"accuracyPct"`
	WithinOnePct int     `json:"withinOnePct"`
	AvgDiff      float64 `json:"avgDiff"`
	Bias         float64 `json:"bias"`
}

type tally struct {
	total, exact, withinOne int
	signed, absolute        float64
}

// Leaderboard ranks participants by how often their numeric votes matched
// the accepted estimate. Rounds whose final value is not numeric and votes
// that are not numeric are ignored. Ranks follow standard competition
// ranking on accuracy: ties share a rank and the next rank skips ahead.
func Leaderboard(estimations []models.Estimation) []LeaderboardEntry {
	tallies := make(map[string]*tally)

	for _, e := range estimations {
		if e.Status != models.StatusAccepted || e.FinalEstimate == nil {
			continue
		}
		final, ok := parseNumber(*e.FinalEstimate)
		if !ok {
			continue
		}

		for _, v := range e.Votes {
			value, ok := parseNumber(v.Value)
			if !ok {
				continue
			}
			t := tallies[v.Participant]
			if t == nil {
				t = &tally{}
				tallies[v.Participant] = t
			}

			diff := value - final
			t.total++
			t.signed += diff
			t.absolute += math.Abs(diff)
			if diff == 0 {
				t.exact++
			}
			if math.Abs(diff) <= 1 {
				t.withinOne++
			}
		}
	}

	entries := make([]LeaderboardEntry, 0, len(tallies))
	for name, t := range tallies {
		n := float64(t.total)
		entries = append(entries, LeaderboardEntry{
			Name:         name,
			TotalVotes:   t.total,
			ExactMatches: t.exact,
			WithinOne:    t.withinOne,
			AccuracyPct:  int(roundTo(float64(t.exact)/n*100, 0)),
			WithinOnePct: int(roundTo(float64(t.withinOne)/n*100, 0)),
			AvgDiff:      roundTo(t.absolute/n, 1),
			Bias:         roundTo(t.signed/n, 1),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.AccuracyPct != b.AccuracyPct {
			return a.AccuracyPct > b.AccuracyPct
		}
		if a.AvgDiff != b.AvgDiff {
			return a.AvgDiff < b.AvgDiff
		}
		return a.Name < b.Name
	})

	for i := range entries {
		if i > 0 && entries[i].AccuracyPct == entries[i-1].AccuracyPct {
			entries[i].Rank = entries[i-1].Rank
		} else {
			entries[i].Rank = i + 1
		}
	}

	return entries
}
