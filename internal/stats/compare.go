package stats

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/thereayou/planning-poker/internal/models"
)

// Points is an external tracker point value as text. It encodes as a JSON
// number when numeric, as the raw string otherwise and as null when empty.
type Points string

func (p Points) MarshalJSON() ([]byte, error) {
	if p == "" {
		return []byte("null"), nil
	}
	if v, ok := parseNumber(string(p)); ok {
		return json.Marshal(v)
	}
	return json.Marshal(string(p))
}

// Comparison pairs an accepted estimate with the tracker's point value.
type Comparison struct {
	JiraKey         *string   `json:"jiraKey"`
	Title           string    `json:"title"`
	OurEstimate     *string   `json:"ourEstimate"`
	JiraStoryPoints Points    `json:"jiraStoryPoints"`
	Difference      *float64  `json:"difference"`
	EstimatedAt     time.Time `json:"estimatedAt"`

	ours, theirs float64
}

// ComparisonStats aggregates the comparable pairs of a comparison set.
type ComparisonStats struct {
	TotalCompared    int      `json:"totalCompared"`
	AvgDifference    float64  `json:"avgDifference"`
	AvgAbsDifference float64  `json:"avgAbsDifference"`
	Correlation      *float64 `json:"correlation"`
	ExactMatches     int      `json:"exactMatches"`
	OverEstimated    int      `json:"overEstimated"`
	UnderEstimated   int      `json:"underEstimated"`
}

// NewComparison builds the comparison of one estimation against points.
// Difference is set only when both sides are numeric.
func NewComparison(e models.Estimation, points string) Comparison {
	c := Comparison{
		JiraKey:         e.JiraKey,
		Title:           e.Title,
		OurEstimate:     e.FinalEstimate,
		JiraStoryPoints: Points(strings.TrimSpace(points)),
		EstimatedAt:     e.CreatedAt,
	}

	if e.FinalEstimate == nil {
		return c
	}
	ours, okOurs := parseNumber(*e.FinalEstimate)
	theirs, okTheirs := parseNumber(points)
	if okOurs && okTheirs {
		c.ours, c.theirs = ours, theirs
		c.Difference = ptr(roundTo(ours-theirs, 1))
	}
	return c
}

// CompareStored compares accepted estimations against the point value
// recorded when they were accepted, skipping rows without one.
func CompareStored(estimations []models.Estimation) []Comparison {
	comparisons := make([]Comparison, 0, len(estimations))
	for _, e := range estimations {
		if e.Status != models.StatusAccepted || e.JiraSP == nil || strings.TrimSpace(*e.JiraSP) == "" {
			continue
		}
		comparisons = append(comparisons, NewComparison(e, *e.JiraSP))
	}
	return comparisons
}

// CompareExternal compares accepted estimations carrying a tracker key
// against points looked up by upper-cased key. A missing or blank lookup
// falls back to the stored value.
func CompareExternal(estimations []models.Estimation, points map[string]string) []Comparison {
	comparisons := make([]Comparison, 0, len(estimations))
	for _, e := range estimations {
		if e.Status != models.StatusAccepted || e.JiraKey == nil || *e.JiraKey == "" {
			continue
		}
		value := strings.TrimSpace(points[strings.ToUpper(strings.TrimSpace(*e.JiraKey))])
		if value == "" && e.JiraSP != nil {
			value = *e.JiraSP
		}
		comparisons = append(comparisons, NewComparison(e, value))
	}
	return comparisons
}

// ComputeStats aggregates comparisons with a difference. It returns nil when
// nothing is comparable. Correlation needs at least three pairs and variance
// on both sides.
func ComputeStats(comparisons []Comparison) *ComparisonStats {
	paired := make([]Comparison, 0, len(comparisons))
	for _, c := range comparisons {
		if c.Difference != nil {
			paired = append(paired, c)
		}
	}
	if len(paired) == 0 {
		return nil
	}

	s := &ComparisonStats{TotalCompared: len(paired)}

	diffs := make([]float64, len(paired))
	absDiffs := make([]float64, len(paired))
	xs := make([]float64, len(paired))
	ys := make([]float64, len(paired))
	for i, c := range paired {
		d := *c.Difference
		diffs[i] = d
		absDiffs[i] = math.Abs(d)
		xs[i], ys[i] = c.ours, c.theirs

		switch {
		case d == 0:
			s.ExactMatches++
		case d > 0:
			s.OverEstimated++
		default:
			s.UnderEstimated++
		}
	}

	s.AvgDifference = roundTo(mean(diffs), 1)
	s.AvgAbsDifference = roundTo(mean(absDiffs), 1)

	if len(paired) >= 3 {
		if r, ok := pearson(xs, ys); ok {
			s.Correlation = ptr(roundTo(r, 2))
		}
	}

	return s
}

func pearson(xs, ys []float64) (float64, bool) {
	mx, my := mean(xs), mean(ys)

	var num, sx, sy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		num += dx * dy
		sx += dx * dx
		sy += dy * dy
	}

	denX, denY := math.Sqrt(sx), math.Sqrt(sy)
	if denX == 0 || denY == 0 {
		return 0, false
	}
	return num / (denX * denY), true
}
