package smartqr

import (
	"fmt"
	"math"
	"math/rand"
)

const weightTolerance = 0.01

// ValidateSplit checks that every URL has a weight and the weights add up to 100.
func ValidateSplit(urls []string, weights []float64) error {
	var problems []string
	if len(urls) == 0 {
		problems = append(problems, "traffic split needs at least one url")
	}
	if len(urls) != len(weights) {
		problems = append(problems, fmt.Sprintf("traffic split has %d urls but %d weights", len(urls), len(weights)))
	}

	var sum float64
	for i, w := range weights {
		if w < 0 || math.IsNaN(w) {
			problems = append(problems, fmt.Sprintf("traffic weight %d must be a non-negative number", i))
		}
		sum += w
	}
	if math.Abs(sum-100) > weightTolerance {
		problems = append(problems, fmt.Sprintf("traffic weights must sum to 100, got %g", sum))
	}
	for i, u := range urls {
		if err := validateURL(u); err != nil {
			problems = append(problems, fmt.Sprintf("variant %d: %v", i, err))
		}
	}

	if len(problems) > 0 {
		return &ConfigError{Problems: problems}
	}
	return nil
}

// VariantSelector picks one URL of a traffic split per scan.
type VariantSelector struct {
	rnd func() float64
}

// NewVariantSelector uses rnd as the source of uniform draws in [0,1).
// A nil rnd uses the shared math/rand source.
func NewVariantSelector(rnd func() float64) *VariantSelector {
	if rnd == nil {
		rnd = rand.Float64
	}
	return &VariantSelector{rnd: rnd}
}

// Select walks cumulative weights and returns the first variant whose
// threshold reaches the draw. Zero-weight variants are never chosen. Inputs
// are expected to have passed ValidateSplit; the last weighted URL absorbs
// any floating-point drift.
func (s *VariantSelector) Select(urls []string, weights []float64) string {
	if len(urls) == 0 {
		return ""
	}

	draw := s.rnd() * 100
	var cumulative float64
	last := urls[len(urls)-1]
	for i, url := range urls {
		if i >= len(weights) || weights[i] <= 0 {
			continue
		}
		cumulative += weights[i]
		last = url
		if cumulative >= draw {
			return url
		}
	}
	return last
}

// NewABTestRule builds a redirect rule that splits traffic across urls.
// Weight problems are reported here, never at scan time.
func NewABTestRule(id, name string, priority int, urls []string, weights []float64, conditions ...Condition) (Rule, error) {
	if err := ValidateSplit(urls, weights); err != nil {
		return Rule{}, err
	}

	return Rule{
		ID:         id,
		Name:       name,
		Priority:   priority,
		Conditions: append([]Condition(nil), conditions...),
		Action: Action{
			Type:  ActionRedirect,
			Value: urls[0],
			Split: &TrafficSplit{
				URLs:    append([]string(nil), urls...),
				Weights: append([]float64(nil), weights...),
			},
		},
		Enabled: true,
	}, nil
}
