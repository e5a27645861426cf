package scheduler

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"intentmesh/internal/domain"
	"intentmesh/internal/expression"
)

// SyntheticSource fabricates plausible metrics from the first condition of an
// intent expression. Intents without a usable condition report availability.
type SyntheticSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSyntheticSource seeds the generator; 0 seeds from the clock.
func NewSyntheticSource(seed uint64) *SyntheticSource {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &SyntheticSource{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *SyntheticSource) uniform(lo, hi float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo + (hi-lo)*s.rng.Float64()
}

func (s *SyntheticSource) Sample(_ context.Context, intent domain.Intent, _ int) (domain.ObservationMetric, error) {
	var cond *domain.Condition
	if doc, err := expression.Parse(intent.Expression.Value); err == nil {
		if conds := doc.Conditions(); len(conds) > 0 {
			cond = &conds[0]
		}
	}
	if cond == nil {
		return domain.ObservationMetric{
			Name:   "availability",
			Value:  round(s.uniform(97, 100)),
			Unit:   "%",
			Labels: map[string]string{"source": "synthetic"},
		}, nil
	}
	var v float64
	switch cond.Operator {
	case "smaller":
		v = cond.Value * s.uniform(0.6, 1.05)
	case "larger":
		v = cond.Value * s.uniform(0.95, 1.4)
	default:
		span := cond.Upper - cond.Value
		v = cond.Value + span*s.uniform(-0.05, 1.05)
	}
	return domain.ObservationMetric{
		Name:  expression.LocalName(cond.Property),
		Value: round(v),
		Unit:  cond.Unit,
		Labels: map[string]string{
			"source":   "synthetic",
			"operator": cond.Operator,
		},
	}, nil
}

func round(v float64) float64 {
	return math.Round(v*100) / 100
}
