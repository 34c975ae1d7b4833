package candidate

import (
	"fmt"
	"math/rand/v2"

	"github.com/GoSim-25-26J-441/bench-core/pkg/models"
)

// dummyDetector flags each row as anomalous with probability p
type dummyDetector struct {
	p   float64
	rng *rand.Rand
}

// NewDummy builds the random baseline. Parameters: p in [0, 1] (default
// 0.5) and seed.
func NewDummy(cfg models.Configuration) (Detector, error) {
	p := 0.5
	if v, ok := cfg.Get("p"); ok {
		f, err := v.AsFloat()
		if err != nil {
			return nil, fmt.Errorf("p: %w", err)
		}
		p = f
	}
	if p < 0 || p > 1 {
		return nil, fmt.Errorf("p must be between 0.0 and 1.0: p=%g", p)
	}
	rng, err := seededRand(cfg)
	if err != nil {
		return nil, err
	}
	return &dummyDetector{p: p, rng: rng}, nil
}

func (d *dummyDetector) Fit([][]float64) error { return nil }

func (d *dummyDetector) Score([]float64) (float64, error) {
	if d.rng.Float64() >= 1-d.p {
		return 1, nil
	}
	return 0, nil
}
