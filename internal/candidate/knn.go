package candidate

import (
	"container/heap"
	"fmt"
	"math"

	"github.com/GoSim-25-26J-441/bench-core/pkg/models"
)

// knnDetector scores a row by the distance to its k-th nearest training
// row (Ramaswamy et al., SIGMOD 2000).
type knnDetector struct {
	k      int
	metric func(a, b []float64) float64
	train  [][]float64
}

// NewKNN builds the k-th nearest neighbour detector. Parameters: k >= 1
// (default 10) and metric, one of euclidean (default) or manhattan.
func NewKNN(cfg models.Configuration) (Detector, error) {
	k := int64(10)
	if v, ok := cfg.Get("k"); ok {
		i, err := v.AsInt()
		if err != nil {
			return nil, fmt.Errorf("k: %w", err)
		}
		k = i
	}
	if k < 1 {
		return nil, fmt.Errorf("k must be positive: k=%d", k)
	}

	metric := euclidean
	if v, ok := cfg.Get("metric"); ok {
		switch v.String() {
		case "euclidean", "l2":
		case "manhattan", "l1":
			metric = manhattan
		default:
			return nil, fmt.Errorf("unknown metric %q", v.String())
		}
	}
	return &knnDetector{k: int(k), metric: metric}, nil
}

func (d *knnDetector) Fit(train [][]float64) error {
	if d.k > len(train) {
		return fmt.Errorf("k=%d exceeds training set size %d", d.k, len(train))
	}
	d.train = train
	return nil
}

func (d *knnDetector) Score(row []float64) (float64, error) {
	if d.train == nil {
		return 0, fmt.Errorf("model has not been trained")
	}
	// max-heap of the k smallest distances seen so far
	h := make(distHeap, 0, d.k)
	for _, t := range d.train {
		if len(t) != len(row) {
			return 0, fmt.Errorf("row has %d features, training data has %d", len(row), len(t))
		}
		dist := d.metric(row, t)
		if h.Len() < d.k {
			heap.Push(&h, dist)
		} else if dist < h[0] {
			h[0] = dist
			heap.Fix(&h, 0)
		}
	}
	return h[0], nil
}

func euclidean(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func manhattan(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += math.Abs(a[i] - b[i])
	}
	return sum
}

type distHeap []float64

func (h distHeap) Len() int           { return len(h) }
func (h distHeap) Less(i, j int) bool { return h[i] > h[j] }
func (h distHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *distHeap) Push(x any)        { *h = append(*h, x.(float64)) }
func (h *distHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
