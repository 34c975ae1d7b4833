// Package dataset loads the labeled data matrices candidates are scored on.
package dataset

import (
	"context"

	"github.com/GoSim-25-26J-441/bench-core/pkg/models"
)

// Dataset is a read-only data matrix. Row order is authoritative: score
// vectors are aligned to Rows index by index. Datasets returned by a
// Provider may be shared and must not be mutated.
type Dataset struct {
	ID        string
	Rows      [][]float64
	Labels    []models.Label // nil when unlabeled
	RecordIDs []string
}

// Len returns the number of rows
func (d *Dataset) Len() int { return len(d.Rows) }

// Dim returns the number of features per row
func (d *Dataset) Dim() int {
	if len(d.Rows) == 0 {
		return 0
	}
	return len(d.Rows[0])
}

// Labeled reports whether ground truth is available
func (d *Dataset) Labeled() bool { return d.Labels != nil }

// Outliers counts rows labeled as outliers
func (d *Dataset) Outliers() int {
	n := 0
	for _, l := range d.Labels {
		if l == models.LabelOutlier {
			n++
		}
	}
	return n
}

// Provider supplies datasets by name. Errors wrap models.ErrDatasetLoad.
type Provider interface {
	Load(ctx context.Context, id string) (*Dataset, error)
}
