package dataset

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/GoSim-25-26J-441/bench-core/pkg/models"
)

// Parse reads the comma-separated dataset format. Text from the first '#'
// or '@' on a line is ignored, which also skips ARFF headers. Column 0 is
// the record id; for labeled data column 1 is the label (0 inlier,
// 1 outlier). The remaining columns are features.
func Parse(r io.Reader, id string, labeled bool) (*Dataset, error) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 16*1024*1024)

	ds := &Dataset{ID: id}
	if labeled {
		ds.Labels = []models.Label{}
	}
	featureStart := 1
	if labeled {
		featureStart = 2
	}

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if i := strings.IndexAny(line, "#@"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.Split(line, ",")
		if len(fields) <= featureStart {
			return nil, models.Errorf(models.ErrDatasetLoad, "%s line %d: expected more than %d columns, got %d",
				id, lineNo, featureStart, len(fields))
		}
		if dim := ds.Dim(); dim > 0 && len(fields)-featureStart != dim {
			return nil, models.Errorf(models.ErrDatasetLoad, "%s line %d: expected %d features, got %d",
				id, lineNo, dim, len(fields)-featureStart)
		}

		if labeled {
			label, err := parseLabel(fields[1])
			if err != nil {
				return nil, models.Errorf(models.ErrDatasetLoad, "%s line %d: %v", id, lineNo, err)
			}
			ds.Labels = append(ds.Labels, label)
		}

		row := make([]float64, len(fields)-featureStart)
		for j, field := range fields[featureStart:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, models.Errorf(models.ErrDatasetLoad, "%s line %d: invalid feature %q", id, lineNo, field)
			}
			row[j] = v
		}
		ds.Rows = append(ds.Rows, row)
		ds.RecordIDs = append(ds.RecordIDs, strings.TrimSpace(fields[0]))
	}
	if err := scanner.Err(); err != nil {
		return nil, models.WrapError(models.ErrDatasetLoad, fmt.Errorf("%s: %w", id, err))
	}
	if len(ds.Rows) == 0 {
		return nil, models.Errorf(models.ErrDatasetLoad, "%s: no rows", id)
	}
	return ds, nil
}

func parseLabel(field string) (models.Label, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid label %q", field)
	}
	switch v {
	case 0:
		return models.LabelInlier, nil
	case 1:
		return models.LabelOutlier, nil
	default:
		return 0, fmt.Errorf("label must be 0 or 1, got %q", field)
	}
}
