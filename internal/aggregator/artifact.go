package aggregator

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

// Document is the JSON artifact of a suite
type Document struct {
	RunID       string          `json:"run_id,omitempty"`
	GeneratedAt time.Time       `json:"generated_at"`
	Entries     []DocumentEntry `json:"entries"`
	Missing     []DocumentMiss  `json:"missing"`
}

// DocumentEntry is one score vector with its metrics
type DocumentEntry struct {
	ExperimentID     string         `json:"experiment_id"`
	Dataset          string         `json:"dataset"`
	Candidate        string         `json:"candidate"`
	Config           map[string]any `json:"config"`
	ConfigKey        string         `json:"config_key"`
	Attempt          int            `json:"attempt,omitempty"`
	ExecutionMicros  int64          `json:"execution_time_microseconds"`
	ROCAUC           *float64       `json:"roc_auc"`
	AveragePrecision *float64       `json:"average_precision"`
	ROCCurve         []ROCPoint     `json:"roc_curve,omitempty"`
	Scores           []float64      `json:"scores"`
}

// DocumentMiss is one key without a score vector
type DocumentMiss struct {
	ExperimentID string `json:"experiment_id,omitempty"`
	Dataset      string `json:"dataset"`
	Candidate    string `json:"candidate"`
	ConfigKey    string `json:"config_key"`
	Reason       string `json:"reason"`
	Error        string `json:"error,omitempty"`
}

// Document builds the artifact from the current contents
func (a *Aggregator) Document() Document {
	snap := a.Snapshot()
	sums := a.summaries(snap.Entries)

	doc := Document{
		RunID:       a.runID,
		GeneratedAt: time.Now().UTC(),
		Entries:     make([]DocumentEntry, len(snap.Entries)),
		Missing:     make([]DocumentMiss, len(snap.Missing)),
	}
	for i, e := range snap.Entries {
		doc.Entries[i] = DocumentEntry{
			ExperimentID:     e.JobID,
			Dataset:          e.Key.Dataset,
			Candidate:        e.Key.Candidate,
			Config:           e.Key.Config.Map(),
			ConfigKey:        e.Key.Config.Key(),
			Attempt:          e.Attempt,
			ExecutionMicros:  e.Elapsed.Microseconds(),
			ROCAUC:           sums[i].ROCAUC,
			AveragePrecision: sums[i].AveragePrecision,
			ROCCurve:         sums[i].ROCCurve,
			Scores:           e.Scores,
		}
	}
	for i, m := range snap.Missing {
		doc.Missing[i] = DocumentMiss{
			ExperimentID: m.JobID,
			Dataset:      m.Key.Dataset,
			Candidate:    m.Key.Candidate,
			ConfigKey:    m.Key.Config.Key(),
			Reason:       m.Reason,
			Error:        m.Error,
		}
	}
	return doc
}

// WriteJSON atomically replaces path with the JSON artifact
func (a *Aggregator) WriteJSON(path string) error {
	doc := a.Document()
	return writeAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	})
}

// WriteCSV atomically replaces path with one row per entry:
// experiment_id, execution time, dataset, candidate, both metrics, then
// one column per parameter name seen in any entry.
func (a *Aggregator) WriteCSV(path string) error {
	snap := a.Snapshot()
	sums := a.summaries(snap.Entries)

	seen := make(map[string]bool)
	var params []string
	for _, e := range snap.Entries {
		for _, name := range e.Key.Config.Names() {
			if !seen[name] {
				seen[name] = true
				params = append(params, name)
			}
		}
	}
	sort.Strings(params)

	return writeAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		header := append([]string{"experiment_id", "execution_time_microseconds", "data", "candidate", "roc_auc", "average_precision"}, params...)
		if err := cw.Write(header); err != nil {
			return err
		}
		for i, e := range snap.Entries {
			row := []string{
				e.JobID,
				strconv.FormatInt(e.Elapsed.Microseconds(), 10),
				e.Key.Dataset,
				e.Key.Candidate,
				formatMetric(sums[i].ROCAUC),
				formatMetric(sums[i].AveragePrecision),
			}
			for _, name := range params {
				v, ok := e.Key.Config.Get(name)
				if ok {
					row = append(row, v.String())
				} else {
					row = append(row, "")
				}
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

func formatMetric(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// writeAtomic writes through a temp file in the target directory and
// renames it over path, so readers see either the old or the new artifact
func writeAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
