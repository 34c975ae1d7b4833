package aggregator

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/GoSim-25-26J-441/bench-core/internal/dataset"
	"github.com/GoSim-25-26J-441/bench-core/pkg/models"
)

func toyDataset(id string, rows int) *dataset.Dataset {
	ds := &dataset.Dataset{ID: id}
	for i := 0; i < rows; i++ {
		ds.Rows = append(ds.Rows, []float64{float64(i)})
		label := models.LabelInlier
		if i%4 == 0 {
			label = models.LabelOutlier
		}
		ds.Labels = append(ds.Labels, label)
	}
	return ds
}

func key(ds, cand string, k int64) models.JobKey {
	return models.JobKey{
		Dataset:   ds,
		Candidate: cand,
		Config:    models.NewConfiguration(map[string]models.Value{"k": models.IntValue(k)}),
	}
}

func ones(n int) models.ScoreVector {
	v := make(models.ScoreVector, n)
	for i := range v {
		v[i] = 1
	}
	return v
}

type memorySink struct {
	mu      sync.Mutex
	entries []Entry
	missing []Missing
}

func (s *memorySink) PutEntry(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *memorySink) PutMissing(m Missing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missing = append(s.missing, m)
	return nil
}

func TestUpsertShapeMismatch(t *testing.T) {
	agg := New()
	agg.AddDataset(toyDataset("toy", 100))

	committed, err := agg.Upsert(key("toy", "knn", 1), ones(99))
	if committed {
		t.Error("expected mismatched vector not to be committed")
	}
	if !errors.Is(err, models.ErrScoreShapeMismatch) {
		t.Fatalf("expected ErrScoreShapeMismatch, got %v", err)
	}

	agg.RecordMissing(key("toy", "knn", 1), "job-1", err)
	snap := agg.Snapshot()
	if len(snap.Entries) != 0 || len(snap.Missing) != 1 {
		t.Fatalf("expected 0 entries and 1 missing, got %d/%d", len(snap.Entries), len(snap.Missing))
	}
	if snap.Missing[0].Reason != models.Reason(models.ErrScoreShapeMismatch) {
		t.Errorf("reason = %s", snap.Missing[0].Reason)
	}
}

func TestUpsertRejectsNaN(t *testing.T) {
	agg := New()
	agg.AddDataset(toyDataset("toy", 2))
	if _, err := agg.Upsert(key("toy", "knn", 1), models.ScoreVector{0.5, math.NaN()}); !errors.Is(err, models.ErrScoreShapeMismatch) {
		t.Fatalf("expected ErrScoreShapeMismatch, got %v", err)
	}
	if agg.Has(key("toy", "knn", 1)) {
		t.Error("NaN vector must not be committed")
	}
}

func TestUpsertFirstWins(t *testing.T) {
	sink := &memorySink{}
	agg := New(sink)
	agg.AddDataset(toyDataset("toy", 4))

	first := models.ScoreVector{0.9, 0.1, 0.2, 0.3}
	second := models.ScoreVector{0, 0, 0, 0}

	if ok, err := agg.Upsert(key("toy", "knn", 1), first); !ok || err != nil {
		t.Fatalf("first upsert: committed=%v err=%v", ok, err)
	}
	if ok, err := agg.Upsert(key("toy", "knn", 1), second); ok || err != nil {
		t.Fatalf("second upsert: committed=%v err=%v", ok, err)
	}

	snap := agg.Snapshot()
	if len(snap.Entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(snap.Entries))
	}
	if snap.Entries[0].Scores[0] != 0.9 {
		t.Errorf("expected first vector to win, got %v", snap.Entries[0].Scores)
	}
	if len(sink.entries) != 1 {
		t.Errorf("expected one write-through, got %d", len(sink.entries))
	}

	// Mutating the caller's slice must not change the stored vector
	first[0] = -1
	if agg.Snapshot().Entries[0].Scores[0] != 0.9 {
		t.Error("stored vector aliases the caller's slice")
	}
}

func TestConcurrentUpsertCommitsOnce(t *testing.T) {
	agg := New()
	agg.AddDataset(toyDataset("toy", 8))

	var wg sync.WaitGroup
	var mu sync.Mutex
	committed := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := agg.Upsert(key("toy", "dummy", 0), ones(8)); ok {
				mu.Lock()
				committed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if committed != 1 {
		t.Errorf("expected exactly one commit, got %d", committed)
	}
}

func TestRecordMissingAfterEntryIsIgnored(t *testing.T) {
	agg := New()
	agg.AddDataset(toyDataset("toy", 4))
	agg.Upsert(key("toy", "knn", 1), ones(4))
	agg.RecordMissing(key("toy", "knn", 1), "job-1", models.Errorf(models.ErrWorkerTimeout, "late"))

	if n, m := agg.Len(); n != 1 || m != 0 {
		t.Errorf("expected 1 entry and 0 missing, got %d/%d", n, m)
	}
}

func TestEntryClearsMissing(t *testing.T) {
	agg := New()
	agg.AddDataset(toyDataset("toy", 4))
	agg.RecordMissing(key("toy", "knn", 1), "job-1", models.Errorf(models.ErrWorkerTimeout, "slow"))
	agg.Upsert(key("toy", "knn", 1), ones(4))

	if n, m := agg.Len(); n != 1 || m != 0 {
		t.Errorf("expected 1 entry and 0 missing, got %d/%d", n, m)
	}
}

func TestUpsertUnknownDataset(t *testing.T) {
	agg := New()
	if _, err := agg.Upsert(key("nope", "knn", 1), ones(3)); !errors.Is(err, models.ErrDatasetLoad) {
		t.Errorf("expected ErrDatasetLoad, got %v", err)
	}
}

func TestCommitRecordsJob(t *testing.T) {
	agg := New()
	agg.AddDataset(toyDataset("toy", 4))
	job := models.Job{ID: "job-7", Dataset: models.DatasetRef{Name: "toy"}, Candidate: models.CandidateSpec{Name: "knn"}, Attempt: 2}
	if err := agg.Commit(job, ones(4)); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := agg.Commit(job, ones(4)); err != nil {
		t.Fatalf("second Commit should be a no-op, got %v", err)
	}
	e := agg.Snapshot().Entries[0]
	if e.JobID != "job-7" || e.Attempt != 2 {
		t.Errorf("unexpected entry %+v", e)
	}
	if !agg.Has(job.Key()) {
		t.Error("expected Has to report the committed key")
	}
}

func TestPreloadSkipsExisting(t *testing.T) {
	agg := New()
	agg.Preload(Entry{Key: key("toy", "knn", 1), JobID: "old", Scores: ones(2)})
	agg.Preload(Entry{Key: key("toy", "knn", 1), JobID: "new", Scores: ones(2)})
	if got := agg.Snapshot().Entries[0].JobID; got != "old" {
		t.Errorf("expected preload to keep the first entry, got %s", got)
	}
}

func TestSummariesWithoutLabels(t *testing.T) {
	agg := New()
	ds := toyDataset("plain", 4)
	ds.Labels = nil
	agg.AddDataset(ds)
	agg.Upsert(key("plain", "knn", 1), ones(4))

	s := agg.Summaries()[0]
	if s.ROCAUC != nil || s.AveragePrecision != nil {
		t.Error("expected no metrics for an unlabeled dataset")
	}
}

func TestWriteArtifacts(t *testing.T) {
	agg := New().WithRunID("run-1")
	agg.AddDataset(toyDataset("toy", 4))
	// Row 0 is the only outlier and gets the highest score
	agg.Upsert(key("toy", "knn", 3), models.ScoreVector{0.9, 0.1, 0.2, 0.3})
	agg.RecordMissing(key("toy", "knn", 5), "job-2", models.Errorf(models.ErrCandidateExecution, "k too large"))

	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "out", "scores.json")
	if err := os.MkdirAll(filepath.Dir(jsonPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(jsonPath, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := agg.WriteJSON(jsonPath); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	raw, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatal(err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("artifact is not valid JSON: %v", err)
	}
	if doc.RunID != "run-1" || len(doc.Entries) != 1 || len(doc.Missing) != 1 {
		t.Fatalf("unexpected document %+v", doc)
	}
	if doc.Entries[0].ROCAUC == nil || *doc.Entries[0].ROCAUC != 1 {
		t.Errorf("expected perfect ROC AUC, got %v", doc.Entries[0].ROCAUC)
	}
	if curve := doc.Entries[0].ROCCurve; len(curve) != 3 || curve[1] != (ROCPoint{FPR: 0, TPR: 1}) {
		t.Errorf("expected a perfect ROC curve, got %v", curve)
	}
	if doc.Missing[0].Reason != models.Reason(models.ErrCandidateExecution) {
		t.Errorf("unexpected missing reason %s", doc.Missing[0].Reason)
	}

	csvPath := filepath.Join(dir, "out", "suite.csv")
	if err := agg.WriteCSV(csvPath); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	f, err := os.Open(csvPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected header and one row, got %d records", len(records))
	}
	if records[0][2] != "data" || records[0][6] != "k" {
		t.Errorf("unexpected header %v", records[0])
	}
	if records[1][6] != "3" {
		t.Errorf("expected k=3 in the parameter column, got %v", records[1])
	}

	leftovers, _ := filepath.Glob(filepath.Join(dir, "out", ".*.tmp"))
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}

func TestROCAUC(t *testing.T) {
	out, in := models.LabelOutlier, models.LabelInlier
	tests := []struct {
		name     string
		labels   []models.Label
		scores   models.ScoreVector
		expected float64
		defined  bool
	}{
		{"perfect", []models.Label{out, in, in}, models.ScoreVector{3, 1, 2}, 1, true},
		{"inverted", []models.Label{out, in, in}, models.ScoreVector{0, 1, 2}, 0, true},
		{"all tied", []models.Label{out, in}, models.ScoreVector{1, 1}, 0.5, true},
		{"one class", []models.Label{in, in}, models.ScoreVector{1, 2}, 0, false},
		{"length mismatch", []models.Label{out}, models.ScoreVector{1, 2}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ROCAUC(tt.labels, tt.scores)
			if ok != tt.defined {
				t.Fatalf("defined = %v, expected %v", ok, tt.defined)
			}
			if ok && math.Abs(got-tt.expected) > 1e-12 {
				t.Errorf("ROCAUC = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestROCCurve(t *testing.T) {
	out, in := models.LabelOutlier, models.LabelInlier
	tests := []struct {
		name     string
		labels   []models.Label
		scores   models.ScoreVector
		expected []ROCPoint
	}{
		{"perfect", []models.Label{out, in, in}, models.ScoreVector{3, 1, 2}, []ROCPoint{{0, 0}, {0, 1}, {1, 1}}},
		{"interleaved", []models.Label{out, in, out}, models.ScoreVector{3, 2, 1}, []ROCPoint{{0, 0}, {0, 0.5}, {1, 0.5}, {1, 1}}},
		{"all tied", []models.Label{out, in}, models.ScoreVector{1, 1}, []ROCPoint{{0, 0}, {1, 1}}},
		{"one class", []models.Label{in, in}, models.ScoreVector{1, 2}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ROCCurve(tt.labels, tt.scores)
			if ok != (tt.expected != nil) {
				t.Fatalf("defined = %v, expected %v", ok, tt.expected != nil)
			}
			if len(got) != len(tt.expected) {
				t.Fatalf("ROCCurve = %v, expected %v", got, tt.expected)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("point %d = %v, expected %v", i, got[i], tt.expected[i])
				}
			}
			if !ok {
				return
			}
			// The trapezoid area under the curve is the ROC AUC
			var area float64
			for i := 1; i < len(got); i++ {
				area += (got[i].FPR - got[i-1].FPR) * (got[i].TPR + got[i-1].TPR) / 2
			}
			if auc, _ := ROCAUC(tt.labels, tt.scores); math.Abs(area-auc) > 1e-12 {
				t.Errorf("area %v differs from ROCAUC %v", area, auc)
			}
		})
	}
}

func TestAveragePrecision(t *testing.T) {
	out, in := models.LabelOutlier, models.LabelInlier
	tests := []struct {
		name     string
		labels   []models.Label
		scores   models.ScoreVector
		expected float64
		defined  bool
	}{
		{"perfect", []models.Label{out, in, in}, models.ScoreVector{3, 1, 2}, 1, true},
		// Ranking out, in, out: precision 1 at recall .5 and 2/3 at recall 1
		{"interleaved", []models.Label{out, in, out}, models.ScoreVector{3, 2, 1}, 0.5 + 0.5*2.0/3.0, true},
		{"all tied", []models.Label{out, in, in, in}, models.ScoreVector{1, 1, 1, 1}, 0.25, true},
		{"no outliers", []models.Label{in, in}, models.ScoreVector{1, 2}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := AveragePrecision(tt.labels, tt.scores)
			if ok != tt.defined {
				t.Fatalf("defined = %v, expected %v", ok, tt.defined)
			}
			if ok && math.Abs(got-tt.expected) > 1e-12 {
				t.Errorf("AveragePrecision = %v, expected %v", got, tt.expected)
			}
		})
	}
}
