package suite

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GoSim-25-26J-441/bench-core/internal/aggregator"
	"github.com/GoSim-25-26J-441/bench-core/internal/candidate"
	"github.com/GoSim-25-26J-441/bench-core/internal/checkpoint"
	"github.com/GoSim-25-26J-441/bench-core/internal/dataset"
	"github.com/GoSim-25-26J-441/bench-core/internal/scheduler"
	"github.com/GoSim-25-26J-441/bench-core/internal/worker"
	"github.com/GoSim-25-26J-441/bench-core/pkg/config"
	"github.com/GoSim-25-26J-441/bench-core/pkg/models"
)

const toyCSV = `# id,label,x,y
1,0,0,0
2,0,0,1
3,0,1,0
4,0,1,1
5,1,10,10
`

// newConfig writes the toy dataset and returns a config scoring it with
// knn for k in {2, 3}, plus an unreadable dataset and a candidate lacking
// its required parameter
func newConfig(t *testing.T, extra string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "toy.csv"), []byte(toyCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	yamlText := `
data_root: ` + dir + `
datasets:
  - name: toy
    path: toy.csv
  - name: absent
candidates:
  - name: knn
    kind: knn
    parameters:
      k: {values: [2, 3]}
  - name: broken
    kind: knn
    parameters:
      metric: manhattan
execution:
  slots: 2
  max_retries: 0
  retry_backoff: none
  grace_period: 50ms
output:
  path: ` + filepath.Join(dir, "out", "scores.json") + `
  csv_path: ` + filepath.Join(dir, "out", "suite.csv") + `
` + extra
	cfg, err := config.ParseConfigYAMLString(yamlText)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	return cfg
}

func localDeps(cfg *config.Config) Deps {
	files := dataset.NewFileProvider(cfg.DataRoot, cfg.Datasets...)
	datasets := dataset.NewCachedProvider(files)
	registry := candidate.NewRegistry(candidate.Builtins()...)
	return Deps{
		Datasets: datasets,
		Registry: registry,
		Executor: worker.NewExecutor(datasets, registry),
	}
}

func readDocument(t *testing.T, path string) aggregator.Document {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	var doc aggregator.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode artifact: %v", err)
	}
	return doc
}

func TestRunLocalSuite(t *testing.T) {
	cfg := newConfig(t, "")
	r, err := New(cfg, localDeps(cfg))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Entries != 2 {
		t.Errorf("expected 2 entries, got %d", res.Entries)
	}
	// absent × two knn configurations, toy × broken
	if res.Missing != 3 {
		t.Errorf("expected 3 missing keys, got %d", res.Missing)
	}
	if res.Summary.Succeeded != 2 || res.Summary.Failed != 0 {
		t.Errorf("unexpected summary %+v", res.Summary)
	}

	doc := readDocument(t, cfg.Output.Path)
	if doc.RunID != r.RunID() {
		t.Errorf("run_id = %q, expected %q", doc.RunID, r.RunID())
	}
	for _, e := range doc.Entries {
		if len(e.Scores) != 5 {
			t.Errorf("%s: expected 5 scores, got %d", e.ConfigKey, len(e.Scores))
		}
		if e.ROCAUC == nil || *e.ROCAUC != 1 {
			t.Errorf("%s: expected a perfect ROC AUC, got %v", e.ConfigKey, e.ROCAUC)
		}
	}
	reasons := make(map[string]int)
	for _, m := range doc.Missing {
		reasons[m.Reason]++
	}
	if reasons["dataset_load_error"] != 2 || reasons["invalid_parameter_spec"] != 1 {
		t.Errorf("unexpected missing reasons %v", reasons)
	}

	csv, err := os.ReadFile(cfg.Output.CSVPath)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(string(csv)), "\n"); len(lines) != 3 {
		t.Errorf("expected header and 2 rows, got %d lines", len(lines))
	}

	st := r.Status()
	if st.Phase != PhaseDone {
		t.Errorf("phase = %s, expected done", st.Phase)
	}
	if len(st.Candidates) != 2 || st.Candidates[0].Configs != 2 || st.Candidates[1].Error == "" {
		t.Errorf("unexpected candidate plans %+v", st.Candidates)
	}
	if st.Counts.Succeeded != 2 {
		t.Errorf("expected 2 succeeded jobs, got %+v", st.Counts)
	}
	if len(st.Metrics) != 1 || st.Metrics[0].Candidate != "knn" || st.Metrics[0].Jobs != 2 || st.Metrics[0].Failed != 0 {
		t.Errorf("unexpected candidate metrics %+v", st.Metrics)
	}

	if _, err := r.Run(context.Background()); !errors.Is(err, ErrAlreadyRun) {
		t.Errorf("expected ErrAlreadyRun, got %v", err)
	}
}

func TestRunIsolatesMalformedInlineParameters(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "toy.csv"), []byte(toyCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.ParseConfigYAMLString(`
data_root: ` + dir + `
datasets:
  - name: toy
    path: toy.csv
candidates:
  - name: good
    kind: knn
    parameters:
      k: 3
  - name: bad
    kind: knn
    parameters:
      k: {min: 1, max: 5}
execution:
  retry_backoff: none
  grace_period: 50ms
output:
  path: ` + filepath.Join(dir, "scores.json") + `
`)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	r, err := New(cfg, localDeps(cfg))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Entries != 1 || res.Missing != 1 {
		t.Fatalf("expected 1 entry and 1 missing key, got %d and %d", res.Entries, res.Missing)
	}

	doc := readDocument(t, cfg.Output.Path)
	if doc.Entries[0].Candidate != "good" {
		t.Errorf("expected the entry for good, got %s", doc.Entries[0].Candidate)
	}
	if m := doc.Missing[0]; m.Candidate != "bad" || m.Reason != "invalid_parameter_spec" {
		t.Errorf("unexpected missing record %+v", m)
	}
}

func TestRunResumesFromCheckpoint(t *testing.T) {
	cfg := newConfig(t, "checkpoint:\n  endpoints: [localhost:2379]\n  resume: true\n")
	store := checkpoint.NewMemoryStore()
	store.PutEntry(aggregator.Entry{
		Key: models.JobKey{
			Dataset:   "toy",
			Candidate: "knn",
			Config:    models.ConfigurationFromParams(models.Param{Name: "k", Value: models.IntValue(2)}),
		},
		Scores: models.ScoreVector{1, 1, 1, 1, 9},
	})

	var calls atomic.Int32
	deps := localDeps(cfg)
	deps.Store = store
	deps.Executor = scheduler.ExecutorFunc(func(ctx context.Context, job models.Job) (models.ScoreVector, error) {
		calls.Add(1)
		return models.ScoreVector{0, 0, 0, 0, 1}, nil
	})

	r, err := New(cfg, deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Resumed != 1 || calls.Load() != 1 {
		t.Errorf("expected 1 resumed key and 1 execution, got resumed=%d calls=%d", res.Resumed, calls.Load())
	}
	if res.Entries != 2 {
		t.Errorf("expected both configurations in the matrix, got %d", res.Entries)
	}
	loaded, _ := store.Load(context.Background())
	if len(loaded) != 2 {
		t.Errorf("expected the new entry written through, store holds %d", len(loaded))
	}
}

func TestRunCancelledWritesPartialArtifact(t *testing.T) {
	cfg := newConfig(t, "")
	cfg.Execution.Slots = 1

	started := make(chan struct{}, 1)
	deps := localDeps(cfg)
	deps.Executor = scheduler.ExecutorFunc(func(ctx context.Context, job models.Job) (models.ScoreVector, error) {
		started <- struct{}{}
		<-ctx.Done()
		return nil, ctx.Err()
	})

	r, err := New(cfg, deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	done := make(chan struct{})
	var res Result
	go func() {
		defer close(done)
		res, err = r.Run(ctx)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish after cancellation")
	}
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Summary.Abandoned != 1 {
		t.Errorf("expected the running job abandoned, got %+v", res.Summary)
	}

	doc := readDocument(t, cfg.Output.Path)
	reasons := make(map[string]int)
	for _, m := range doc.Missing {
		reasons[m.Reason]++
	}
	if reasons["cancelled"] != 1 || reasons["abandoned"] != 1 {
		t.Errorf("unexpected missing reasons %v", reasons)
	}
}

func TestRunFailsWhenArtifactUnwritable(t *testing.T) {
	cfg := newConfig(t, "")
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg.Output.Path = filepath.Join(blocker, "scores.json")

	r, err := New(cfg, localDeps(cfg))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := r.Run(context.Background()); err == nil {
		t.Fatal("expected an artifact error")
	}
	if st := r.Status(); st.Phase != PhaseFailed || st.Error == "" {
		t.Errorf("expected failed phase with error, got %s %q", st.Phase, st.Error)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	cfg := newConfig(t, "")
	if _, err := New(cfg, Deps{}); err == nil {
		t.Error("expected an error without collaborators")
	}
}
