//go:build integration
// +build integration

package integration_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/GoSim-25-26J-441/bench-core/internal/aggregator"
	"github.com/GoSim-25-26J-441/bench-core/internal/benchd"
	"github.com/GoSim-25-26J-441/bench-core/internal/suite"
	"github.com/GoSim-25-26J-441/bench-core/pkg/config"
)

const sampleConfig = "../../config/bench.yaml"

func TestIntegration_SampleConfigLoadSmoke(t *testing.T) {
	cfg, err := config.LoadConfig(sampleConfig)
	if err != nil {
		t.Fatalf("LoadConfig(%s) failed: %v", sampleConfig, err)
	}
	if len(cfg.Datasets) == 0 || len(cfg.Candidates) == 0 {
		t.Fatalf("expected datasets and candidates, got %d/%d", len(cfg.Datasets), len(cfg.Candidates))
	}
	for _, c := range cfg.Candidates {
		params, err := c.ResolveParameters()
		if err != nil {
			t.Fatalf("ResolveParameters(%s): %v", c.Name, err)
		}
		if len(params) == 0 {
			t.Errorf("candidate %s has no parameters", c.Name)
		}
	}
	if _, err := os.Stat(filepath.Join(cfg.DataRoot, cfg.Datasets[0].Path)); err != nil {
		t.Fatalf("sample dataset not found: %v", err)
	}
}

func TestIntegration_LocalSuiteFromSampleConfig(t *testing.T) {
	cfg, err := config.LoadConfig(sampleConfig)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	out := t.TempDir()
	cfg.Output.Path = filepath.Join(out, "scores.json")
	cfg.Output.CSVPath = filepath.Join(out, "suite.csv")
	cfg.Execution.Mode = config.ModeLocal
	cfg.HTTPAddr = ""

	m, err := benchd.NewMaster(cfg, benchd.Options{})
	if err != nil {
		t.Fatalf("NewMaster: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	res, err := m.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// dummy: 2 values of p; knn: 3 values of k times 3 train set sizes
	if res.Entries+res.Missing != 11 {
		t.Fatalf("expected 11 accounted keys, got %d entries and %d missing", res.Entries, res.Missing)
	}
	if res.Entries == 0 {
		t.Fatal("expected at least one committed entry")
	}
	if st := m.Runner().Status(); st.Phase != suite.PhaseDone {
		t.Fatalf("expected phase done, got %s (%s)", st.Phase, st.Error)
	}

	data, err := os.ReadFile(cfg.Output.Path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	var doc aggregator.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode artifact: %v", err)
	}
	if doc.RunID != res.RunID || len(doc.Entries) != res.Entries {
		t.Errorf("artifact does not match result: run %s, %d entries", doc.RunID, len(doc.Entries))
	}
	if _, err := os.Stat(cfg.Output.CSVPath); err != nil {
		t.Errorf("csv digest missing: %v", err)
	}
}
