package coordinator

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/GoSim-25-26J-441/bench-core/internal/aggregator"
	"github.com/GoSim-25-26J-441/bench-core/internal/dataset"
	"github.com/GoSim-25-26J-441/bench-core/internal/protocol"
	"github.com/GoSim-25-26J-441/bench-core/internal/scheduler"
	"github.com/GoSim-25-26J-441/bench-core/pkg/models"
)

// assignNext heartbeats as wid until the coordinator hands it a job
func assignNext(t *testing.T, c *Coordinator, wid string) protocol.Assign {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if a, ok := handle(t, c, protocol.Heartbeat{WorkerID: wid}).(protocol.Assign); ok {
			return a
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("worker %s was never assigned a job", wid)
	return protocol.Assign{}
}

func TestRequeuedJobKeepsFirstReport(t *testing.T) {
	c, clock := newTestCoordinator()

	agg := aggregator.New()
	agg.AddDataset(&dataset.Dataset{
		ID:     "toy",
		Rows:   [][]float64{{0}, {1}, {2}},
		Labels: []models.Label{models.LabelInlier, models.LabelInlier, models.LabelOutlier},
	})
	sched := scheduler.New(c, scheduler.Options{
		Slots:     1,
		Retry:     scheduler.NewRetryPolicy(2, nil),
		Committer: agg,
	})
	defer sched.Stop()
	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := sched.Submit(testJob("job-1")); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	first := register(t, c, "alpha")
	a1 := assignNext(t, c, first)
	if a1.JobID != "job-1" || a1.Attempt != 1 {
		t.Fatalf("unexpected first assignment %+v", a1)
	}

	// alpha goes silent; the job times out and the scheduler runs it again
	clock.Advance(6 * time.Second)
	c.Sweep()
	second := register(t, c, "beta")
	a2 := assignNext(t, c, second)
	if a2.JobID != "job-1" || a2.Attempt != 2 {
		t.Fatalf("unexpected second assignment %+v", a2)
	}

	late := models.ScoreVector{0.1, 0.2, 0.9}
	if ack := handle(t, c, protocol.Report{WorkerID: first, JobID: "job-1", Attempt: 1, Scores: late}).(protocol.ReportAck); !ack.Accepted {
		t.Fatal("expected the first report to be accepted")
	}
	if ack := handle(t, c, protocol.Report{WorkerID: second, JobID: "job-1", Attempt: 2, Scores: models.ScoreVector{0.5, 0.5, 0.5}}).(protocol.ReportAck); ack.Accepted {
		t.Fatal("expected the second report to be discarded")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sum, err := sched.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if sum.Succeeded != 1 || sum.Retries != 1 || sum.Failed != 0 {
		t.Errorf("unexpected summary %+v", sum)
	}

	snap := agg.Snapshot()
	if len(snap.Entries) != 1 || len(snap.Missing) != 0 {
		t.Fatalf("expected exactly one entry, got %d entries and %d missing", len(snap.Entries), len(snap.Missing))
	}
	if !reflect.DeepEqual(snap.Entries[0].Scores, late) {
		t.Errorf("expected the first report's scores %v, got %v", late, snap.Entries[0].Scores)
	}
}
