package scheduler

import "github.com/GoSim-25-26J-441/bench-core/pkg/models"

// entry is the scheduler's record of one job
type entry struct {
	job   models.Job
	group int    // rank of the (dataset, candidate) group by first submission
	seq   uint64 // submission order
	index int    // heap position, -1 when not queued
	gen   int    // dispatch generation, bumped on every start

	committing bool
}

// jobQueue orders pending jobs by group rank, then submission order.
// Retried jobs keep their sequence number and so rejoin near the front
// of their group.
type jobQueue []*entry

func (q jobQueue) Len() int { return len(q) }

func (q jobQueue) Less(i, j int) bool {
	if q[i].group != q[j].group {
		return q[i].group < q[j].group
	}
	return q[i].seq < q[j].seq
}

func (q jobQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *jobQueue) Push(x any) {
	e := x.(*entry)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *jobQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}
