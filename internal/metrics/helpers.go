package metrics

import (
	"sort"

	"github.com/GoSim-25-26J-441/bench-core/pkg/models"
)

// Job metric names
const (
	MetricJobDuration = "job_duration_ms"
	MetricJobRetries  = "job_retries"
	MetricJobFailures = "job_failure_count"
)

// CandidateMetrics is the execution profile of one candidate
type CandidateMetrics struct {
	Candidate   string  `json:"candidate"`
	Jobs        int64   `json:"jobs"`
	Failed      int64   `json:"failed"`
	Retries     int64   `json:"retries"`
	DurationP50 float64 `json:"duration_p50_ms"`
	DurationP95 float64 `json:"duration_p95_ms"`
	DurationP99 float64 `json:"duration_p99_ms"`
	DurationMax float64 `json:"duration_max_ms"`
}

// CandidateLabels creates the label set of a candidate
func CandidateLabels(candidate string) map[string]string {
	return map[string]string{"candidate": candidate}
}

// RecordJob records a terminal job. Durations are recorded for successful
// jobs only.
func RecordJob(collector *Collector, job models.Job) {
	labels := CandidateLabels(job.Candidate.Name)
	collector.Record(MetricJobRetries, float64(max(job.Attempt-1, 0)), job.EndedAt, labels)
	switch job.State {
	case models.JobSucceeded:
		collector.Record(MetricJobDuration, float64(job.Elapsed().Microseconds())/1000, job.EndedAt, labels)
	case models.JobFailed:
		collector.Record(MetricJobFailures, 1, job.EndedAt, labels)
	}
}

// CandidateSummary builds one profile per candidate, sorted by name
func CandidateSummary(collector *Collector) []CandidateMetrics {
	var out []CandidateMetrics
	for _, labels := range collector.Labels(MetricJobRetries) {
		m := CandidateMetrics{Candidate: labels["candidate"]}
		if agg := collector.Aggregation(MetricJobRetries, labels); agg != nil {
			m.Jobs = agg.Count
			m.Retries = int64(agg.Sum)
		}
		if agg := collector.Aggregation(MetricJobFailures, labels); agg != nil {
			m.Failed = agg.Count
		}
		if agg := collector.Aggregation(MetricJobDuration, labels); agg != nil {
			m.DurationP50 = agg.P50
			m.DurationP95 = agg.P95
			m.DurationP99 = agg.P99
			m.DurationMax = agg.Max
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Candidate < out[j].Candidate })
	return out
}
