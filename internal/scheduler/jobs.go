package scheduler

import "github.com/GoSim-25-26J-441/bench-core/pkg/models"

// Plan pairs a candidate with the configurations it is evaluated on
type Plan struct {
	Candidate models.CandidateSpec
	Configs   []models.Configuration
}

// BuildJobs expands datasets × plans into pending jobs. Jobs come out
// grouped by dataset, then candidate, then configuration order, which is
// the order the scheduler dispatches them in.
func BuildJobs(datasets []models.DatasetRef, plans []Plan) []models.Job {
	n := 0
	for _, p := range plans {
		n += len(p.Configs)
	}
	jobs := make([]models.Job, 0, n*len(datasets))
	for _, ds := range datasets {
		for _, p := range plans {
			for _, cfg := range p.Configs {
				jobs = append(jobs, NewJob(ds, p.Candidate, cfg))
			}
		}
	}
	return jobs
}
