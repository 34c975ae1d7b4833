package aggregator

import (
	"sort"

	"github.com/GoSim-25-26J-441/bench-core/pkg/models"
	"github.com/GoSim-25-26J-441/bench-core/pkg/utils"
)

// ROCAUC is the area under the ROC curve of scores against labels, where a
// higher score means more outlying. Tied scores count half. It is
// undefined unless both classes are present.
func ROCAUC(labels []models.Label, scores models.ScoreVector) (float64, bool) {
	if len(labels) != len(scores) || len(labels) == 0 {
		return 0, false
	}
	ranks := utils.AverageRanks(scores)
	var pos, neg int
	var rankSum float64
	for i, l := range labels {
		if l == models.LabelOutlier {
			pos++
			rankSum += ranks[i]
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return 0, false
	}
	p := float64(pos)
	return (rankSum - p*(p+1)/2) / (p * float64(neg)), true
}

// ROCPoint is one corner of an ROC curve
type ROCPoint struct {
	FPR float64 `json:"fpr"`
	TPR float64 `json:"tpr"`
}

// ROCCurve returns the ROC curve of scores against labels, from (0, 0) to
// (1, 1), with one point per distinct score threshold taken in descending
// order. Points inside straight horizontal or vertical runs are dropped.
// It is undefined unless both classes are present.
func ROCCurve(labels []models.Label, scores models.ScoreVector) ([]ROCPoint, bool) {
	if len(labels) != len(scores) || len(labels) == 0 {
		return nil, false
	}
	idx := make([]int, len(scores))
	pos := 0
	for i := range idx {
		idx[i] = i
		if labels[i] == models.LabelOutlier {
			pos++
		}
	}
	neg := len(labels) - pos
	if pos == 0 || neg == 0 {
		return nil, false
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })

	all := []ROCPoint{{0, 0}}
	tp, fp := 0, 0
	for i := 0; i < len(idx); {
		j := i
		for j < len(idx) && scores[idx[j]] == scores[idx[i]] {
			if labels[idx[j]] == models.LabelOutlier {
				tp++
			} else {
				fp++
			}
			j++
		}
		all = append(all, ROCPoint{FPR: float64(fp) / float64(neg), TPR: float64(tp) / float64(pos)})
		i = j
	}

	curve := make([]ROCPoint, 0, len(all))
	for i, p := range all {
		if i > 0 && i < len(all)-1 {
			prev, next := all[i-1], all[i+1]
			if (prev.FPR == p.FPR && p.FPR == next.FPR) || (prev.TPR == p.TPR && p.TPR == next.TPR) {
				continue
			}
		}
		curve = append(curve, p)
	}
	return curve, true
}

// AveragePrecision summarizes the precision-recall curve as the
// recall-weighted mean of precision at each distinct score threshold. It
// is undefined without outliers.
func AveragePrecision(labels []models.Label, scores models.ScoreVector) (float64, bool) {
	if len(labels) != len(scores) || len(labels) == 0 {
		return 0, false
	}
	idx := make([]int, len(scores))
	pos := 0
	for i := range idx {
		idx[i] = i
		if labels[i] == models.LabelOutlier {
			pos++
		}
	}
	if pos == 0 {
		return 0, false
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })

	var ap, prevRecall float64
	tp, seen := 0, 0
	for i := 0; i < len(idx); {
		// Consume every row sharing this threshold
		j := i
		for j < len(idx) && scores[idx[j]] == scores[idx[i]] {
			if labels[idx[j]] == models.LabelOutlier {
				tp++
			}
			seen++
			j++
		}
		recall := float64(tp) / float64(pos)
		precision := float64(tp) / float64(seen)
		ap += (recall - prevRecall) * precision
		prevRecall = recall
		i = j
	}
	return ap, true
}
