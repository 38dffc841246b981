// Package score reduces a run's results into counts, a weighted
// score, coverage and a ranked failure list.
package score

import (
	"sort"
	"time"

	"github.com/hostlint/hostlint/internal/models"
)

// WarnCredit is the fraction of a rule's severity weight that a WARN
// still earns. Half credit: the check ran and the finding is advisory.
const WarnCredit = 0.5

// TopFailureLimit bounds the ranked failure list in the summary.
const TopFailureLimit = 10

// Summarize is a pure reduction over the result list; it never
// mutates the results and is independent of their completion order.
func Summarize(results []models.Result, level string) models.Summary {
	counts := make(map[models.Status]int)
	var totalWeight, eligibleWeight, weightedPass float64
	var durationTotal time.Duration
	var failures []models.Result

	for _, res := range results {
		counts[res.Status]++
		totalWeight += res.Weight
		durationTotal += res.Duration

		if res.Status != models.StatusSkip {
			eligibleWeight += res.Weight
			switch res.Status {
			case models.StatusPass:
				weightedPass += res.Weight
			case models.StatusWarn:
				weightedPass += res.Weight * WarnCredit
			}
		}
		switch res.Status {
		case models.StatusFail, models.StatusUndef, models.StatusWarn:
			failures = append(failures, res)
		}
	}

	coverage := 1.0
	if totalWeight > 0 {
		coverage = eligibleWeight / totalWeight
	}
	scoreValue := 100.0
	if eligibleWeight > 0 {
		scoreValue = weightedPass / eligibleWeight * 100.0
	}

	return models.Summary{
		Level:          level,
		Total:          len(results),
		Counts:         counts,
		Score:          scoreValue,
		Coverage:       coverage,
		WeightedPass:   weightedPass,
		EligibleWeight: eligibleWeight,
		TotalWeight:    totalWeight,
		TopFailures:    rankFailures(failures),
		DurationTotal:  durationTotal,
		GeneratedAt:    time.Now(),
	}
}

// rankFailures orders by status badness, then severity weight, then
// id ascending for determinism, truncated to TopFailureLimit.
func rankFailures(failures []models.Result) []models.FailureRef {
	sort.Slice(failures, func(i, j int) bool {
		a, b := failures[i], failures[j]
		if a.Status.Priority() != b.Status.Priority() {
			return a.Status.Priority() > b.Status.Priority()
		}
		if a.Weight != b.Weight {
			return a.Weight > b.Weight
		}
		return a.ID < b.ID
	})
	if len(failures) > TopFailureLimit {
		failures = failures[:TopFailureLimit]
	}
	refs := make([]models.FailureRef, len(failures))
	for i, res := range failures {
		refs[i] = models.FailureRef{
			ID:       res.ID,
			Name:     res.Name,
			Module:   res.Module,
			Status:   res.Status,
			Severity: res.Severity,
			Weight:   res.Weight,
			Reason:   res.Reason,
		}
	}
	return refs
}
