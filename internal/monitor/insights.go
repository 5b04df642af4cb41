package monitor

import "fmt"

// Insight thresholds. Tuned for a report-authoring workload where most
// jobs are renders and notifications measured in seconds.
const (
	lowSuccessRateThreshold  = 90.0
	goodSuccessRateThreshold = 95.0
	slowExecutionSeconds     = 300.0
	highFailuresPerHour      = 5.0
)

// generateInsights derives qualitative observations from an assembled
// report. Sections the report could not fill are simply skipped.
func generateInsights(report *Report) []Insight {
	insights := []Insight{}

	if overall := report.Overall; overall != nil && overall.TotalTasks > 0 {
		if overall.SuccessRate < lowSuccessRateThreshold {
			insights = append(insights, Insight{
				Type:           "warning",
				Category:       "reliability",
				Title:          "Low success rate",
				Description:    fmt.Sprintf("Only %.1f%% of %d tasks in the window succeeded.", overall.SuccessRate, overall.TotalTasks),
				Recommendation: "Review recent failure records and check whether a single task type or worker is responsible.",
			})
		} else if overall.SuccessRate >= goodSuccessRateThreshold {
			insights = append(insights, Insight{
				Type:           "positive",
				Category:       "reliability",
				Title:          "Healthy success rate",
				Description:    fmt.Sprintf("%.1f%% of %d tasks in the window succeeded.", overall.SuccessRate, overall.TotalTasks),
				Recommendation: "No action needed.",
			})
		}

		if overall.AvgExecutionSeconds > slowExecutionSeconds {
			insights = append(insights, Insight{
				Type:           "warning",
				Category:       "performance",
				Title:          "High average execution time",
				Description:    fmt.Sprintf("Tasks averaged %.0fs to complete.", overall.AvgExecutionSeconds),
				Recommendation: "Profile the slowest task types and consider splitting long renders into smaller jobs.",
			})
		}
	}

	switch activeWorkers := len(report.Workers); activeWorkers {
	case 0:
		insights = append(insights, Insight{
			Type:           "critical",
			Category:       "capacity",
			Title:          "No active workers",
			Description:    "The broker reports no worker processes; queued tasks will not run.",
			Recommendation: "Start or restart worker processes immediately.",
		})
	case 1:
		insights = append(insights, Insight{
			Type:           "warning",
			Category:       "capacity",
			Title:          "Low worker count",
			Description:    "Only one worker process is active; throughput and availability are at risk.",
			Recommendation: "Run at least two workers so a single crash does not stall the queue.",
		})
	}

	if failures := report.Failures; failures != nil && failures.FailureRate > highFailuresPerHour {
		insights = append(insights, Insight{
			Type:           "warning",
			Category:       "reliability",
			Title:          "High failure rate",
			Description:    fmt.Sprintf("%.1f failures per hour over the last %dh.", failures.FailureRate, failures.WindowHours),
			Recommendation: "Inspect the failure-type breakdown; sustained network or database errors usually point at a dependency outage.",
		})
	}

	return insights
}
