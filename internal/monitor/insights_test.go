package monitor

import (
	"testing"

	"taskpulse/internal/recovery"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func titles(insights []Insight) []string {
	out := make([]string, 0, len(insights))
	for _, i := range insights {
		out = append(out, i.Title)
	}
	return out
}

func TestInsightsLowSuccessRate(t *testing.T) {
	report := &Report{
		Overall: &TaskMetrics{TotalTasks: 10, Successful: 8, SuccessRate: 80},
		Workers: []WorkerMetrics{{}, {}},
	}
	insights := generateInsights(report)
	assert.Contains(t, titles(insights), "Low success rate")
}

func TestInsightsHealthySuccessRate(t *testing.T) {
	report := &Report{
		Overall: &TaskMetrics{TotalTasks: 100, Successful: 97, SuccessRate: 97},
		Workers: []WorkerMetrics{{}, {}},
	}
	insights := generateInsights(report)
	require.Len(t, insights, 1)
	assert.Equal(t, "positive", insights[0].Type)
	assert.Equal(t, "Healthy success rate", insights[0].Title)
}

func TestInsightsMidRangeSuccessRateSilent(t *testing.T) {
	// Between the warning and positive thresholds, nothing fires
	report := &Report{
		Overall: &TaskMetrics{TotalTasks: 100, Successful: 92, SuccessRate: 92},
		Workers: []WorkerMetrics{{}, {}},
	}
	assert.Empty(t, generateInsights(report))
}

func TestInsightsSlowExecution(t *testing.T) {
	report := &Report{
		Overall: &TaskMetrics{TotalTasks: 5, SuccessRate: 92, AvgExecutionSeconds: 450},
		Workers: []WorkerMetrics{{}, {}},
	}
	assert.Contains(t, titles(generateInsights(report)), "High average execution time")
}

func TestInsightsWorkerCount(t *testing.T) {
	noWorkers := generateInsights(&Report{})
	require.Len(t, noWorkers, 1)
	assert.Equal(t, "critical", noWorkers[0].Type)
	assert.Equal(t, "No active workers", noWorkers[0].Title)

	oneWorker := generateInsights(&Report{Workers: []WorkerMetrics{{}}})
	require.Len(t, oneWorker, 1)
	assert.Equal(t, "warning", oneWorker[0].Type)
	assert.Equal(t, "Low worker count", oneWorker[0].Title)

	twoWorkers := generateInsights(&Report{Workers: []WorkerMetrics{{}, {}}})
	assert.Empty(t, twoWorkers)
}

func TestInsightsHighFailureRate(t *testing.T) {
	report := &Report{
		Workers:  []WorkerMetrics{{}, {}},
		Failures: &recovery.Statistics{TotalFailures: 144, FailureRate: 6, WindowHours: 24},
	}
	insights := generateInsights(report)
	require.Len(t, insights, 1)
	assert.Equal(t, "High failure rate", insights[0].Title)
	assert.Equal(t, "warning", insights[0].Type)
}

func TestInsightsEmptyWindowOnlyWorkerRules(t *testing.T) {
	// No task data: reliability rules stay silent
	report := &Report{
		Overall: &TaskMetrics{},
		Workers: []WorkerMetrics{{}, {}},
	}
	assert.Empty(t, generateInsights(report))
}
