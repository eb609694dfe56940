package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCollector_RecordWorkflowExecution(t *testing.T) {
	mc := NewMetricsCollector()

	mc.RecordWorkflowExecution("wf1", 100*time.Millisecond, true)
	mc.RecordWorkflowExecution("wf1", 300*time.Millisecond, false)

	m := mc.GetWorkflowMetrics("wf1")
	require.NotNil(t, m)
	assert.Equal(t, 2, m.ExecutionCount)
	assert.Equal(t, 1, m.SuccessCount)
	assert.Equal(t, 1, m.FailureCount)
	assert.Equal(t, 100*time.Millisecond, m.MinDuration)
	assert.Equal(t, 300*time.Millisecond, m.MaxDuration)
	assert.Equal(t, 0.5, mc.GetSuccessRate("wf1"))
}

func TestMetricsCollector_GetNodeMetricsByTypeAggregates(t *testing.T) {
	mc := NewMetricsCollector()

	mc.RecordNodeExecution("n1", "gigachat", "n1", 50*time.Millisecond, true, false)
	mc.RecordNodeExecution("n2", "gigachat", "n2", 150*time.Millisecond, true, true)
	mc.RecordNodeExecution("n3", "webhook", "n3", 10*time.Millisecond, false, false)

	agg := mc.GetNodeMetricsByType("gigachat")
	require.NotNil(t, agg)
	assert.Equal(t, 2, agg.ExecutionCount)
	assert.Equal(t, 1, agg.RetryCount)
	assert.Equal(t, 50*time.Millisecond, agg.MinDuration)
	assert.Equal(t, 150*time.Millisecond, agg.MaxDuration)

	assert.Nil(t, mc.GetNodeMetricsByType("unknown"))
}

func TestMetricsCollector_RecordAIRequestAccumulatesCost(t *testing.T) {
	mc := NewMetricsCollector()

	mc.RecordAIRequest(1000, 500, 200*time.Millisecond)
	ai := mc.GetAIMetrics()

	assert.Equal(t, 1, ai.TotalRequests)
	assert.Equal(t, 1500, ai.TotalTokens)
	assert.InDelta(t, 0.03+0.03, ai.EstimatedCostUSD, 0.0001)
}

func TestMetricsCollector_ResetClearsEverything(t *testing.T) {
	mc := NewMetricsCollector()
	mc.RecordWorkflowExecution("wf1", time.Second, true)
	mc.RecordNodeExecution("n1", "gigachat", "n1", time.Second, true, false)

	mc.Reset()

	assert.Nil(t, mc.GetWorkflowMetrics("wf1"))
	assert.Empty(t, mc.GetAllNodeMetrics())
	assert.Equal(t, 0, mc.GetSummary().TotalWorkflows)
}

func TestMetricsCollector_SnapshotReflectsCurrentState(t *testing.T) {
	mc := NewMetricsCollector()
	mc.RecordWorkflowExecution("wf1", time.Second, true)

	snap := mc.Snapshot()
	require.Contains(t, snap.WorkflowMetrics, "wf1")
	assert.Equal(t, 1, snap.Summary.TotalWorkflows)
}
