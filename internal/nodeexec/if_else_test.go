package nodeexec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/engine/internal/domain"
)

func TestIfElseExecutor_EqualsCondition(t *testing.T) {
	e := &IfElseExecutor{}
	node := &domain.Node{
		ID: "cond1",
		Config: map[string]any{
			"conditionType": "equals",
			"fieldPath":     "status",
			"compareValue":  "ok",
		},
	}
	input := map[string]any{"status": "ok"}

	result, err := e.Execute(context.Background(), node, map[string]string{}, input, map[string]domain.NodeResult{})
	require.NoError(t, err)
	assert.Equal(t, "true", result["branch"])
}

func TestIfElseExecutor_ExpressionCondition(t *testing.T) {
	e := &IfElseExecutor{}
	node := &domain.Node{
		ID: "cond1",
		Config: map[string]any{
			"conditionType": "expression",
			"compareValue":  `input.count > 3`,
		},
	}
	input := map[string]any{"count": 5}

	result, err := e.Execute(context.Background(), node, map[string]string{}, input, map[string]domain.NodeResult{})
	require.NoError(t, err)
	assert.Equal(t, "true", result["branch"])
}

func TestIfElseExecutor_ExpressionConditionReferencesNodeResult(t *testing.T) {
	e := &IfElseExecutor{}
	node := &domain.Node{
		ID: "cond1",
		Config: map[string]any{
			"conditionType": "expression",
			"compareValue":  `Classifier.output.text == "spam"`,
		},
	}
	allResults := map[string]domain.NodeResult{
		"n1": {"output": map[string]any{"text": "spam"}},
	}
	labelToID := map[string]string{"Classifier": "n1"}

	result, err := e.Execute(context.Background(), node, labelToID, map[string]any{}, allResults)
	require.NoError(t, err)
	assert.Equal(t, "true", result["branch"])
}

func TestIfElseExecutor_ExpressionConditionRejectsEmpty(t *testing.T) {
	e := &IfElseExecutor{}
	node := &domain.Node{
		ID:     "cond1",
		Config: map[string]any{"conditionType": "expression"},
	}

	_, err := e.Execute(context.Background(), node, map[string]string{}, map[string]any{}, map[string]domain.NodeResult{})
	require.Error(t, err)
	var validationErr *domain.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestIfElseExecutor_GreaterCondition(t *testing.T) {
	e := &IfElseExecutor{}
	node := &domain.Node{
		ID: "cond1",
		Config: map[string]any{
			"conditionType": "greater",
			"fieldPath":     "score",
			"compareValue":  10,
		},
	}

	result, err := e.Execute(context.Background(), node, map[string]string{}, map[string]any{"score": 20}, map[string]domain.NodeResult{})
	require.NoError(t, err)
	assert.Equal(t, "true", result["branch"])
}
