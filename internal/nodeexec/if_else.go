package nodeexec

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/flowmesh/engine/internal/domain"
	"github.com/flowmesh/engine/internal/utils"
)

// IfElseConfig is the typed shape of an if_else node's config map.
type IfElseConfig struct {
	ConditionType string `json:"conditionType"`
	FieldPath     string `json:"fieldPath"`
	CompareValue  any    `json:"compareValue"`
	CaseSensitive bool   `json:"caseSensitive"`
}

// IfElseExecutor evaluates one condition against a path in the accumulated
// data and produces a branch label for the Graph Executor's edge routing.
type IfElseExecutor struct{}

func (e *IfElseExecutor) Type() string { return domain.NodeTypeIfElse }

func (e *IfElseExecutor) Execute(_ context.Context, node *domain.Node, labelToID map[string]string, input map[string]any, allResults map[string]domain.NodeResult) (domain.NodeResult, error) {
	cfg, err := ParseConfig[IfElseConfig](node.Config)
	if err != nil {
		return nil, &domain.ValidationError{Field: "config", Message: err.Error()}
	}
	cfg.ConditionType = utils.DefaultValue(cfg.ConditionType, "equals")
	cfg.FieldPath = utils.DefaultValue(cfg.FieldPath, "output.text")

	var (
		result bool
		actual any
	)
	if cfg.ConditionType == "expression" {
		expression, _ := cfg.CompareValue.(string)
		var exprErr error
		result, exprErr = evaluateExpression(expression, labelToID, allResults, input)
		if exprErr != nil {
			return nil, &domain.ValidationError{Field: "compareValue", Message: exprErr.Error()}
		}
		actual = expression
	} else {
		data, rest := resolveFieldSource(cfg.FieldPath, labelToID, allResults, input)
		found := false
		actual, found = getByPath(data, rest)
		if !found && cfg.ConditionType != "exists" && cfg.ConditionType != "is_empty" {
			actual = ""
		}
		result = evaluateCondition(cfg.ConditionType, actual, cfg.CompareValue, cfg.CaseSensitive, found)
	}

	branch := "false"
	if result {
		branch = "true"
	}

	out := domain.NodeResult{}
	for k, v := range input {
		out[k] = v
	}
	out["success"] = true
	out["branch"] = branch
	out["if_else_result"] = map[string]any{
		"condition_met": result,
		"checked_value": fmt.Sprintf("%v", actual),
		"condition":     fmt.Sprintf("%s %s %v", cfg.FieldPath, cfg.ConditionType, cfg.CompareValue),
		"node_id":       node.ID,
	}
	return out, nil
}

func evaluateCondition(conditionType string, actual, compare any, caseSensitive bool, found bool) bool {
	switch conditionType {
	case "exists":
		return found
	case "is_empty":
		return !found || strings.TrimSpace(fmt.Sprintf("%v", actual)) == ""
	case "is_not_empty":
		return found && strings.TrimSpace(fmt.Sprintf("%v", actual)) != ""
	case "greater", "greater_equal", "less", "less_equal":
		a, aErr := toFloat(actual)
		b, bErr := toFloat(compare)
		if aErr != nil || bErr != nil {
			a, b = 0, 0
		}
		switch conditionType {
		case "greater":
			return a > b
		case "greater_equal":
			return a >= b
		case "less":
			return a < b
		case "less_equal":
			return a <= b
		}
	case "regex":
		re, err := regexp.Compile(fmt.Sprintf("%v", compare))
		if err != nil {
			return false
		}
		return re.MatchString(fmt.Sprintf("%v", actual))
	default:
		actualStr := fmt.Sprintf("%v", actual)
		compareStr := fmt.Sprintf("%v", compare)
		if !caseSensitive {
			actualStr = strings.ToLower(actualStr)
			compareStr = strings.ToLower(compareStr)
		}
		switch conditionType {
		case "equals":
			return actualStr == compareStr
		case "not_equals":
			return actualStr != compareStr
		case "contains":
			return strings.Contains(actualStr, compareStr)
		case "not_contains":
			return !strings.Contains(actualStr, compareStr)
		}
	}
	return false
}

// compiledExpressions caches compiled expr-lang programs by source text, so
// a condition evaluated on every loop iteration is parsed only once.
var compiledExpressions sync.Map // string -> *vm.Program

// evaluateExpression evaluates an expr-lang boolean expression against the
// run's accumulated results and raw input, exposed to the expression as
// `input` plus one variable per node label/id.
func evaluateExpression(expression string, labelToID map[string]string, allResults map[string]domain.NodeResult, input map[string]any) (bool, error) {
	if strings.TrimSpace(expression) == "" {
		return false, fmt.Errorf("expression condition requires a non-empty compareValue")
	}

	vars := make(map[string]any, len(allResults)+1)
	vars["input"] = input
	for label, nodeID := range labelToID {
		if result, ok := allResults[nodeID]; ok {
			vars[label] = map[string]any(result)
		}
	}
	for nodeID, result := range allResults {
		if _, already := vars[nodeID]; !already {
			vars[nodeID] = map[string]any(result)
		}
	}

	program, err := compileExpression(expression)
	if err != nil {
		return false, err
	}

	out, err := expr.Run(program, vars)
	if err != nil {
		return false, fmt.Errorf("evaluate expression %q: %w", expression, err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q did not evaluate to a boolean, got %T", expression, out)
	}
	return b, nil
}

func compileExpression(expression string) (*vm.Program, error) {
	if cached, ok := compiledExpressions.Load(expression); ok {
		return cached.(*vm.Program), nil
	}
	program, err := expr.Compile(expression, expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile expression %q: %w", expression, err)
	}
	compiledExpressions.Store(expression, program)
	return program, nil
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	case string:
		return strconv.ParseFloat(t, 64)
	default:
		return 0, fmt.Errorf("not a number: %v", v)
	}
}
