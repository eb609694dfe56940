package nodeexec

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/flowmesh/engine/internal/domain"
	"github.com/flowmesh/engine/internal/utils"
)

// JoinConfig is the typed shape of a join node's config map.
type JoinConfig struct {
	MergeStrategy string `json:"mergeStrategy"`
	Separator     string `json:"separator"`
}

// JoinExecutor is the fan-in point: the Graph Executor hands it
// input["inputs"] already populated with every expected source's result.
type JoinExecutor struct{}

func (e *JoinExecutor) Type() string { return domain.NodeTypeJoin }

func (e *JoinExecutor) Execute(_ context.Context, node *domain.Node, _ map[string]string, input map[string]any, _ map[string]domain.NodeResult) (domain.NodeResult, error) {
	cfg, err := ParseConfig[JoinConfig](node.Config)
	if err != nil {
		return nil, &domain.ValidationError{Field: "config", Message: err.Error()}
	}
	cfg.MergeStrategy = utils.DefaultValue(cfg.MergeStrategy, "combine_text")
	if cfg.Separator == "" {
		cfg.Separator = "\n\n---\n\n"
	} else {
		cfg.Separator = strings.ReplaceAll(cfg.Separator, "\\n", "\n")
	}

	inputsRaw, _ := input["inputs"].(map[string]any)
	if len(inputsRaw) == 0 {
		return domain.NodeResult{"success": false, "join_result": map[string]any{"error": "No inputs to join"}}, nil
	}

	sourceIDs := make([]string, 0, len(inputsRaw))
	inputs := make(map[string]map[string]any, len(inputsRaw))
	for id, v := range inputsRaw {
		m, _ := asMapAny(v)
		inputs[id] = m
		sourceIDs = append(sourceIDs, id)
	}
	sort.Strings(sourceIDs)

	if len(sourceIDs) == 1 {
		return domain.NodeResult(inputs[sourceIDs[0]]), nil
	}

	first := inputs[sourceIDs[0]]
	others := make([]map[string]any, 0, len(sourceIDs)-1)
	for _, id := range sourceIDs[1:] {
		others = append(others, inputs[id])
	}

	common := map[string]any{}
	for key, val := range first {
		sharedByAll := true
		for _, other := range others {
			ov, ok := other[key]
			if !ok || !deepEqual(ov, val) {
				sharedByAll = false
				break
			}
		}
		if sharedByAll {
			common[key] = val
		}
	}

	uniquePerSource := make(map[string]map[string]any, len(sourceIDs))
	for _, id := range sourceIDs {
		unique := map[string]any{}
		for k, v := range inputs[id] {
			if _, isCommon := common[k]; !isCommon {
				unique[k] = v
			}
		}
		uniquePerSource[id] = unique
	}

	var output map[string]any
	switch cfg.MergeStrategy {
	case "combine_text":
		parts := make([]string, 0, len(sourceIDs))
		for _, id := range sourceIDs {
			parts = append(parts, fmt.Sprintf("=== Source %s ===\n%s", id, extractText(uniquePerSource[id])))
		}
		output = map[string]any{
			"text":         strings.Join(parts, cfg.Separator),
			"source_count": len(sourceIDs),
		}
	case "merge_json":
		b, _ := json.MarshalIndent(uniquePerSource, "", "  ")
		output = map[string]any{
			"json":         uniquePerSource,
			"text":         string(b),
			"source_count": len(sourceIDs),
		}
	default:
		return nil, &domain.ValidationError{Field: "mergeStrategy", Message: "unknown merge strategy: " + cfg.MergeStrategy}
	}

	out := domain.NodeResult{}
	for k, v := range common {
		out[k] = v
	}
	out["success"] = true
	out["output"] = output
	out["join_result"] = map[string]any{
		"sources": uniquePerSource,
		"metadata": map[string]any{
			"source_count":   len(sourceIDs),
			"source_ids":     sourceIDs,
			"merge_strategy": cfg.MergeStrategy,
		},
	}
	return out, nil
}

func asMapAny(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case domain.NodeResult:
		return map[string]any(t), true
	default:
		return map[string]any{}, false
	}
}

func deepEqual(a, b any) bool {
	ab, _ := json.Marshal(a)
	bb, _ := json.Marshal(b)
	return string(ab) == string(bb)
}

// extractText recursively hunts for the most sensible text representation
// of a join branch's unique data, matching the precedence a merged text
// summary should read naturally in.
func extractText(data map[string]any) string {
	if s, ok := data["text"].(string); ok {
		return s
	}
	if out, ok := data["output"].(map[string]any); ok {
		if s, ok := out["text"].(string); ok {
			return s
		}
	}
	for _, v := range data {
		if nested, ok := v.(map[string]any); ok {
			if s := extractText(nested); s != "" {
				return s
			}
		}
		if s, ok := v.(string); ok {
			return s
		}
	}
	b, _ := json.MarshalIndent(data, "", "  ")
	return string(b)
}
