package nodeexec

import (
	"strconv"
	"strings"

	"github.com/flowmesh/engine/internal/domain"
)

// resolveFieldSource picks between the accumulated result pool and the raw
// node input for a dotted config path such as "input.n" or "NodeLabel.json.0".
// A leading "input" segment selects the input map itself. If the path's
// first segment names a known label/id that has already produced a result,
// the walk continues against that result; otherwise it walks the input map
// directly.
func resolveFieldSource(path string, labelToID map[string]string, allResults map[string]domain.NodeResult, input map[string]any) (data any, rest string) {
	parts := strings.SplitN(path, ".", 2)
	head := parts[0]

	if head == "input" {
		if len(parts) == 2 {
			return input, parts[1]
		}
		return input, ""
	}

	nodeID, isLabel := labelToID[head]
	if !isLabel {
		nodeID = head
	}
	if result, ok := allResults[nodeID]; ok {
		if len(parts) == 2 {
			return map[string]any(result), parts[1]
		}
		return map[string]any(result), ""
	}
	return input, path
}

// getByPath walks a dotted path (with numeric segments treated as list
// indices) over a nested map/slice value, returning (nil, false) on any miss.
func getByPath(data any, path string) (any, bool) {
	if path == "" {
		return data, true
	}
	cur := data
	for _, key := range strings.Split(path, ".") {
		switch v := cur.(type) {
		case map[string]any:
			next, ok := v[key]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, false
			}
			cur = v[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}
