// Package template implements the engine's `{{path}}` expression language.
// It is a small hand-rolled tokenizer/expander, deliberately not a general
// expression engine: node.path expressions are not a host-language template
// format, and the grammar is narrow enough that a recursive scanner over the
// bracket form is simpler and safer than wiring in a third-party evaluator.
package template

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/flowmesh/engine/internal/domain"
)

// Source supplies the data an expression resolves against: the run's
// initial input, its accumulated result pool, and the label->id lookup.
type Source struct {
	InitialInput map[string]any
	LabelToID    map[string]string
	Lookup       func(nodeID string) (domain.NodeResult, bool)
}

// SourceFromRun adapts a *domain.WorkflowRun into a Source.
func SourceFromRun(run *domain.WorkflowRun) Source {
	return Source{
		InitialInput: run.InitialInput,
		LabelToID:    run.LabelToIDMap,
		Lookup:       run.Result,
	}
}

// Warner receives a human-readable note whenever resolution yields the
// empty-string fallback for a path miss. May be nil.
type Warner func(message string)

// Resolve expands every `{{ expr }}` occurrence in tmpl against src,
// replacing each with its rendered value. Unmatched expressions for an
// unknown node/label render as an inline error token; a missing field or
// out-of-range index renders as the empty string and calls warn.
func Resolve(tmpl string, src Source, warn Warner) string {
	var out strings.Builder
	i := 0
	for {
		start := strings.Index(tmpl[i:], "{{")
		if start == -1 {
			out.WriteString(tmpl[i:])
			break
		}
		start += i
		out.WriteString(tmpl[i:start])

		end := strings.Index(tmpl[start+2:], "}}")
		if end == -1 {
			// No closing brace: emit the rest verbatim, nothing more to scan.
			out.WriteString(tmpl[start:])
			break
		}
		end = start + 2 + end

		expr := tmpl[start+2 : end]
		rendered := resolveExpr(expr, src, warn)
		out.WriteString(rendered)

		i = end + 2
	}
	return out.String()
}

// Idempotent re-resolution: Resolve(Resolve(t, d), d) == Resolve(t, d) for
// templates whose output contains no further `{{...}}` markers, since a
// string with no "{{" occurrence passes through Resolve unchanged.

func resolveExpr(raw string, src Source, warn Warner) string {
	expr := stripWhitespace(raw)
	if expr == "" {
		return ""
	}

	head, segments := tokenize(expr)

	value, ok := resolveHead(head, src)
	if !ok {
		return "{{ERROR: Node '" + head + "' not found}}"
	}

	cur := value
	for _, seg := range segments {
		next, ok := step(cur, seg)
		if !ok {
			if warn != nil {
				warn("template: path miss resolving " + raw)
			}
			return ""
		}
		cur = next
	}

	return render(cur)
}

func stripWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type segmentKind int

const (
	segKey segmentKind = iota
	segIndex
)

type segment struct {
	kind segmentKind
	key  string
	idx  int
}

// tokenize splits a stripped expression into its head identifier and the
// list of trailing `.segment` / `[index]` path steps.
func tokenize(expr string) (head string, segments []segment) {
	i := 0
	for i < len(expr) && expr[i] != '.' && expr[i] != '[' {
		i++
	}
	head = expr[:i]

	for i < len(expr) {
		switch expr[i] {
		case '.':
			i++
			j := i
			for j < len(expr) && expr[j] != '.' && expr[j] != '[' {
				j++
			}
			segments = append(segments, segment{kind: segKey, key: expr[i:j]})
			i = j
		case '[':
			j := i + 1
			for j < len(expr) && expr[j] != ']' {
				j++
			}
			idxStr := expr[i+1 : j]
			idx, err := strconv.Atoi(idxStr)
			if err != nil {
				idx = -1
			}
			segments = append(segments, segment{kind: segIndex, idx: idx})
			if j < len(expr) {
				j++ // consume ']'
			}
			i = j
		default:
			// Malformed trailing content; stop scanning.
			i = len(expr)
		}
	}
	return head, segments
}

func resolveHead(head string, src Source) (any, bool) {
	if head == "input" {
		return map[string]any(src.InitialInput), true
	}

	nodeID := head
	if id, ok := src.LabelToID[head]; ok {
		nodeID = id
	}
	result, ok := src.Lookup(nodeID)
	if !ok {
		return nil, false
	}
	return map[string]any(result), true
}

func step(cur any, seg segment) (any, bool) {
	switch seg.kind {
	case segKey:
		if s, ok := asSlice(cur); ok {
			idx, err := strconv.Atoi(seg.key)
			if err != nil || idx < 0 || idx >= len(s) {
				return nil, false
			}
			return s[idx], true
		}
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		v, ok := m[seg.key]
		return v, ok
	case segIndex:
		s, ok := asSlice(cur)
		if !ok || seg.idx < 0 || seg.idx >= len(s) {
			return nil, false
		}
		return s[seg.idx], true
	}
	return nil, false
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func asSlice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

// render serializes a resolved value the way callers expect to embed it
// back into a surrounding JSON body template: mappings and sequences become
// compact JSON, scalars are stringified directly.
func render(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
