package nodeexec

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flowmesh/engine/internal/domain"
)

// LoopConfig is the typed shape of a loop node's config map.
type LoopConfig struct {
	InputArrayPath  string `json:"inputArrayPath"`
	SubWorkflowID   string `json:"subWorkflowId"`
	ExecutionMode   string `json:"executionMode"`
	MaxConcurrent   int    `json:"maxConcurrent"`
	BatchSize       int    `json:"batchSize"`
	SkipErrors      *bool  `json:"skipErrors"`
}

func (c *LoopConfig) skipErrors() bool {
	if c.SkipErrors == nil {
		return true
	}
	return *c.SkipErrors
}

// LoopExecutor fetches an array at a dotted path and runs a named
// sub-workflow once per element, sequentially or bounded-parallel.
type LoopExecutor struct {
	Fetcher domain.WorkflowFetcher
	Runner  domain.WorkflowRunner
}

func (e *LoopExecutor) Type() string { return domain.NodeTypeLoop }

func (e *LoopExecutor) Execute(ctx context.Context, node *domain.Node, labelToID map[string]string, input map[string]any, allResults map[string]domain.NodeResult) (domain.NodeResult, error) {
	start := time.Now()
	cfg, err := ParseConfig[LoopConfig](node.Config)
	if err != nil {
		return nil, &domain.ValidationError{Field: "config", Message: err.Error()}
	}
	if cfg.InputArrayPath == "" {
		cfg.InputArrayPath = "items"
	}
	if cfg.ExecutionMode == "" {
		cfg.ExecutionMode = "sequential"
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}
	if cfg.SubWorkflowID == "" {
		return nil, &domain.ValidationError{Field: "subWorkflowId", Message: "loop node requires subWorkflowId"}
	}

	data, rest := resolveFieldSource(cfg.InputArrayPath, labelToID, allResults, input)
	arrayVal, found := getByPath(data, rest)
	if !found {
		if j, ok := input["json"].([]any); ok {
			arrayVal, found = j, true
		}
	}
	if !found {
		return nil, &domain.ValidationError{Field: "inputArrayPath", Message: "loop node: no data found at path '" + cfg.InputArrayPath + "'"}
	}
	items, ok := arrayVal.([]any)
	if !ok {
		return nil, &domain.ValidationError{Field: "inputArrayPath", Message: "loop node: value at '" + cfg.InputArrayPath + "' is not a list"}
	}

	if _, err := e.Fetcher.Get(ctx, cfg.SubWorkflowID); err != nil {
		return nil, fmt.Errorf("loop node: sub-workflow %q not found: %w", cfg.SubWorkflowID, err)
	}

	batches := batchItems(items, cfg.BatchSize)
	results := make([]map[string]any, 0, len(items))
	idx := 0
	for _, batch := range batches {
		batchResults, err := e.runBatch(ctx, batch, idx, cfg)
		if err != nil {
			return nil, err
		}
		results = append(results, batchResults...)
		idx += len(batch)
	}

	successCount := 0
	for _, r := range results {
		if s, _ := r["success"].(bool); s {
			successCount++
		}
	}

	meta := baseMeta(domain.NodeTypeLoop, true, time.Since(start).Milliseconds())
	return domain.NodeResult{
		"success": true,
		"results": results,
		"summary": map[string]any{
			"total":           len(items),
			"executed":        len(results),
			"success_count":   successCount,
			"error_count":     len(results) - successCount,
			"execution_mode":  cfg.ExecutionMode,
		},
		"output": map[string]any{
			"text": fmt.Sprintf("Processed %d items with %d successes and %d errors", len(items), successCount, len(results)-successCount),
			"json": results,
		},
		"meta": meta,
	}, nil
}

func batchItems(items []any, batchSize int) [][]any {
	if batchSize <= 0 || batchSize >= len(items) {
		return [][]any{items}
	}
	var batches [][]any
	for i := 0; i < len(items); i += batchSize {
		end := i + batchSize
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[i:end])
	}
	return batches
}

func (e *LoopExecutor) runBatch(ctx context.Context, batch []any, startIdx int, cfg *LoopConfig) ([]map[string]any, error) {
	results := make([]map[string]any, len(batch))

	runOne := func(item any, idx int) map[string]any {
		subInput := map[string]any{"item": item, "loop_index": idx}
		res, err := e.Runner.RunWorkflow(ctx, cfg.SubWorkflowID, subInput)
		if err != nil {
			return map[string]any{"success": false, "result": nil, "item": item, "index": idx, "error": err.Error()}
		}
		if !res.Success {
			return map[string]any{"success": false, "result": res.ResultPool, "item": item, "index": idx, "error": res.Error}
		}
		return map[string]any{"success": true, "result": res.ResultPool, "item": item, "index": idx, "error": nil}
	}

	if cfg.ExecutionMode != "parallel" {
		for i, item := range batch {
			results[i] = runOne(item, startIdx+i)
			if ok, _ := results[i]["success"].(bool); !ok && !cfg.skipErrors() {
				return nil, fmt.Errorf("loop item %d: %v", startIdx+i, results[i]["error"])
			}
		}
		return results, nil
	}

	sem := make(chan struct{}, cfg.MaxConcurrent)
	var wg sync.WaitGroup
	var firstErr error
	var mu sync.Mutex
	for i, item := range batch {
		i, item := i, item
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			r := runOne(item, startIdx+i)
			if ok, _ := r["success"].(bool); !ok && !cfg.skipErrors() {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("loop item %d: %v", startIdx+i, r["error"])
				}
				mu.Unlock()
			}
			results[i] = r
		}()
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}
