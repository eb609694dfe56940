// Package webhookreg implements the Webhook Registry: it mints webhook ids
// and, at trigger time, finds the published workflow whose webhook_trigger
// node claims that id and fires it in the background.
package webhookreg

import (
	"context"
	"crypto/rand"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tmthrgd/go-hex"

	"github.com/flowmesh/engine/internal/domain"
)

// WorkflowLister gives the registry read access to every stored workflow, so
// Trigger can scan for the node claiming a given webhook id. Store implements
// this structurally.
type WorkflowLister interface {
	ListWorkflows(ctx context.Context) ([]domain.Workflow, error)
}

// Registry mints webhook ids and resolves incoming calls to a workflow run.
// It holds no webhook_id -> workflow mapping of its own: that mapping lives
// inside the workflow graph itself, in a webhook_trigger node's
// config.webhookId, so Create's result is only ever a suggestion the UI
// chooses to embed.
type Registry struct {
	lister  WorkflowLister
	runner  domain.WorkflowRunner
	baseURL string
}

// New builds a Registry. baseURL prefixes the url returned by Create (e.g.
// "https://engine.example.com"); it may be empty, in which case Create
// returns a path-only url.
func New(lister WorkflowLister, runner domain.WorkflowRunner, baseURL string) *Registry {
	return &Registry{lister: lister, runner: runner, baseURL: baseURL}
}

// Create mints a new webhook id and the url a caller would POST to trigger
// it. It does not persist anything; the caller is expected to write the
// returned id into a webhook_trigger node's config.webhookId.
func (r *Registry) Create(workflowID, name string) (webhookID, url string) {
	webhookID = uuid.NewString()
	url = r.baseURL + "/api/v1/webhooks/" + webhookID + "?t=" + displayToken()
	log.Info().Str("webhook_id", webhookID).Str("workflow_id", workflowID).Str("name", name).Msg("webhookreg: minted webhook id")
	return webhookID, url
}

// displayToken is a short cosmetic hex suffix appended to the url returned
// by Create. It plays no part in lookup or authorization, which is always
// done by the UUID embedded in config.webhookId.
func displayToken() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "00000000"
	}
	return hex.EncodeToString(b[:])
}

// TriggerResult reports what happened to a webhook call before background
// execution (if any) was kicked off.
type TriggerResult struct {
	Status     int
	WorkflowID string
}

// Trigger resolves webhookID against every published workflow's
// webhook_trigger nodes. A match fires the workflow asynchronously,
// fire-and-forget, with initial_input = {body, headers, query_params}, and
// Trigger returns immediately with status 202. An unpublished match returns
// 403; no match anywhere returns 404.
func (r *Registry) Trigger(ctx context.Context, webhookID string, body map[string]any, headers map[string]string, queryParams map[string]string) (TriggerResult, error) {
	workflows, err := r.lister.ListWorkflows(ctx)
	if err != nil {
		return TriggerResult{}, err
	}

	var (
		matched     *domain.Workflow
		matchedNode *domain.Node
		foundAny    bool
	)
	unpublishedID := ""
	for i := range workflows {
		wf := &workflows[i]
		node, ok := wf.WebhookTriggerNodeByWebhookID(webhookID)
		if !ok {
			continue
		}
		foundAny = true
		unpublishedID = wf.ID
		if wf.Status == domain.StatusPublished {
			matched, matchedNode = wf, node
			break
		}
	}

	if matched == nil {
		if foundAny {
			return TriggerResult{Status: 403}, &domain.WorkflowUnpublishedError{ID: unpublishedID}
		}
		return TriggerResult{Status: 404}, &domain.WebhookNotFoundError{ID: webhookID}
	}

	initialInput := map[string]any{
		"body":         body,
		"headers":      headers,
		"query_params": queryParams,
	}
	workflowID := matched.ID
	nodeID := matchedNode.ID

	go func() {
		bgCtx := context.Background()
		result, err := r.runner.RunWorkflowFrom(bgCtx, workflowID, nodeID, initialInput)
		if err != nil {
			log.Error().Err(err).Str("webhook_id", webhookID).Str("workflow_id", workflowID).Msg("webhookreg: background run failed")
			return
		}
		if !result.Success {
			log.Error().Str("webhook_id", webhookID).Str("workflow_id", workflowID).Str("error", result.Error).Msg("webhookreg: background run reported failure")
			return
		}
		log.Info().Str("webhook_id", webhookID).Str("workflow_id", workflowID).Msg("webhookreg: background run completed")
	}()

	return TriggerResult{Status: 202, WorkflowID: workflowID}, nil
}
