package domain

import "fmt"

// ValidationError reports a structural problem with a workflow graph found
// before execution starts: duplicate labels, an unknown node type, a
// malformed body template.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// ResolverMissError is raised when a template references a node id or label
// that does not exist in the current result pool. Path misses inside an
// otherwise-resolved node are not errors; they resolve to an empty string.
type ResolverMissError struct {
	Identifier string
}

func (e *ResolverMissError) Error() string {
	return fmt.Sprintf("node %q not found", e.Identifier)
}

// ExternalServiceError wraps a failure from an LLM or outbound HTTP call.
type ExternalServiceError struct {
	Service string
	Cause   error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Cause)
}

func (e *ExternalServiceError) Unwrap() error { return e.Cause }

// GotoOverflowError is raised when a :goto edge fires more times than
// config.maxGotoIterations allows.
type GotoOverflowError struct {
	Source, Target string
	Limit          int
}

func (e *GotoOverflowError) Error() string {
	return fmt.Sprintf("goto limit (%d) exceeded for %s->%s", e.Limit, e.Source, e.Target)
}

// SessionNotFoundError is returned by a dispatcher callback that names an
// unknown session_id.
type SessionNotFoundError struct {
	SessionID string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("dispatcher session %q not found", e.SessionID)
}

// WorkflowNotFoundError is returned by the store and by trigger layers when
// the named workflow does not exist.
type WorkflowNotFoundError struct {
	ID string
}

func (e *WorkflowNotFoundError) Error() string {
	return fmt.Sprintf("workflow %q not found", e.ID)
}

// WorkflowUnpublishedError is returned by trigger layers (timer, webhook)
// refusing to fire against a draft workflow.
type WorkflowUnpublishedError struct {
	ID string
}

func (e *WorkflowUnpublishedError) Error() string {
	return fmt.Sprintf("workflow %q is not published", e.ID)
}

// WorkflowExistsError is returned by the store on a duplicate create.
type WorkflowExistsError struct {
	ID string
}

func (e *WorkflowExistsError) Error() string {
	return fmt.Sprintf("workflow %q already exists", e.ID)
}

// WebhookNotFoundError is returned when no published workflow claims the
// given webhook id in any webhook_trigger node.
type WebhookNotFoundError struct {
	ID string
}

func (e *WebhookNotFoundError) Error() string {
	return fmt.Sprintf("webhook %q not found", e.ID)
}
