package dispatcher

// Kind selects between the Dispatcher's two execution modes.
type Kind string

const (
	KindRouter       Kind = "router"
	KindOrchestrator Kind = "orchestrator"
)

// Route is one entry of a router dispatcher's routes map.
type Route struct {
	WorkflowID string   `json:"workflow_id"`
	Keywords   []string `json:"keywords"`
}

// AvailableWorkflow describes one tool an orchestrator dispatcher may plan
// against.
type AvailableWorkflow struct {
	Description string `json:"description"`
}

// Config is the typed shape of a dispatcher node's config map. Both modes
// share one struct since a node carries exactly one dispatcher_type at a
// time; unused fields for the other mode are simply left zero.
type Config struct {
	DispatcherType Kind             `json:"dispatcherType"`
	UseAI          *bool            `json:"useAI"`
	Prompt         string           `json:"dispatcherPrompt"`
	Routes         map[string]Route `json:"routes"`

	UserQueryTemplate  string                       `json:"userQueryTemplate"`
	IsAgentMode        bool                         `json:"is_agent_mode"`
	AvailableWorkflows map[string]AvailableWorkflow `json:"availableWorkflows"`
}

func (c *Config) useAI() bool {
	if c.UseAI == nil {
		return true
	}
	return *c.UseAI
}
