package tools

import "github.com/lexhub/agentrun/internal/store"

// Endpoints holds the base URLs of the downstream services used by the
// remote tools.
type Endpoints struct {
	MatterAPI       string
	LLMOrchestrator string
}

// RegisterBuiltins registers all built-in tools in the given registry.
func RegisterBuiltins(reg *Registry, client *Client, s store.Store, eps Endpoints) error {
	all := []Tool{
		NewSearchMatterTool(client, eps.MatterAPI),
		NewAnalyzeDocumentTool(client, eps.LLMOrchestrator),
		NewDraftDocumentTool(client, eps.LLMOrchestrator, s),
		NewSendNotificationTool(s),
		NewCreateEventTool(s),
		NewLLMCompleteTool(client, eps.LLMOrchestrator),
		NewRAGQueryTool(client, eps.LLMOrchestrator),
	}

	for _, t := range all {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}
