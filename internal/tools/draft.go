package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lexhub/agentrun/internal/store"
	"github.com/lexhub/agentrun/pkg/schema"
)

const draftDocumentInputSchema = `{
  "type": "object",
  "properties": {
    "template_id": {"type": "string", "description": "Template to use"},
    "matter_id": {"type": "string", "description": "Matter context"},
    "variables": {"type": "object", "description": "Template variables"}
  },
  "required": ["template_id"]
}`

// DraftDocumentTool implements "draft_document": loads a drafting template
// from the database and asks the LLM orchestrator to fill it in. A missing
// template fails the invocation; there is no retry.
type DraftDocumentTool struct {
	client  *Client
	baseURL string
	store   store.Store
}

func NewDraftDocumentTool(client *Client, baseURL string, s store.Store) *DraftDocumentTool {
	return &DraftDocumentTool{client: client, baseURL: baseURL, store: s}
}

func (t *DraftDocumentTool) Name() string { return "draft_document" }

func (t *DraftDocumentTool) Schema() ToolSchema {
	return ToolSchema{
		Description: "Draft a new document based on templates",
		InputSchema: json.RawMessage(draftDocumentInputSchema),
	}
}

func (t *DraftDocumentTool) Invoke(ctx context.Context, input ToolInput) (*ToolOutput, error) {
	templateID := stringParam(input.Params, "template_id", "")

	tpl, err := t.store.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeToolExecution, "template %q not found", templateID).WithCause(err)
	}

	variables := map[string]any{}
	if v, ok := input.Params["variables"].(map[string]any); ok {
		variables = v
	}
	varsJSON, _ := json.Marshal(variables)

	prompt := fmt.Sprintf("Generate a document using this template:\n%s\n\nVariables: %s",
		tpl.Content, string(varsJSON))

	data, err := t.client.PostJSON(ctx, t.baseURL+"/api/v1/complete", map[string]any{
		"task_type":   "drafting",
		"prompt":      prompt,
		"matter_id":   input.Params["matter_id"],
		"temperature": 0.3,
	}, input.Auth)
	if err != nil {
		return nil, err
	}
	return &ToolOutput{Data: data}, nil
}
