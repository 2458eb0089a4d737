package tools

import (
	"context"
	"encoding/json"
)

// Remote tools delegate to the matter API and the LLM orchestrator over HTTP.

// --- JSON Schemas ---

const searchMatterInputSchema = `{
  "type": "object",
  "properties": {
    "query": {"type": "string", "description": "Search query"},
    "matter_id": {"type": "string", "description": "Matter ID to search within"},
    "limit": {"type": "integer", "minimum": 1, "default": 10}
  },
  "required": ["query"]
}`

const analyzeDocumentInputSchema = `{
  "type": "object",
  "properties": {
    "source_id": {"type": "string", "description": "Document source ID"},
    "matter_id": {"type": "string"},
    "analysis_type": {"type": "string", "enum": ["comprehensive", "risk", "summary"], "default": "comprehensive"}
  },
  "required": ["source_id"]
}`

const llmCompleteInputSchema = `{
  "type": "object",
  "properties": {
    "prompt": {"type": "string", "description": "Prompt text"},
    "task_type": {"type": "string", "enum": ["analysis", "drafting", "research", "summarization", "qa"], "default": "qa"},
    "context": {"description": "Additional context"},
    "matter_id": {"type": "string"}
  },
  "required": ["prompt"]
}`

const ragQueryInputSchema = `{
  "type": "object",
  "properties": {
    "query": {"type": "string", "description": "Query text"},
    "matter_id": {"type": "string", "description": "Matter to query"},
    "top_k": {"type": "integer", "minimum": 1, "default": 5}
  },
  "required": ["query", "matter_id"]
}`

// --- SearchMatterTool ---

// SearchMatterTool implements "search_matter": full-text search within a
// matter's documents via the matter API.
type SearchMatterTool struct {
	client  *Client
	baseURL string
}

func NewSearchMatterTool(client *Client, baseURL string) *SearchMatterTool {
	return &SearchMatterTool{client: client, baseURL: baseURL}
}

func (t *SearchMatterTool) Name() string { return "search_matter" }

func (t *SearchMatterTool) Schema() ToolSchema {
	return ToolSchema{
		Description: "Search for information within a matter's documents",
		InputSchema: json.RawMessage(searchMatterInputSchema),
	}
}

func (t *SearchMatterTool) Invoke(ctx context.Context, input ToolInput) (*ToolOutput, error) {
	data, err := t.client.PostJSON(ctx, t.baseURL+"/api/v1/search", map[string]any{
		"query":     stringParam(input.Params, "query", ""),
		"matter_id": input.Params["matter_id"],
		"limit":     intParam(input.Params, "limit", 10),
	}, input.Auth)
	if err != nil {
		return nil, err
	}
	return &ToolOutput{Data: data}, nil
}

// --- AnalyzeDocumentTool ---

// AnalyzeDocumentTool implements "analyze_document": LLM analysis of a
// single document source.
type AnalyzeDocumentTool struct {
	client  *Client
	baseURL string
}

func NewAnalyzeDocumentTool(client *Client, baseURL string) *AnalyzeDocumentTool {
	return &AnalyzeDocumentTool{client: client, baseURL: baseURL}
}

func (t *AnalyzeDocumentTool) Name() string { return "analyze_document" }

func (t *AnalyzeDocumentTool) Schema() ToolSchema {
	return ToolSchema{
		Description: "Analyze a specific document for insights",
		InputSchema: json.RawMessage(analyzeDocumentInputSchema),
	}
}

func (t *AnalyzeDocumentTool) Invoke(ctx context.Context, input ToolInput) (*ToolOutput, error) {
	data, err := t.client.PostJSON(ctx, t.baseURL+"/api/v1/analyze", map[string]any{
		"source_id":     input.Params["source_id"],
		"matter_id":     input.Params["matter_id"],
		"analysis_type": stringParam(input.Params, "analysis_type", "comprehensive"),
	}, input.Auth)
	if err != nil {
		return nil, err
	}
	return &ToolOutput{Data: data}, nil
}

// --- LLMCompleteTool ---

// LLMCompleteTool implements "llm_complete": a raw completion call against
// the LLM orchestrator.
type LLMCompleteTool struct {
	client  *Client
	baseURL string
}

func NewLLMCompleteTool(client *Client, baseURL string) *LLMCompleteTool {
	return &LLMCompleteTool{client: client, baseURL: baseURL}
}

func (t *LLMCompleteTool) Name() string { return "llm_complete" }

func (t *LLMCompleteTool) Schema() ToolSchema {
	return ToolSchema{
		Description: "Call LLM for completion",
		InputSchema: json.RawMessage(llmCompleteInputSchema),
	}
}

func (t *LLMCompleteTool) Invoke(ctx context.Context, input ToolInput) (*ToolOutput, error) {
	data, err := t.client.PostJSON(ctx, t.baseURL+"/api/v1/complete", map[string]any{
		"task_type": stringParam(input.Params, "task_type", "qa"),
		"prompt":    input.Params["prompt"],
		"context":   input.Params["context"],
		"matter_id": input.Params["matter_id"],
	}, input.Auth)
	if err != nil {
		return nil, err
	}
	return &ToolOutput{Data: data}, nil
}

// --- RAGQueryTool ---

// RAGQueryTool implements "rag_query": retrieval-augmented query against a
// matter's indexed documents.
type RAGQueryTool struct {
	client  *Client
	baseURL string
}

func NewRAGQueryTool(client *Client, baseURL string) *RAGQueryTool {
	return &RAGQueryTool{client: client, baseURL: baseURL}
}

func (t *RAGQueryTool) Name() string { return "rag_query" }

func (t *RAGQueryTool) Schema() ToolSchema {
	return ToolSchema{
		Description: "RAG-enhanced query against matter documents",
		InputSchema: json.RawMessage(ragQueryInputSchema),
	}
}

func (t *RAGQueryTool) Invoke(ctx context.Context, input ToolInput) (*ToolOutput, error) {
	data, err := t.client.PostJSON(ctx, t.baseURL+"/api/v1/rag", map[string]any{
		"query":           input.Params["query"],
		"matter_id":       input.Params["matter_id"],
		"top_k":           intParam(input.Params, "top_k", 5),
		"include_sources": true,
	}, input.Auth)
	if err != nil {
		return nil, err
	}
	return &ToolOutput{Data: data}, nil
}
