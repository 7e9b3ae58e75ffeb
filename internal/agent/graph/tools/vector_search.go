package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/pediatric-ir/answerline/internal/agent/model"
)

// ===================================
// Semantic Search Tool
// ===================================

type SimilarPassagesInput struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
}

type semanticSearchTool struct {
	store    PassageSearcher
	embedder Embedder
	cfg      model.RetrievalConfig
}

func newSemanticSearchTool(store PassageSearcher, embedder Embedder, cfg model.RetrievalConfig) tool.BaseTool {
	return &semanticSearchTool{store: store, embedder: embedder, cfg: cfg}
}

func (t *semanticSearchTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: ToolSemanticSearch,
		Desc: "Vector-similarity search over the same corpus. Use when keyword search found nothing useful, " +
			"or when the question is phrased loosely (e.g. \"the tube in my kid's arm\") without medical terms.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Type:     "string",
				Desc:     "The question or description to match against passage meaning.",
				Required: true,
			},
			"max_results": {
				Type: "number",
				Desc: "Maximum number of passages to return (default: 4, max: 8).",
			},
		}),
	}, nil
}

func (t *semanticSearchTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var in SimilarPassagesInput
	if err := json.Unmarshal([]byte(argumentsInJSON), &in); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	in.Query = strings.TrimSpace(in.Query)
	if in.Query == "" {
		return "", fmt.Errorf("query is required")
	}

	embedding, err := t.embedder.Embed(ctx, in.Query)
	if err != nil {
		return "", fmt.Errorf("embed query: %w", err)
	}

	limit := clampLimit(in.MaxResults, t.cfg.MaxResults)
	passages, err := t.store.SearchSemantic(ctx, embedding, limit)
	if err != nil {
		return "", fmt.Errorf("semantic search: %w", err)
	}
	return formatPassages(passages), nil
}

var _ tool.InvokableTool = (*semanticSearchTool)(nil)
