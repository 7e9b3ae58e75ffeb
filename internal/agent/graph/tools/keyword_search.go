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
// Keyword Search Tool
// ===================================

type SearchDocumentsInput struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
}

type keywordSearchTool struct {
	store PassageSearcher
	cfg   model.RetrievalConfig
}

func newKeywordSearchTool(store PassageSearcher, cfg model.RetrievalConfig) tool.BaseTool {
	return &keywordSearchTool{store: store, cfg: cfg}
}

func (t *keywordSearchTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: ToolKeywordSearch,
		Desc: "Full-text keyword search over the pediatric interventional-radiology patient-education corpus. " +
			"Best for questions that name a procedure, device, or medical term directly (e.g. PICC line, " +
			"sclerotherapy, sedation). Prefer this tool first.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Type:     "string",
				Desc:     "Search keywords. Use the medical terms from the question, not a full sentence.",
				Required: true,
			},
			"max_results": {
				Type: "number",
				Desc: "Maximum number of passages to return (default: 4, max: 8).",
			},
		}),
	}, nil
}

// InvokableRun executes the search. Implemented directly (not via
// utils.NewTool) because the result must stay plain text: the grader and
// the answer context both consume it verbatim.
func (t *keywordSearchTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var in SearchDocumentsInput
	if err := json.Unmarshal([]byte(argumentsInJSON), &in); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	in.Query = strings.TrimSpace(in.Query)
	if in.Query == "" {
		return "", fmt.Errorf("query is required")
	}

	limit := clampLimit(in.MaxResults, t.cfg.MaxResults)
	passages, err := t.store.SearchKeyword(ctx, in.Query, limit)
	if err != nil {
		return "", fmt.Errorf("keyword search: %w", err)
	}
	return formatPassages(passages), nil
}

var _ tool.InvokableTool = (*keywordSearchTool)(nil)
