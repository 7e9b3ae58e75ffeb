package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/pediatric-ir/answerline/internal/agent/model"
)

// Tool names. The decision prompt states a preference order: the keyword
// tool before the semantic one. That ordering is a retrieval-quality
// policy, keep GetRetrievalTools in sync with it.
const (
	ToolKeywordSearch  = "search_documents"
	ToolSemanticSearch = "similar_passages"
)

// PassageSearcher is the narrow retrieval capability this core consumes.
// Index lifecycle, chunking and embedding storage all live behind it.
type PassageSearcher interface {
	SearchKeyword(ctx context.Context, query string, limit int) ([]model.Passage, error)
	SearchSemantic(ctx context.Context, embedding []float32, limit int) ([]model.Passage, error)
}

// Embedder turns a query into the vector the semantic tool searches with.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// GetRetrievalTools returns the registered tools, keyword search first.
func GetRetrievalTools(store PassageSearcher, embedder Embedder, cfg model.RetrievalConfig) []tool.BaseTool {
	return []tool.BaseTool{
		newKeywordSearchTool(store, cfg),
		newSemanticSearchTool(store, embedder, cfg),
	}
}

// GetToolInfos resolves the static descriptors for every registered tool.
func GetToolInfos(ctx context.Context, ts []tool.BaseTool) ([]*schema.ToolInfo, error) {
	infos := make([]*schema.ToolInfo, 0, len(ts))
	for _, t := range ts {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("get tool info: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// DescribeForPrompt serializes the tool catalogue for the manual fallback
// prompt, in registration (preference) order.
func DescribeForPrompt(ctx context.Context, ts []tool.BaseTool) (string, error) {
	infos, err := GetToolInfos(ctx, ts)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, info := range infos {
		b.WriteString("- ")
		b.WriteString(info.Name)
		b.WriteString(": ")
		b.WriteString(info.Desc)
		b.WriteString("\n")
		params, err := info.ParamsOneOf.ToOpenAPIV3()
		if err != nil || params == nil {
			continue
		}
		for name, prop := range params.Properties {
			if prop == nil || prop.Value == nil {
				continue
			}
			fmt.Fprintf(&b, "    %s (%s): %s\n", name, prop.Value.Type, prop.Value.Description)
		}
	}
	return b.String(), nil
}

// formatPassages renders search hits as plain text. Each passage leads with
// a "Source:" header; the grader treats that header as optional metadata.
func formatPassages(passages []model.Passage) string {
	if len(passages) == 0 {
		return "No matching passages found."
	}
	var b strings.Builder
	for i, p := range passages {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		title := strings.TrimSpace(p.Title)
		if title == "" {
			title = p.ID
		}
		if src := strings.TrimSpace(p.Source); src != "" {
			fmt.Fprintf(&b, "Source: %s (%s)\n", title, src)
		} else {
			fmt.Fprintf(&b, "Source: %s\n", title)
		}
		b.WriteString(strings.TrimSpace(p.Content))
		b.WriteString("\n")
	}
	return b.String()
}

func clampLimit(n, fallback int) int {
	if n <= 0 {
		n = fallback
	}
	if n < 1 {
		n = 1
	}
	if n > 8 {
		n = 8
	}
	return n
}
