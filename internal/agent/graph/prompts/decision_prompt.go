package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/pediatric-ir/answerline/internal/agent/graph/tools"
)

//go:embed template/decision_prompt.txt
var decisionSystemPrompt string

//go:embed template/manual_tools_prompt.txt
var manualToolsPrompt string

// RenderDecisionSystem renders the fixed decision-model system prompt,
// including the tool preference order. Rendering goes through the Eino
// prompt component so prompt callbacks fire.
func RenderDecisionSystem(ctx context.Context) (string, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(decisionSystemPrompt),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"KeywordTool":  tools.ToolKeywordSearch,
		"SemanticTool": tools.ToolSemanticSearch,
	})
	if err != nil {
		return "", fmt.Errorf("decision prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("decision prompt render: empty result")
	}
	return msgs[0].Content, nil
}

// RenderManualToolCatalogue renders the fallback-mode instruction block for
// models without native tool calling. catalogue is the serialized tool
// list from tools.DescribeForPrompt.
func RenderManualToolCatalogue(ctx context.Context, catalogue string) (string, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(manualToolsPrompt),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"Catalogue": catalogue,
	})
	if err != nil {
		return "", fmt.Errorf("manual tool prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("manual tool prompt render: empty result")
	}
	return msgs[0].Content, nil
}
