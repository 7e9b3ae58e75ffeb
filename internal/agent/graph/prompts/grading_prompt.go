package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed template/grader_prompt.txt
var graderSystemPrompt string

//go:embed template/rewriter_prompt.txt
var rewriterSystemPrompt string

// RenderRelevanceGrade builds the grading exchange. sourceTitle is the
// optional metadata line extracted from the tool result; empty means the
// tool did not expose one, which is fine.
func RenderRelevanceGrade(ctx context.Context, question, document, sourceTitle string) ([]*schema.Message, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(graderSystemPrompt),
		schema.UserMessage(
			"{{if .SourceTitle}}Document title: {{.SourceTitle}}\n{{end}}"+
				"Document:\n{{.Document}}\n\nQuestion: {{.Question}}",
		),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"Question":    question,
		"Document":    document,
		"SourceTitle": sourceTitle,
	})
	if err != nil {
		return nil, fmt.Errorf("grader prompt render: %w", err)
	}
	return msgs, nil
}

// RenderRewrite builds the query-reformulation exchange.
func RenderRewrite(ctx context.Context, question string) ([]*schema.Message, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(rewriterSystemPrompt),
		schema.UserMessage("Question: {{.Question}}"),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"Question": question,
	})
	if err != nil {
		return nil, fmt.Errorf("rewriter prompt render: %w", err)
	}
	return msgs, nil
}
