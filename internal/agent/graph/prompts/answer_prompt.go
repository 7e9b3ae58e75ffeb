package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed template/answer_prompt.txt
var answerSystemPrompt string

//go:embed template/safety_prompt.txt
var safetySystemPrompt string

// Disclaimer is the mandatory closing sentence of every generated answer.
const Disclaimer = "This information is for general education and is not a substitute for advice from your child's medical team."

// NoContextPlaceholder stands in when a run reaches generation without any
// retrieved passages.
const NoContextPlaceholder = "(no supporting passages were retrieved for this question)"

// NoAnswerFallback is the user-visible text when generation produced
// nothing usable. Raw errors never reach the caller.
const NoAnswerFallback = "I don't have that information right now. Please ask your child's care team. " + Disclaimer

// RenderGroundedAnswer builds the generation exchange from the accumulated
// context block and the original question.
func RenderGroundedAnswer(ctx context.Context, question, contextBlock string) ([]*schema.Message, error) {
	if contextBlock == "" {
		contextBlock = NoContextPlaceholder
	}
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(answerSystemPrompt),
		schema.UserMessage("Question: {{.Question}}"),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"Context":    contextBlock,
		"Disclaimer": Disclaimer,
		"Question":   question,
	})
	if err != nil {
		return nil, fmt.Errorf("answer prompt render: %w", err)
	}
	return msgs, nil
}

// RenderSafetyCheck builds the post-generation classification exchange.
func RenderSafetyCheck(ctx context.Context, question, answer string) ([]*schema.Message, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(safetySystemPrompt),
		schema.UserMessage("Question: {{.Question}}\n\nAnswer:\n{{.Answer}}"),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"Question": question,
		"Answer":   answer,
	})
	if err != nil {
		return nil, fmt.Errorf("safety prompt render: %w", err)
	}
	return msgs, nil
}
