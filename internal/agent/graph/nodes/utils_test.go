package nodes

import (
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"

	"github.com/pediatric-ir/answerline/internal/agent/graph/prompts"
	"github.com/pediatric-ir/answerline/internal/agent/model"
)

func toolResult(content string) *schema.Message {
	return &schema.Message{Role: schema.Tool, Content: content, ToolCallID: "call_1"}
}

func TestLatestToolResult(t *testing.T) {
	state := &model.AppState{}
	assert.Equal(t, "", latestToolResult(state))

	state.ToolResults = []*schema.Message{
		toolResult("first result"),
		nil,
		toolResult("second result"),
	}
	assert.Equal(t, "second result", latestToolResult(state))
}

func TestBuildContextBlock(t *testing.T) {
	state := &model.AppState{
		ToolResults: []*schema.Message{
			toolResult("Source: A\npassage one"),
			toolResult("  "),
			toolResult("Source: B\npassage two"),
		},
	}

	block := buildContextBlock(state, 16000)
	assert.Equal(t, "Source: A\npassage one\n\n---\n\nSource: B\npassage two", block)

	// bounded output
	assert.Len(t, buildContextBlock(state, 10), 10)

	assert.Equal(t, "", buildContextBlock(&model.AppState{}, 16000))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abcdef", 3))
	assert.Equal(t, "abcdef", truncate("abcdef", 100))
	// non-positive max means unbounded
	assert.Equal(t, "abcdef", truncate("abcdef", 0))
}

func TestNormalizeRewriteCap(t *testing.T) {
	assert.Equal(t, DefaultRewriteMaxAttempts, normalizeRewriteCap(0))
	assert.Equal(t, DefaultRewriteMaxAttempts, normalizeRewriteCap(-5))
	assert.Equal(t, 3, normalizeRewriteCap(3))
}

func TestEnsureDisclaimer(t *testing.T) {
	out := ensureDisclaimer("A PICC line is a thin tube.")
	assert.True(t, len(out) > 0)
	assert.Contains(t, out, prompts.Disclaimer)

	// already-suffixed answers are not doubled
	once := ensureDisclaimer("Some answer.\n\n" + prompts.Disclaimer)
	assert.Equal(t, 1, strings.Count(once, prompts.Disclaimer))

	assert.Equal(t, prompts.NoAnswerFallback, ensureDisclaimer("   "))
}

func TestWithManualInstructions(t *testing.T) {
	system := schema.SystemMessage("base prompt")
	user := schema.UserMessage("question")

	msgs := withManualInstructions([]*schema.Message{system, user}, "manual protocol")
	assert.Equal(t, "base prompt", msgs[0].Content)
	assert.Equal(t, "manual protocol", msgs[1].Content)
	assert.Equal(t, "question", msgs[2].Content)

	// without a leading system prompt the protocol goes first
	msgs = withManualInstructions([]*schema.Message{user}, "manual protocol")
	assert.Equal(t, "manual protocol", msgs[0].Content)
	assert.Equal(t, "question", msgs[1].Content)
}
