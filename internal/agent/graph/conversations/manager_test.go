package conversations

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pediatric-ir/answerline/internal/agent/repo"
)

func TestBeginTurn_PersistsAndReturnsTranscript(t *testing.T) {
	ctx := context.Background()
	mm := NewMessagesManager(repo.NewMemoryConversationRepository())

	history, err := mm.BeginTurn(ctx, "conv-1", "What is a PICC line?")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, schema.User, history[0].Role)
	assert.Equal(t, "What is a PICC line?", history[0].Content)

	require.NoError(t, mm.SaveResponse(ctx, "conv-1", "A PICC line is a thin tube."))

	history, err = mm.BeginTurn(ctx, "conv-1", "Can my child shower with it?")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, schema.Assistant, history[1].Role)
	assert.Equal(t, "Can my child shower with it?", history[2].Content)
}

func TestBuildDecisionContext_SystemPromptFirstToolTurnsDropped(t *testing.T) {
	mm := NewMessagesManager(repo.NewMemoryConversationRepository())

	history := []*schema.Message{
		schema.UserMessage("first question"),
		{Role: schema.Tool, Content: "stale tool result", ToolCallID: "call_1"},
		schema.AssistantMessage("first answer", nil),
		nil,
		schema.UserMessage("second question"),
	}

	msgs := mm.BuildDecisionContext("system prompt", history)
	require.Len(t, msgs, 4)
	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Equal(t, "system prompt", msgs[0].Content)
	assert.Equal(t, "first question", msgs[1].Content)
	assert.Equal(t, "first answer", msgs[2].Content)
	assert.Equal(t, "second question", msgs[3].Content)
}

func TestConversationsAreIsolated(t *testing.T) {
	ctx := context.Background()
	mm := NewMessagesManager(repo.NewMemoryConversationRepository())

	_, err := mm.BeginTurn(ctx, "conv-a", "question a")
	require.NoError(t, err)

	history, err := mm.BeginTurn(ctx, "conv-b", "question b")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "question b", history[0].Content)
}
