package conversations

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"github.com/pediatric-ir/answerline/internal/agent/model"
)

// MessagesManager mediates between the answer graph and the persisted
// conversation transcript. The graph only ever appends the user's original
// question and the final assistant answer; run-internal turns (tool calls,
// rewrites) stay in graph state.
type MessagesManager struct {
	conversationRepo model.ConversationRepository
}

func NewMessagesManager(conversationRepo model.ConversationRepository) *MessagesManager {
	return &MessagesManager{conversationRepo: conversationRepo}
}

// BeginTurn persists the incoming user question and returns the prior
// transcript (which already includes the new question at its tail).
func (cm *MessagesManager) BeginTurn(ctx context.Context, conversationID string, query string) ([]*schema.Message, error) {
	userMsg := schema.UserMessage(query)
	if err := cm.conversationRepo.AddMessage(ctx, conversationID, userMsg); err != nil {
		return nil, err
	}

	history, err := cm.conversationRepo.LoadHistory(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return history.Messages, nil
}

// BuildDecisionContext assembles the message list for the decision model:
// the fixed system prompt once, then the transcript. Prior history is
// treated as immutable context and never rewritten.
func (cm *MessagesManager) BuildDecisionContext(systemPrompt string, history []*schema.Message) []*schema.Message {
	messages := make([]*schema.Message, 0, len(history)+1)
	messages = append(messages, schema.SystemMessage(systemPrompt))

	for _, msg := range history {
		if msg == nil {
			continue
		}
		// tool-result turns from earlier conversations are noise for a fresh
		// decision; only user/assistant prose carries over
		switch msg.Role {
		case schema.User, schema.Assistant:
			messages = append(messages, msg)
		}
	}
	return messages
}

// SaveResponse appends the final assistant answer to the transcript.
func (cm *MessagesManager) SaveResponse(ctx context.Context, conversationID string, content string) error {
	assistantMsg := schema.AssistantMessage(content, nil)
	return cm.conversationRepo.AddMessage(ctx, conversationID, assistantMsg)
}
