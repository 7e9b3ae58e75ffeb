package graph

import (
	"context"
	"errors"
	"strings"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pediatric-ir/answerline/internal/agent/graph/conversations"
	"github.com/pediatric-ir/answerline/internal/agent/graph/guards"
	"github.com/pediatric-ir/answerline/internal/agent/graph/nodes"
	"github.com/pediatric-ir/answerline/internal/agent/graph/prompts"
	"github.com/pediatric-ir/answerline/internal/agent/model"
	"github.com/pediatric-ir/answerline/internal/agent/repo"
)

// scriptedModel replies with its queued messages in order.
type scriptedModel struct {
	name    string
	replies []*schema.Message
	calls   int
}

func (m *scriptedModel) Generate(_ context.Context, _ []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	m.calls++
	if len(m.replies) == 0 {
		return nil, errors.New(m.name + ": script exhausted")
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return reply, nil
}

func (m *scriptedModel) Stream(_ context.Context, _ []*schema.Message, _ ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not supported")
}

// toolCallingScripted additionally satisfies the native tool-calling
// interface so the decision node takes the native path.
type toolCallingScripted struct {
	scriptedModel
}

func (m *toolCallingScripted) WithTools(_ []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	return m, nil
}

type fakeStore struct {
	keywordCalls int
	passages     []model.Passage
}

func (s *fakeStore) SearchKeyword(_ context.Context, _ string, _ int) ([]model.Passage, error) {
	s.keywordCalls++
	return s.passages, nil
}

func (s *fakeStore) SearchSemantic(_ context.Context, _ []float32, _ int) ([]model.Passage, error) {
	return s.passages, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

func toolCallReply(query string) *schema.Message {
	return &schema.Message{
		Role: schema.Assistant,
		ToolCalls: []schema.ToolCall{{
			Type: "function",
			Function: schema.FunctionCall{
				Name:      "search_documents",
				Arguments: `{"query": "` + query + `"}`,
			},
		}},
	}
}

func text(content string) *schema.Message {
	return schema.AssistantMessage(content, nil)
}

// buildTestGraph wires the graph over scripted models and in-memory stores.
func buildTestGraph(t *testing.T, decision einomodel.BaseChatModel, utility, answer *scriptedModel, store *fakeStore, conversationRepo model.ConversationRepository) Runner {
	t.Helper()

	cms := &nodes.ChatModels{
		Decision:          decision,
		Utility:           utility,
		Answer:            answer,
		DecisionModelName: "scripted-decision",
		UtilityModelName:  "scripted-utility",
		AnswerModelName:   "scripted-answer",
	}
	mm := conversations.NewMessagesManager(conversationRepo)

	runnable, err := BuildGraph(context.Background(), &GraphConfig{
		ChatModels:         cms,
		MessagesManager:    mm,
		PassageStore:       store,
		Embedder:           fakeEmbedder{},
		Retrieval:          model.RetrievalConfig{MaxResults: 4, SnippetMaxLen: 4000, ContextMaxLen: 16000},
		Safety:             model.SafetyConfig{UseModel: true, AnswerMaxLen: 6000},
		RewriteMaxAttempts: 2,
		ToolMaxCalls:       6,
	})
	require.NoError(t, err)
	return &graphRunner{runnable: runnable}
}

func piccPassages() []model.Passage {
	return []model.Passage{{
		ID:      "p1",
		Title:   "PICC Line Home Care",
		Source:  "patient-handouts",
		Content: "A PICC line is a thin flexible tube placed in a vein in the arm.",
	}}
}

func TestGraph_RetrievalHappyPath(t *testing.T) {
	decision := &toolCallingScripted{scriptedModel{
		name:    "decision",
		replies: []*schema.Message{toolCallReply("PICC line")},
	}}
	utility := &scriptedModel{name: "utility", replies: []*schema.Message{
		text("yes"),  // relevance grade
		text("SAFE"), // safety verdict
	}}
	answer := &scriptedModel{name: "answer", replies: []*schema.Message{
		text("A PICC line is a thin flexible tube your child's care team places in a vein."),
	}}
	store := &fakeStore{passages: piccPassages()}
	conversationRepo := repo.NewMemoryConversationRepository()

	runner := buildTestGraph(t, decision, utility, answer, store, conversationRepo)

	out, err := runner.Invoke(context.Background(), model.QueryInput{
		ConversationID: "conv-happy",
		Query:          "What is a PICC line?",
	})
	require.NoError(t, err)

	assert.Contains(t, out, "thin flexible tube")
	assert.True(t, strings.HasSuffix(out, prompts.Disclaimer))
	assert.Equal(t, 1, decision.calls)
	assert.Equal(t, 1, store.keywordCalls)
	assert.Equal(t, 1, answer.calls)

	// transcript holds exactly the question and the final answer
	count, err := conversationRepo.GetMessageCount(context.Background(), "conv-happy")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestGraph_EmergencyShortCircuit(t *testing.T) {
	decision := &toolCallingScripted{scriptedModel{name: "decision"}}
	utility := &scriptedModel{name: "utility"}
	answer := &scriptedModel{name: "answer"}
	store := &fakeStore{passages: piccPassages()}
	conversationRepo := repo.NewMemoryConversationRepository()

	runner := buildTestGraph(t, decision, utility, answer, store, conversationRepo)

	out, err := runner.Invoke(context.Background(), model.QueryInput{
		ConversationID: "conv-emergency",
		Query:          "I can't breathe, help!",
	})
	require.NoError(t, err)

	assert.Equal(t, guards.EmergencyMessage(model.LangEnglish), out)
	assert.Zero(t, decision.calls)
	assert.Zero(t, utility.calls)
	assert.Zero(t, answer.calls)
	assert.Zero(t, store.keywordCalls)

	count, err := conversationRepo.GetMessageCount(context.Background(), "conv-emergency")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestGraph_RewriteCapForcesGeneration(t *testing.T) {
	// three retrieval rounds: two graded not relevant, the third is forced
	// relevant by the cap without consulting the grader model
	decision := &toolCallingScripted{scriptedModel{
		name: "decision",
		replies: []*schema.Message{
			toolCallReply("PICC line"),
			toolCallReply("PICC line care"),
			toolCallReply("PICC line maintenance"),
		},
	}}
	utility := &scriptedModel{name: "utility", replies: []*schema.Message{
		text("no"),                    // grade 1
		text("PICC line care"),        // rewrite 1
		text("no"),                    // grade 2
		text("PICC line maintenance"), // rewrite 2
		text("SAFE"),                  // safety verdict
	}}
	answer := &scriptedModel{name: "answer", replies: []*schema.Message{
		text("Here is what the available material says about PICC lines."),
	}}
	store := &fakeStore{passages: piccPassages()}

	runner := buildTestGraph(t, decision, utility, answer, store, repo.NewMemoryConversationRepository())

	out, err := runner.Invoke(context.Background(), model.QueryInput{
		ConversationID: "conv-cap",
		Query:          "What is a PICC line?",
	})
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(out, prompts.Disclaimer))
	assert.Equal(t, 3, decision.calls)
	assert.Equal(t, 3, store.keywordCalls)
	// the utility script is fully consumed: no third rewrite happened
	assert.Empty(t, utility.replies)
	assert.Equal(t, 1, answer.calls)
}

func TestGraph_DirectAnswerSkipsRetrieval(t *testing.T) {
	decision := &toolCallingScripted{scriptedModel{
		name:    "decision",
		replies: []*schema.Message{text("Hello! How can I help with your child's procedure today?")},
	}}
	utility := &scriptedModel{name: "utility", replies: []*schema.Message{text("SAFE")}}
	answer := &scriptedModel{name: "answer"}
	store := &fakeStore{}

	runner := buildTestGraph(t, decision, utility, answer, store, repo.NewMemoryConversationRepository())

	out, err := runner.Invoke(context.Background(), model.QueryInput{
		ConversationID: "conv-direct",
		Query:          "Hi there",
	})
	require.NoError(t, err)

	assert.Contains(t, out, "How can I help")
	assert.Zero(t, store.keywordCalls)
	assert.Zero(t, answer.calls)
}

func TestGraph_UnsafeDirectAnswerDeflected(t *testing.T) {
	decision := &toolCallingScripted{scriptedModel{
		name:    "decision",
		replies: []*schema.Message{text("You should take a double dose tonight.")},
	}}
	utility := &scriptedModel{name: "utility", replies: []*schema.Message{text("UNSAFE")}}

	runner := buildTestGraph(t, decision, utility, &scriptedModel{name: "answer"}, &fakeStore{}, repo.NewMemoryConversationRepository())

	out, err := runner.Invoke(context.Background(), model.QueryInput{
		ConversationID: "conv-unsafe",
		Query:          "Should we change the dose?",
	})
	require.NoError(t, err)
	assert.Equal(t, guards.DeflectionMessage, out)
}

func TestGraph_ManualToolFallback(t *testing.T) {
	// a plain BaseChatModel has no native tool calling, so the decision node
	// recovers the tool request from the JSON protocol in the reply
	decision := &scriptedModel{name: "decision", replies: []*schema.Message{
		text(`{"tool": "search_documents", "arguments": {"query": "PICC line"}}`),
	}}
	utility := &scriptedModel{name: "utility", replies: []*schema.Message{
		text("yes"),
		text("SAFE"),
	}}
	answer := &scriptedModel{name: "answer", replies: []*schema.Message{
		text("A PICC line is a thin flexible tube."),
	}}
	store := &fakeStore{passages: piccPassages()}

	runner := buildTestGraph(t, decision, utility, answer, store, repo.NewMemoryConversationRepository())

	out, err := runner.Invoke(context.Background(), model.QueryInput{
		ConversationID: "conv-manual",
		Query:          "What is a PICC line?",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, store.keywordCalls)
	assert.True(t, strings.HasSuffix(out, prompts.Disclaimer))
}
