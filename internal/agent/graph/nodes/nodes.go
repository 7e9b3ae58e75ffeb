package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/pediatric-ir/answerline/internal/agent/graph/conversations"
	"github.com/pediatric-ir/answerline/internal/agent/graph/guards"
	"github.com/pediatric-ir/answerline/internal/agent/graph/prompts"
	"github.com/pediatric-ir/answerline/internal/agent/model"
	logx "github.com/pediatric-ir/answerline/pkg/logger"
)

// Node names used across the graph builder.
const (
	NodeInputConverter  = "InputConverter"
	NodeEmergencyReply  = "EmergencyReply"
	NodeDecisionModel   = "DecisionModel"
	NodeToolExecutor    = "ToolExecutor"
	NodeRelevanceGrader = "RelevanceGrader"
	NodeQueryRewriter   = "QueryRewriter"
	NodeAnswerGenerator = "AnswerGenerator"
	NodeSafetyGate      = "SafetyGate"
)

// NewInputConverterPreHandler resets run state for the new question and
// runs the emergency interceptor over the raw user text. The check happens
// here, before any retrieval or model call can be scheduled.
func NewInputConverterPreHandler() func(context.Context, model.QueryInput, *model.AppState) (model.QueryInput, error) {
	return func(ctx context.Context, in model.QueryInput, s *model.AppState) (model.QueryInput, error) {
		if s.ConversationID == "" {
			s.ConversationID = in.ConversationID
		}
		s.Question = in.Query
		s.History = nil
		s.ToolResults = nil
		s.Grades = nil
		s.RewriteCount = 0
		s.ToolCallIDSeq = 0
		s.TotalCostUSD = 0
		s.Emergency = guards.CheckEmergency(in.Query)
		if s.Emergency.Emergency {
			logx.Warn().
				Str("conversation_id", s.ConversationID).
				Str("language", s.Emergency.Language).
				Msg("emergency phrase detected; short-circuiting run")
		}
		return in, nil
	}
}

// NewInputConverterNode persists the incoming user turn and assembles the
// decision-model context (system prompt once, then the transcript).
func NewInputConverterNode(mm *conversations.MessagesManager) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, input model.QueryInput) ([]*schema.Message, error) {
		history, err := mm.BeginTurn(ctx, input.ConversationID, input.Query)
		if err != nil {
			return nil, fmt.Errorf("begin conversation turn: %w", err)
		}

		systemPrompt, err := prompts.RenderDecisionSystem(ctx)
		if err != nil {
			return nil, fmt.Errorf("render decision system prompt: %w", err)
		}

		return mm.BuildDecisionContext(systemPrompt, history), nil
	})
}

// NewEmergencyCondition routes emergency turns straight to the canned
// reply; everything else proceeds to the decision model.
func NewEmergencyCondition() func(context.Context, []*schema.Message) (string, error) {
	return func(ctx context.Context, _ []*schema.Message) (string, error) {
		var emergency bool
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			emergency = state.Emergency.Emergency
			return nil
		})
		if err != nil {
			return "", err
		}
		if emergency {
			return NodeEmergencyReply, nil
		}
		return NodeDecisionModel, nil
	}
}

// NewEmergencyReplyNode emits the fixed, language-selected emergency
// notice. Retrieval, grading and generation never run on this path.
func NewEmergencyReplyNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ []*schema.Message) (*schema.Message, error) {
		language := model.LangEnglish
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			language = state.Emergency.Language
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}
		return schema.AssistantMessage(guards.EmergencyMessage(language), nil), nil
	})
}

// NewEmergencyReplyPostHandler persists the emergency notice so the
// transcript stays complete.
func NewEmergencyReplyPostHandler(mm *conversations.MessagesManager) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		state.History = append(state.History, out)
		if err := mm.SaveResponse(ctx, state.ConversationID, out.Content); err != nil {
			logx.Error().
				Str("conversation_id", state.ConversationID).
				Err(err).
				Msg("Error saving emergency reply")
		}
		return out, nil
	}
}

// NewSafetyGateNode runs the mandatory post-check over the final answer.
// Unsafe answers are replaced by the deflection message; the substitution
// is final, generation is never retried.
func NewSafetyGateNode(validator *guards.SafetyValidator) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, answer *schema.Message) (*schema.Message, error) {
		if answer == nil {
			return nil, fmt.Errorf("safety gate received nil answer")
		}

		var question string
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			question = state.Question
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		assessment := validator.Validate(ctx, question, answer.Content)
		if !assessment.Safe {
			logx.Warn().Msg("answer failed safety validation; substituting deflection")
			return schema.AssistantMessage(assessment.Fallback, nil), nil
		}
		return answer, nil
	})
}

// NewSafetyGatePostHandler appends the validated answer to run history and
// persists it as the single assistant turn this run produces.
func NewSafetyGatePostHandler(mm *conversations.MessagesManager) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		state.History = append(state.History, out)
		if strings.TrimSpace(out.Content) == "" {
			out.Content = prompts.NoAnswerFallback
		}
		if err := mm.SaveResponse(ctx, state.ConversationID, out.Content); err != nil {
			logx.Error().
				Str("conversation_id", state.ConversationID).
				Err(err).
				Msg("Error saving assistant response")
		} else {
			logx.Debug().
				Str("conversation_id", state.ConversationID).
				Float64("run_cost_usd", state.TotalCostUSD).
				Msg("Saved assistant response")
		}
		return out, nil
	}
}
