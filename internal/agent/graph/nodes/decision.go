package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/pediatric-ir/answerline/internal/agent/graph/parsers"
	"github.com/pediatric-ir/answerline/internal/agent/model"
	logx "github.com/pediatric-ir/answerline/pkg/logger"
)

// decisionUnavailableMessage is returned when both decision paths fail.
// It still flows through the safety gate like every other answer.
const decisionUnavailableMessage = "I'm sorry, I can't look into your question right now. Please try again in a moment, or ask your child's care team directly."

// NewDecisionNode builds the per-turn decision step: call a retrieval tool
// or answer directly. native is the tool-bound model; when it is nil or
// its invocation fails for any reason, the node degrades to manual mode on
// fallback: the tool catalogue travels inside the prompt and the tool
// request is recovered from a JSON object in the reply. Nothing on either
// path escapes as an error that would kill the run.
func NewDecisionNode(native, fallback einomodel.BaseChatModel, manualSystemPrompt string) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in []*schema.Message) (*schema.Message, error) {
		if native != nil {
			out, err := native.Generate(ctx, in)
			if err == nil && out != nil {
				return out, nil
			}
			logx.Warn().Err(err).Msg("native tool-calling invocation failed; degrading to manual mode")
		}
		return decideManually(ctx, fallback, manualSystemPrompt, in)
	})
}

// decideManually runs the catalogue-in-prompt protocol for models without
// native tool calling.
func decideManually(ctx context.Context, fallback einomodel.BaseChatModel, manualSystemPrompt string, in []*schema.Message) (*schema.Message, error) {
	if fallback == nil {
		return schema.AssistantMessage(decisionUnavailableMessage, nil), nil
	}

	msgs := withManualInstructions(in, manualSystemPrompt)
	out, err := fallback.Generate(ctx, msgs)
	if err != nil || out == nil {
		logx.Error().Err(err).Msg("manual-mode decision invocation failed")
		return schema.AssistantMessage(decisionUnavailableMessage, nil), nil
	}

	intent, ok := parsers.ExtractToolCall(out.Content)
	if !ok {
		// plain prose: the model chose to answer directly
		return out, nil
	}

	arguments, err := json.Marshal(intent.Arguments)
	if err != nil {
		return out, nil
	}
	logx.Debug().
		Str("tool", intent.Tool).
		Msg("manual mode recovered a tool request")
	return &schema.Message{
		Role: schema.Assistant,
		ToolCalls: []schema.ToolCall{
			{
				ID:   uuid.NewString(),
				Type: "function",
				Function: schema.FunctionCall{
					Name:      intent.Tool,
					Arguments: string(arguments),
				},
			},
		},
	}, nil
}

// withManualInstructions inserts the manual tool protocol right after the
// leading system prompt (or at the head when there is none).
func withManualInstructions(in []*schema.Message, manualSystemPrompt string) []*schema.Message {
	manual := schema.SystemMessage(manualSystemPrompt)
	msgs := make([]*schema.Message, 0, len(in)+1)
	if len(in) > 0 && in[0] != nil && in[0].Role == schema.System {
		msgs = append(msgs, in[0], manual)
		msgs = append(msgs, in[1:]...)
	} else {
		msgs = append(msgs, manual)
		msgs = append(msgs, in...)
	}
	return msgs
}

// NewDecisionPreHandler accumulates the incoming messages into run history
// and feeds the model the full run context. The rewriter re-enters here
// with just the new user turn.
func NewDecisionPreHandler() func(context.Context, []*schema.Message, *model.AppState) ([]*schema.Message, error) {
	return func(ctx context.Context, in []*schema.Message, state *model.AppState) ([]*schema.Message, error) {
		state.History = append(state.History, in...)
		return state.History, nil
	}
}

// NewDecisionPostHandler normalizes tool-call IDs (some providers omit
// them), applies usage-cost accounting and appends the decision to history.
func NewDecisionPostHandler(modelName string) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		applyUsageCost(out, state, NodeDecisionModel, modelName)

		if out != nil && len(out.ToolCalls) > 0 {
			for i := range out.ToolCalls {
				if strings.TrimSpace(out.ToolCalls[i].ID) == "" {
					state.ToolCallIDSeq++
					out.ToolCalls[i].ID = fmt.Sprintf("call_%d", state.ToolCallIDSeq)
				}
			}
		}

		state.History = append(state.History, out)

		if len(out.ToolCalls) > 0 {
			logx.Debug().Int("tool_count", len(out.ToolCalls)).Msg("decision: calling tools")
		} else {
			logx.Debug().Msg("decision: answering directly")
		}
		return out, nil
	}
}

// NewDecisionCondition routes tool requests to the executor and direct
// answers to the safety gate.
func NewDecisionCondition() func(context.Context, *schema.Message) (string, error) {
	return func(ctx context.Context, input *schema.Message) (string, error) {
		if input != nil && len(input.ToolCalls) > 0 {
			return NodeToolExecutor, nil
		}
		return NodeSafetyGate, nil
	}
}

// NewToolExecutorPostHandler records executed tool results in run history
// and in the arrival-ordered result list the grader and generator read.
func NewToolExecutorPostHandler() func(context.Context, []*schema.Message, *model.AppState) ([]*schema.Message, error) {
	return func(ctx context.Context, out []*schema.Message, state *model.AppState) ([]*schema.Message, error) {
		for _, msg := range out {
			if msg == nil {
				continue
			}
			state.History = append(state.History, msg)
			if msg.Role == schema.Tool {
				state.ToolResults = append(state.ToolResults, msg)
			}
		}
		return out, nil
	}
}
