package nodes

import (
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/pediatric-ir/answerline/internal/agent/model"
	logx "github.com/pediatric-ir/answerline/pkg/logger"
)

const DefaultRewriteMaxAttempts = 2

// ===== Small helpers to keep handlers simple/readable =====

// normalizeRewriteCap returns a sane default when the provided value is invalid.
func normalizeRewriteCap(n int) int {
	if n <= 0 {
		return DefaultRewriteMaxAttempts
	}
	return n
}

// truncate bounds s to max bytes. Model-facing text only; the cut may land
// inside a rune, which the models tolerate.
func truncate(s string, max int) string {
	if max > 0 && len(s) > max {
		return s[:max]
	}
	return s
}

// latestToolResult returns the content of the newest tool-result message,
// or "" when the run has none.
func latestToolResult(state *model.AppState) string {
	for i := len(state.ToolResults) - 1; i >= 0; i-- {
		msg := state.ToolResults[i]
		if msg != nil && msg.Role == schema.Tool {
			return msg.Content
		}
	}
	return ""
}

// buildContextBlock concatenates every collected tool result in arrival
// order into one bounded context block for generation.
func buildContextBlock(state *model.AppState, maxLen int) string {
	var parts []string
	for _, msg := range state.ToolResults {
		if msg == nil {
			continue
		}
		if content := strings.TrimSpace(msg.Content); content != "" {
			parts = append(parts, content)
		}
	}
	return truncate(strings.Join(parts, "\n\n---\n\n"), maxLen)
}

// applyUsageCost prices the token usage of one model reply, accumulates the
// running total in state, and logs it.
func applyUsageCost(out *schema.Message, state *model.AppState, nodeName, modelName string) {
	if !model.CostEnabled() || out == nil || out.ResponseMeta == nil || out.ResponseMeta.Usage == nil {
		return
	}
	pricing := model.ResolvePricing(modelName)
	inC, outC, totalC := model.ComputeCost(out.ResponseMeta.Usage, pricing)
	if out.Extra == nil {
		out.Extra = map[string]any{}
	}
	out.Extra["usage_cost"] = map[string]any{
		"currency":          "USD",
		"model":             modelName,
		"prompt_tokens":     out.ResponseMeta.Usage.PromptTokens,
		"completion_tokens": out.ResponseMeta.Usage.CompletionTokens,
		"total_tokens":      out.ResponseMeta.Usage.TotalTokens,
		"input_cost":        inC,
		"output_cost":       outC,
		"total_cost":        totalC,
	}
	logx.Debug().
		Str("conversation_id", state.ConversationID).
		Str("node", nodeName).
		Str("model", modelName).
		Int("prompt_tokens", out.ResponseMeta.Usage.PromptTokens).
		Int("completion_tokens", out.ResponseMeta.Usage.CompletionTokens).
		Int("total_tokens", out.ResponseMeta.Usage.TotalTokens).
		Float64("input_cost_usd", inC).
		Float64("output_cost_usd", outC).
		Float64("total_cost_usd", totalC).
		Msg("LLM usage")

	state.TotalCostUSD += totalC
	out.Extra["usage_cost_total_usd"] = state.TotalCostUSD
}
