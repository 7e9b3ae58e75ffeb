package model

import (
	"github.com/cloudwego/eino/schema"
)

// AppState stores per-invocation state for the answer graph.
// Concurrency model:
//   - This struct is registered as Graph Local State via compose.WithGenLocalState.
//   - All reads/writes happen only inside Eino state handlers:
//     WithStatePreHandler, WithStatePostHandler, or compose.ProcessState.
//   - Eino serializes access to state within these handlers, so no additional
//     mutex/atomic is required as long as you never touch it outside handlers.
//   - Do not access AppState directly from outside handlers. For persistence,
//     use repositories/services (e.g., MessagesManager).
type AppState struct {
	ConversationID string
	// Question is the user's original wording. Rewrites never overwrite it;
	// the grader and the answer generator always see this text.
	Question string
	// History is the run-scoped message sequence fed to the decision model.
	// Rewritten queries are appended here as fresh user turns and are never
	// written back to the persisted transcript.
	History []*schema.Message
	// ToolResults collects every tool-result message in arrival order.
	ToolResults []*schema.Message
	// Grades is the append-only verdict history for this run.
	Grades []GradeVerdict
	// RewriteCount is incremented once per rewrite cycle and compared against
	// the configured cap. The cap is what guarantees loop termination.
	RewriteCount int
	Emergency    EmergencyVerdict
	ToolCallIDSeq int // synthesizes tool_call_id when the provider omits it

	// Accumulated total LLM cost (USD) across model invocations for this query
	TotalCostUSD float64
}

// QueryInput represents the input for processing one user question.
type QueryInput struct {
	ConversationID string `json:"conversation_id"`
	Query          string `json:"query"`
}
