package model

// ================ Config ================
type ConversationConfig struct {
	TTL     string `envconfig:"CONVERSATION_TTL" default:"15m"`
	Rewrite struct {
		MaxAttempts int `envconfig:"CONVERSATION_REWRITE_MAX_ATTEMPTS" default:"2"`
	}
	Tools struct {
		MaxCalls int `envconfig:"CONVERSATION_TOOL_MAX_CALLS" default:"6"`
	}
}

type DecisionModelConfig struct {
	Model       string  `envconfig:"DECISION_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"DECISION_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"DECISION_TEMPERATURE" default:"0.1"`
}

// UtilityModelConfig drives the grader, rewriter and safety classifier.
// These are short classification/reformulation calls, so they share one
// small model.
type UtilityModelConfig struct {
	Model       string  `envconfig:"UTILITY_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"UTILITY_MAX_TOKENS" default:"512"`
	Temperature float32 `envconfig:"UTILITY_TEMPERATURE" default:"0.0"`
}

type AnswerModelConfig struct {
	Model       string  `envconfig:"ANSWER_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"ANSWER_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"ANSWER_TEMPERATURE" default:"0.3"`
}

type RetrievalConfig struct {
	MaxResults int `envconfig:"RETRIEVAL_MAX_RESULTS" default:"4"`
	// SnippetMaxLen bounds the tool-result bytes shown to the grader.
	SnippetMaxLen int `envconfig:"RETRIEVAL_SNIPPET_MAX_LEN" default:"4000"`
	// ContextMaxLen bounds the concatenated context block for generation.
	ContextMaxLen int `envconfig:"RETRIEVAL_CONTEXT_MAX_LEN" default:"16000"`
	// EmbeddingModel computes query embeddings for the semantic search tool.
	EmbeddingModel string `envconfig:"RETRIEVAL_EMBEDDING_MODEL" default:"text-embedding-004"`
}

type SafetyConfig struct {
	// UseModel enables the LLM-based post-check; the deterministic phrase
	// scan always remains as the fallback.
	UseModel bool `envconfig:"SAFETY_USE_MODEL" default:"true"`
	// AnswerMaxLen bounds the answer bytes submitted to the classifier.
	AnswerMaxLen int `envconfig:"SAFETY_ANSWER_MAX_LEN" default:"6000"`
}
