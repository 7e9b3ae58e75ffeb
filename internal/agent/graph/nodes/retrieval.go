package nodes

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/pediatric-ir/answerline/internal/agent/graph/parsers"
	"github.com/pediatric-ir/answerline/internal/agent/graph/prompts"
	"github.com/pediatric-ir/answerline/internal/agent/model"
	logx "github.com/pediatric-ir/answerline/pkg/logger"
)

// NewRelevanceGraderNode classifies whether the newest tool result can
// answer the question. The defaults all point the same way: no result,
// reached rewrite cap, model failure and unparseable verdicts every one
// grade "relevant" so the run terminates at the generator instead of
// looping.
func NewRelevanceGraderNode(utility einomodel.BaseChatModel, retrieval model.RetrievalConfig, rewriteCap int) *compose.Lambda {
	rewriteCap = normalizeRewriteCap(rewriteCap)
	return compose.InvokableLambda(func(ctx context.Context, _ []*schema.Message) (model.GradeVerdict, error) {
		var question, document string
		var attempts int
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			question = state.Question
			document = latestToolResult(state)
			attempts = state.RewriteCount
			return nil
		})
		if err != nil {
			return model.GradeVerdict{Relevant: true, Reason: "state unavailable"}, nil
		}

		if attempts >= rewriteCap {
			return model.GradeVerdict{Relevant: true, Reason: "rewrite attempt cap reached"}, nil
		}
		if strings.TrimSpace(document) == "" {
			return model.GradeVerdict{Relevant: true, Reason: "no retrieval output to grade"}, nil
		}

		document = truncate(document, retrieval.SnippetMaxLen)
		title := parsers.ExtractSourceTitle(document)

		msgs, err := prompts.RenderRelevanceGrade(ctx, question, document, title)
		if err != nil {
			logx.Error().Err(err).Msg("grader prompt render failed; grading relevant")
			return model.GradeVerdict{Relevant: true, Reason: "prompt render error"}, nil
		}
		out, err := utility.Generate(ctx, msgs)
		if err != nil || out == nil {
			logx.Warn().Err(err).Msg("grader model failed; grading relevant")
			return model.GradeVerdict{Relevant: true, Reason: "grading model error"}, nil
		}

		relevant, ok := parsers.ParseGrade(out.Content)
		if !ok {
			logx.Warn().Str("reply", out.Content).Msg("grader verdict unparseable; grading relevant")
			return model.GradeVerdict{Relevant: true, Reason: "unparseable verdict"}, nil
		}
		return model.GradeVerdict{Relevant: relevant, Reason: strings.TrimSpace(out.Content)}, nil
	})
}

// NewGraderPostHandler appends the verdict to the run-scoped grade history.
func NewGraderPostHandler() func(context.Context, model.GradeVerdict, *model.AppState) (model.GradeVerdict, error) {
	return func(ctx context.Context, out model.GradeVerdict, state *model.AppState) (model.GradeVerdict, error) {
		state.Grades = append(state.Grades, out)
		logx.Debug().
			Bool("relevant", out.Relevant).
			Str("reason", out.Reason).
			Int("attempt", state.RewriteCount).
			Msg("relevance verdict")
		return out, nil
	}
}

// NewGradeCondition routes relevant results to generation and failures to
// the rewriter.
func NewGradeCondition() func(context.Context, model.GradeVerdict) (string, error) {
	return func(ctx context.Context, verdict model.GradeVerdict) (string, error) {
		if verdict.Relevant {
			return NodeAnswerGenerator, nil
		}
		return NodeQueryRewriter, nil
	}
}

// NewQueryRewriterPreHandler counts the rewrite cycle. The counter, not
// recursion depth, is what bounds the loop.
func NewQueryRewriterPreHandler() func(context.Context, model.GradeVerdict, *model.AppState) (model.GradeVerdict, error) {
	return func(ctx context.Context, in model.GradeVerdict, state *model.AppState) (model.GradeVerdict, error) {
		state.RewriteCount++
		logx.Debug().Int("rewrite_count", state.RewriteCount).Msg("rewrite cycle")
		return in, nil
	}
}

// NewQueryRewriterNode reformulates the original question for another
// retrieval attempt. At the cap, and on any model failure, the original
// question passes through unchanged. The output is the single new user
// turn that re-enters the decision node.
func NewQueryRewriterNode(utility einomodel.BaseChatModel, rewriteCap int) *compose.Lambda {
	rewriteCap = normalizeRewriteCap(rewriteCap)
	return compose.InvokableLambda(func(ctx context.Context, _ model.GradeVerdict) ([]*schema.Message, error) {
		var question string
		var attempts int
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			question = state.Question
			attempts = state.RewriteCount
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		rewritten := question
		if attempts > rewriteCap {
			logx.Debug().Msg("rewrite cap reached; reusing original question")
		} else {
			rewritten = rewriteQuestion(ctx, utility, question)
		}

		return []*schema.Message{schema.UserMessage(rewritten)}, nil
	})
}

func rewriteQuestion(ctx context.Context, utility einomodel.BaseChatModel, question string) string {
	msgs, err := prompts.RenderRewrite(ctx, question)
	if err != nil {
		logx.Error().Err(err).Msg("rewrite prompt render failed; keeping original question")
		return question
	}
	out, err := utility.Generate(ctx, msgs)
	if err != nil || out == nil {
		logx.Warn().Err(err).Msg("rewrite model failed; keeping original question")
		return question
	}
	cleaned := parsers.CleanRewrite(out.Content, question)
	logx.Debug().Str("original", question).Str("rewritten", cleaned).Msg("query rewritten")
	return cleaned
}

// NewAnswerGeneratorNode produces the grounded answer from everything
// retrieved so far. A model failure yields the fixed no-answer text rather
// than an error; the closing disclaimer is guaranteed either way.
func NewAnswerGeneratorNode(answer einomodel.BaseChatModel, retrieval model.RetrievalConfig, modelName string) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ model.GradeVerdict) (*schema.Message, error) {
		var question, contextBlock string
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			question = state.Question
			contextBlock = buildContextBlock(state, retrieval.ContextMaxLen)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		msgs, err := prompts.RenderGroundedAnswer(ctx, question, contextBlock)
		if err != nil {
			logx.Error().Err(err).Msg("answer prompt render failed")
			return schema.AssistantMessage(prompts.NoAnswerFallback, nil), nil
		}

		out, err := answer.Generate(ctx, msgs)
		if err != nil || out == nil {
			logx.Error().Err(err).Msg("answer generation failed")
			return schema.AssistantMessage(prompts.NoAnswerFallback, nil), nil
		}

		out.Content = ensureDisclaimer(out.Content)
		return out, nil
	})
}

// NewAnswerGeneratorPostHandler applies usage-cost accounting. History
// append happens at the safety gate, after validation settled the final
// text.
func NewAnswerGeneratorPostHandler(modelName string) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		applyUsageCost(out, state, NodeAnswerGenerator, modelName)
		return out, nil
	}
}

func ensureDisclaimer(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return prompts.NoAnswerFallback
	}
	if strings.HasSuffix(trimmed, prompts.Disclaimer) {
		return trimmed
	}
	return trimmed + "\n\n" + prompts.Disclaimer
}
