package guards

import (
	"context"
	"regexp"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"

	"github.com/pediatric-ir/answerline/internal/agent/graph/prompts"
	"github.com/pediatric-ir/answerline/internal/agent/model"
	logx "github.com/pediatric-ir/answerline/pkg/logger"
)

// DeflectionMessage replaces any answer that fails the safety check. The
// substitution is final; generation is never retried.
const DeflectionMessage = "I cannot provide that response. For guidance about your child's care, " +
	"please consult your doctor or nurse."

// disallowedPhrases is the deterministic fallback classifier: an answer
// containing any of these reads as individualized medical direction.
var disallowedPhrases = []string{
	"i diagnose",
	"my diagnosis",
	"prescribe",
	"prescription for you",
	"treatment plan",
	"you should take",
	"increase the dose",
	"stop taking your medication",
}

var (
	safeTokenRe   = regexp.MustCompile(`\bSAFE\b`)
	unsafeTokenRe = regexp.MustCompile(`\bUNSAFE\b`)
)

// SafetyValidator performs the mandatory post-generation check. With a
// model configured it runs an LLM classification first; the deterministic
// phrase scan covers the nil-model case and every model failure.
type SafetyValidator struct {
	model        einomodel.BaseChatModel
	answerMaxLen int
}

func NewSafetyValidator(m einomodel.BaseChatModel, cfg model.SafetyConfig) *SafetyValidator {
	maxLen := cfg.AnswerMaxLen
	if maxLen <= 0 {
		maxLen = 6000
	}
	if !cfg.UseModel {
		m = nil
	}
	return &SafetyValidator{model: m, answerMaxLen: maxLen}
}

// Validate classifies one generated answer. It never returns an error:
// every failure path degrades to the deterministic scan.
func (v *SafetyValidator) Validate(ctx context.Context, question, answer string) model.SafetyAssessment {
	if v.model != nil {
		if assessment, ok := v.validateWithModel(ctx, question, answer); ok {
			return assessment
		}
	}
	return v.validateDeterministic(answer)
}

func (v *SafetyValidator) validateWithModel(ctx context.Context, question, answer string) (model.SafetyAssessment, bool) {
	truncated := answer
	if len(truncated) > v.answerMaxLen {
		truncated = truncated[:v.answerMaxLen]
	}

	msgs, err := prompts.RenderSafetyCheck(ctx, question, truncated)
	if err != nil {
		logx.Error().Err(err).Msg("safety prompt render failed; using phrase scan")
		return model.SafetyAssessment{}, false
	}
	out, err := v.model.Generate(ctx, msgs)
	if err != nil || out == nil {
		logx.Warn().Err(err).Msg("safety model unavailable; using phrase scan")
		return model.SafetyAssessment{}, false
	}

	verdict := strings.TrimSpace(out.Content)
	switch {
	case unsafeTokenRe.MatchString(verdict):
		logx.Warn().Msg("safety model rejected answer")
		return model.SafetyAssessment{Safe: false, Fallback: DeflectionMessage}, true
	case safeTokenRe.MatchString(verdict):
		return model.SafetyAssessment{Safe: true}, true
	default:
		// no recognizable token; fall through to the deterministic scan
		logx.Warn().Str("verdict", verdict).Msg("safety verdict missing SAFE/UNSAFE token")
		return model.SafetyAssessment{}, false
	}
}

func (v *SafetyValidator) validateDeterministic(answer string) model.SafetyAssessment {
	lower := strings.ToLower(answer)
	for _, phrase := range disallowedPhrases {
		if strings.Contains(lower, phrase) {
			logx.Warn().Str("phrase", phrase).Msg("deterministic safety scan rejected answer")
			return model.SafetyAssessment{Safe: false, Fallback: DeflectionMessage}
		}
	}
	return model.SafetyAssessment{Safe: true}
}
