package tools

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	logx "github.com/pediatric-ir/answerline/pkg/logger"
)

// failSafeTool converts invocation errors into a failure-text result. The
// grader treats that text as a non-answer and the run continues through
// its normal fail-open path instead of aborting.
type failSafeTool struct {
	inner tool.InvokableTool
}

// WrapFailSafe wraps every invokable tool so retrieval failures surface as
// tool output rather than run-killing errors.
func WrapFailSafe(ts []tool.BaseTool) []tool.BaseTool {
	wrapped := make([]tool.BaseTool, 0, len(ts))
	for _, t := range ts {
		if inv, ok := t.(tool.InvokableTool); ok {
			wrapped = append(wrapped, &failSafeTool{inner: inv})
		} else {
			wrapped = append(wrapped, t)
		}
	}
	return wrapped
}

func (t *failSafeTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return t.inner.Info(ctx)
}

func (t *failSafeTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error) {
	out, err := t.inner.InvokableRun(ctx, argumentsInJSON, opts...)
	if err != nil {
		name := "unknown"
		if info, infoErr := t.inner.Info(ctx); infoErr == nil && info != nil {
			name = info.Name
		}
		logx.Warn().Str("tool", name).Err(err).Msg("tool invocation failed; returning failure text")
		return fmt.Sprintf("The %s lookup failed and returned no passages. Do not retry this exact call.", name), nil
	}
	return out, nil
}

var _ tool.InvokableTool = (*failSafeTool)(nil)
