package observers

import (
	"context"
	"errors"
	"io"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	logx "github.com/pediatric-ir/answerline/pkg/logger"
)

type toolStartKey struct{}

// newToolHandler builds a typed ToolCallbackHandler (not yet wrapped).
// It logs the tool name, its arguments and the wall-clock duration of each
// invocation; the duration is observability only and never enters state.
func newToolHandler() *callbackHelper.ToolCallbackHandler {
	return &callbackHelper.ToolCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *tool.CallbackInput) context.Context {
			args := ""
			if input != nil {
				args = input.ArgumentsInJSON
			}
			logx.Debug().
				Str("tool", info.Name).
				Str("arguments", args).
				Msg("tool start")
			return context.WithValue(ctx, toolStartKey{}, time.Now())
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *tool.CallbackOutput) context.Context {
			ev := logx.Debug().Str("tool", info.Name)
			if started, ok := ctx.Value(toolStartKey{}).(time.Time); ok {
				ev = ev.Dur("duration", time.Since(started))
			}
			if output != nil {
				ev = ev.Int("response_len", len(output.Response))
			}
			ev.Msg("tool end")
			return ctx
		},
		OnEndWithStreamOutput: func(ctx context.Context, info *einocb.RunInfo, output *schema.StreamReader[*tool.CallbackOutput]) context.Context {
			go func() {
				defer output.Close()
				for {
					_, err := output.Recv()
					if errors.Is(err, io.EOF) || err != nil {
						return
					}
				}
			}()
			if started, ok := ctx.Value(toolStartKey{}).(time.Time); ok {
				logx.Debug().Str("tool", info.Name).Dur("duration", time.Since(started)).Msg("tool end (stream)")
			}
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			ev := logx.Warn().Str("tool", info.Name).Err(err)
			if started, ok := ctx.Value(toolStartKey{}).(time.Time); ok {
				ev = ev.Dur("duration", time.Since(started))
			}
			ev.Msg("tool execution failed")
			return ctx
		},
	}
}

// NewToolCallbacks constructs a callbacks.Handler that logs tool lifecycle
// events. Attach it via compose.WithCallbacks(...) when invoking the graph.
func NewToolCallbacks() einocb.Handler {
	return callbackHelper.NewHandlerHelper().
		Tool(newToolHandler()).
		Handler()
}
