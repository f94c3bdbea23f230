package ai

import (
	"context"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"go.uber.org/zap"
)

type traceStartKey struct{}

// tracer 把链路中每个节点的起止与错误写入结构化日志
type tracer struct {
	log *zap.Logger
}

func (t *tracer) handler() callbacks.Handler {
	return callbacks.NewHandlerBuilder().
		OnStartFn(t.onStart).
		OnEndFn(t.onEnd).
		OnErrorFn(t.onError).
		Build()
}

func (t *tracer) onStart(ctx context.Context, _ *callbacks.RunInfo, _ callbacks.CallbackInput) context.Context {
	return context.WithValue(ctx, traceStartKey{}, time.Now())
}

func (t *tracer) onEnd(ctx context.Context, info *callbacks.RunInfo, _ callbacks.CallbackOutput) context.Context {
	t.log.Debug("completion step finished", append(runFields(info), zap.Duration("elapsed", elapsed(ctx)))...)
	return ctx
}

func (t *tracer) onError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	t.log.Warn("completion step failed", append(runFields(info), zap.Duration("elapsed", elapsed(ctx)), zap.Error(err))...)
	return ctx
}

func runFields(info *callbacks.RunInfo) []zap.Field {
	if info == nil {
		return nil
	}
	return []zap.Field{
		zap.String("step", info.Name),
		zap.String("type", info.Type),
		zap.String("component", string(info.Component)),
	}
}

func elapsed(ctx context.Context) time.Duration {
	start, ok := ctx.Value(traceStartKey{}).(time.Time)
	if !ok {
		return 0
	}
	return time.Since(start)
}
