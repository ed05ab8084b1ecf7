package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type (
	workspaceCtxKey struct{}
	signalCtxKey    struct{}
	requestCtxKey   struct{}
)

// ContextFields extracts correlation data from ctx.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}
	if ws := WorkspaceIDFromContext(ctx); ws != "" {
		fields = append(fields, zap.String("workspace.id", ws))
	}
	if id := SignalIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("signal.id", id))
	}
	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request.id", id))
	}
	return fields
}

// WithWorkspaceID tags ctx with the workspace being operated on.
func WithWorkspaceID(ctx context.Context, workspaceID string) context.Context {
	if workspaceID == "" {
		return ctx
	}
	return context.WithValue(ctx, workspaceCtxKey{}, workspaceID)
}

func WorkspaceIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(workspaceCtxKey{}).(string)
	return s
}

// WithSignalID tags ctx with the signal being operated on.
func WithSignalID(ctx context.Context, signalID string) context.Context {
	if signalID == "" {
		return ctx
	}
	return context.WithValue(ctx, signalCtxKey{}, signalID)
}

func SignalIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(signalCtxKey{}).(string)
	return s
}

// WithRequestID tags ctx with the inbound request id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(requestCtxKey{}).(string)
	return s
}
