package middlewarex

import (
	"context"

	"paylink/internal/domain/business"
)

type ctxKey string

const (
	ctxCaller ctxKey = "caller"
)

func WithCaller(ctx context.Context, c business.Caller) context.Context {
	return context.WithValue(ctx, ctxCaller, c)
}

func CallerFrom(ctx context.Context) (business.Caller, bool) {
	v, ok := ctx.Value(ctxCaller).(business.Caller)
	return v, ok
}
