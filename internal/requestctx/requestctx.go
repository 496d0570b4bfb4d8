// Package requestctx carries per-request values between middlewares and handlers.
package requestctx

import (
	"context"

	"github.com/davidwehrlin/tag-master/internal/core"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	playerIDKey
	playerKey
)

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithPlayerID records the caller identity taken from a valid token.
func WithPlayerID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, playerIDKey, id)
}

func PlayerID(ctx context.Context) string {
	id, _ := ctx.Value(playerIDKey).(string)
	return id
}

func WithPlayer(ctx context.Context, p *core.Player) context.Context {
	return context.WithValue(ctx, playerKey, p)
}

func Player(ctx context.Context) *core.Player {
	p, _ := ctx.Value(playerKey).(*core.Player)
	return p
}
