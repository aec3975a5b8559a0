// Package delivery attaches the single provider listener and sends each
// inbound message down exactly one path: the foreground bridge when an
// application page is focused, the background worker otherwise.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/eternisai/enchanted-push/internal/logger"
	"github.com/eternisai/enchanted-push/internal/push"
)

// Focus reports whether an application page currently has focus.
type Focus interface {
	Focused() bool
}

// Foreground handles messages while a page is focused.
type Foreground interface {
	OnMessage(ctx context.Context, msg push.Message)
}

// Background handles messages while no page is focused.
type Background interface {
	OnPush(ctx context.Context, msg push.Message)
}

// Router is the only consumer of the provider's message stream.
type Router struct {
	focus      Focus
	foreground Foreground
	background Background
	logger     *logger.Logger

	routed atomic.Int64
}

func New(focus Focus, foreground Foreground, background Background, log *logger.Logger) *Router {
	return &Router{
		focus:      focus,
		foreground: foreground,
		background: background,
		logger:     log.WithComponent("delivery"),
	}
}

// Route reads focus once and hands msg to one handler.
func (r *Router) Route(ctx context.Context, msg push.Message) {
	r.routed.Add(1)

	if r.focus.Focused() {
		r.logger.WithContext(ctx).Debug("routing message to foreground",
			slog.String("message_id", msg.ID))
		r.foreground.OnMessage(ctx, msg)
		return
	}

	r.logger.WithContext(ctx).Debug("routing message to background",
		slog.String("message_id", msg.ID))
	r.background.OnPush(ctx, msg)
}

// Routed returns how many messages have been routed.
func (r *Router) Routed() int64 {
	return r.routed.Load()
}

// Run attaches the router to client and blocks until ctx is done or the
// listener fails.
func (r *Router) Run(ctx context.Context, client push.Client) error {
	r.logger.Info("attaching push listener")
	err := client.Listen(ctx, r.Route)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("push listener stopped: %w", err)
	}
	return nil
}
