// Package bridge forwards push messages received while an application page
// is focused to that page as a synchronous application event.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/eternisai/enchanted-push/internal/logger"
	"github.com/eternisai/enchanted-push/internal/metrics"
	"github.com/eternisai/enchanted-push/internal/push"
)

// EventName is the application event carrying a foreground message.
const EventName = "firebaseForegroundMessage"

// Event is one application-wide event. Detail is the payload as received, or
// its normalized form when the payload was malformed.
type Event struct {
	Name   string          `json:"name"`
	Detail json.RawMessage `json:"detail"`
}

// Dispatcher delivers application events to every listener before returning.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev Event) error
}

// Notifier displays a supplementary notification.
type Notifier interface {
	Show(ctx context.Context, d push.Display) error
}

// Options configure the bridge.
type Options struct {
	// ShowNotifications enables the supplementary system notification.
	ShowNotifications bool
	DefaultIcon       string
}

// Bridge runs in the page context.
type Bridge struct {
	dispatcher Dispatcher
	notifier   Notifier
	opts       Options
	logger     *logger.Logger
}

// New creates a bridge. notifier may be nil when ShowNotifications is off.
func New(dispatcher Dispatcher, notifier Notifier, opts Options, log *logger.Logger) *Bridge {
	return &Bridge{
		dispatcher: dispatcher,
		notifier:   notifier,
		opts:       opts,
		logger:     log.WithComponent("bridge"),
	}
}

// OnMessage dispatches the application event and then, for payloads with a
// notification block, shows a supplementary notification. Nothing is
// propagated to the caller.
func (b *Bridge) OnMessage(ctx context.Context, msg push.Message) {
	ctx = logger.WithMessageID(ctx, msg.ID)
	log := b.logger.WithContext(ctx)

	log.Debug("received foreground message")
	metrics.MessageRouted(metrics.PathForeground)

	detail := json.RawMessage(msg.Data)
	payload, err := push.Decode(msg.Data)
	if err != nil {
		log.Warn("malformed push payload, forwarding normalized form", slog.String("error", err.Error()))
		metrics.MalformedPayload(metrics.PathForeground)
		if detail, err = json.Marshal(payload); err != nil {
			log.Error("failed to encode normalized payload", slog.String("error", err.Error()))
			return
		}
	}

	if err := b.dispatch(ctx, detail); err != nil {
		log.Error("failed to dispatch foreground message", slog.String("error", err.Error()))
	}

	if payload.Notification == nil || !b.opts.ShowNotifications || b.notifier == nil {
		return
	}

	display := payload.Display(b.opts.DefaultIcon)
	if display.Tag == "" {
		display.Tag = msg.ID
	}
	err = b.notifier.Show(ctx, display)
	metrics.NotificationShown(metrics.PathForeground, err)
	if err != nil {
		log.Error("failed to display foreground notification",
			slog.String("error", fmt.Errorf("%w: %w", push.ErrNotificationDisplay, err).Error()))
	}
}

func (b *Bridge) dispatch(ctx context.Context, detail json.RawMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("event listener panicked: %v", r)
		}
	}()

	return b.dispatcher.Dispatch(ctx, Event{Name: EventName, Detail: detail})
}
