// Package worker is the background delivery worker. It displays a system
// notification for every push message received while no application page is
// focused and routes notification clicks back to a window.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/eternisai/enchanted-push/internal/logger"
	"github.com/eternisai/enchanted-push/internal/metrics"
	"github.com/eternisai/enchanted-push/internal/push"
)

// DefaultClickTarget is opened when a clicked notification names no URL.
const DefaultClickTarget = "/"

// State is the worker lifecycle state.
type State int

const (
	StateInstalling State = iota
	StateActive
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateActive:
		return "active"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ClickOutcome describes how a notification click was routed.
type ClickOutcome string

const (
	ClickFocused ClickOutcome = "focused"
	ClickOpened  ClickOutcome = "opened"
	ClickFailed  ClickOutcome = "failed"
)

// Notifier displays and dismisses system notifications.
type Notifier interface {
	Show(ctx context.Context, d push.Display) error
	Close(ctx context.Context, tag string) error
}

// WindowClient is an open application window.
type WindowClient interface {
	URL() string
	Focus(ctx context.Context) error
}

// Clients enumerates, opens and claims application windows.
type Clients interface {
	MatchAll(ctx context.Context) ([]WindowClient, error)
	OpenWindow(ctx context.Context, target string) error
	Claim(ctx context.Context) error
}

// Options tune presentation and click routing.
type Options struct {
	// DefaultIcon is used when a payload has no image. Empty means no icon.
	DefaultIcon string
	// ClickTarget is opened when the clicked notification has no data["url"].
	ClickTarget string
	Version     string
}

// Worker runs in the background context, independent of any page.
type Worker struct {
	notifier Notifier
	clients  Clients
	opts     Options
	logger   *logger.Logger

	mu      sync.Mutex
	state   State
	version string

	inflight sync.WaitGroup
}

// New creates a worker in the installing state.
func New(notifier Notifier, clients Clients, opts Options, log *logger.Logger) *Worker {
	if opts.ClickTarget == "" {
		opts.ClickTarget = DefaultClickTarget
	}
	return &Worker{
		notifier: notifier,
		clients:  clients,
		opts:     opts,
		logger:   log.WithComponent("worker"),
		state:    StateInstalling,
		version:  opts.Version,
	}
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Version returns the version of the running worker.
func (w *Worker) Version() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.version
}

// Start installs the worker, skips the waiting phase and activates it,
// claiming every open page. A failed claim is logged; the worker is still
// activated and pages are picked up on their next attach.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.state == StateStopped {
		w.mu.Unlock()
		return fmt.Errorf("worker is stopped")
	}
	w.state = StateInstalling
	version := w.version
	w.mu.Unlock()

	log := w.logger.WithContext(ctx).With(slog.String("version", version))

	log.Info("installing background worker")
	skipWaiting := false
	install := w.dispatch(ctx, "install", func(ev *ExtendableEvent) {
		ev.WaitUntil(func(context.Context) error {
			skipWaiting = true
			return nil
		})
	})
	if install != nil {
		return fmt.Errorf("installing worker: %w", install)
	}
	if !skipWaiting {
		return fmt.Errorf("installing worker: waiting phase was not skipped")
	}

	log.Info("activating background worker")
	activate := w.dispatch(ctx, "activate", func(ev *ExtendableEvent) {
		ev.WaitUntil(w.clients.Claim)
	})
	if activate != nil {
		log.Warn("failed to claim open pages", slog.String("error", activate.Error()))
	}

	w.mu.Lock()
	if w.state == StateInstalling {
		w.state = StateActive
	}
	w.mu.Unlock()
	return nil
}

// Replace restarts the lifecycle for a newer worker version.
func (w *Worker) Replace(ctx context.Context, version string) error {
	w.mu.Lock()
	previous := w.version
	w.version = version
	w.mu.Unlock()

	w.logger.WithContext(ctx).Info("replacing background worker",
		slog.String("previous", previous),
		slog.String("version", version))
	return w.Start(ctx)
}

// OnPush handles a push message delivered while no page is focused. It never
// fails: malformed payloads are shown with defaults and display errors are
// logged.
func (w *Worker) OnPush(ctx context.Context, msg push.Message) {
	ctx = logger.WithMessageID(ctx, msg.ID)
	log := w.logger.WithContext(ctx)

	log.Debug("received background message")
	metrics.MessageRouted(metrics.PathBackground)

	err := w.dispatch(ctx, "push", func(ev *ExtendableEvent) {
		payload, err := push.Decode(msg.Data)
		if err != nil {
			log.Warn("malformed push payload, showing defaults", slog.String("error", err.Error()))
			metrics.MalformedPayload(metrics.PathBackground)
		}

		display := payload.Display(w.opts.DefaultIcon)
		if display.Tag == "" {
			display.Tag = msg.ID
		}
		ev.WaitUntil(func(ctx context.Context) error {
			return w.notifier.Show(ctx, display)
		})
	})
	metrics.NotificationShown(metrics.PathBackground, err)
	if err != nil {
		log.Error("failed to display background notification",
			slog.String("error", fmt.Errorf("%w: %w", push.ErrNotificationDisplay, err).Error()))
	}
}

// OnNotificationClick closes the notification and brings a matching window
// to the front, opening one when none matches. It never fails.
func (w *Worker) OnNotificationClick(ctx context.Context, n push.Display) ClickOutcome {
	target := w.ClickTarget(n)
	log := w.logger.WithContext(ctx).With(slog.String("target", target))

	outcome := ClickFailed
	err := w.dispatch(ctx, "notificationclick", func(ev *ExtendableEvent) {
		if n.Tag != "" {
			if err := w.notifier.Close(ctx, n.Tag); err != nil {
				log.Warn("failed to close notification", slog.String("error", err.Error()))
			}
		}
		ev.WaitUntil(func(ctx context.Context) error {
			var err error
			outcome, err = w.routeClick(ctx, target)
			return err
		})
	})
	if err != nil {
		outcome = ClickFailed
		log.Error("failed to route notification click", slog.String("error", err.Error()))
	}

	metrics.Click(string(outcome))
	log.Debug("notification click routed", slog.String("outcome", string(outcome)))
	return outcome
}

// ClickTarget returns the URL a click on n navigates to.
func (w *Worker) ClickTarget(n push.Display) string {
	if u := strings.TrimSpace(n.Data["url"]); u != "" {
		return u
	}
	return w.opts.ClickTarget
}

func (w *Worker) routeClick(ctx context.Context, target string) (ClickOutcome, error) {
	log := w.logger.WithContext(ctx)

	windows, err := w.matchAll(ctx)
	if err != nil {
		log.Warn("window enumeration failed, opening a new window",
			slog.String("error", fmt.Errorf("%w: %w", push.ErrClientEnumeration, err).Error()))
	}

	for _, window := range windows {
		if !sameURL(window.URL(), target) {
			continue
		}
		if err := window.Focus(ctx); err != nil {
			log.Warn("failed to focus window, opening a new one", slog.String("error", err.Error()))
			break
		}
		return ClickFocused, nil
	}

	if err := w.clients.OpenWindow(ctx, target); err != nil {
		return ClickFailed, fmt.Errorf("opening window %s: %w", target, err)
	}
	return ClickOpened, nil
}

// matchAll shields click routing from a panicking platform.
func (w *Worker) matchAll(ctx context.Context) (windows []WindowClient, err error) {
	defer func() {
		if r := recover(); r != nil {
			windows, err = nil, fmt.Errorf("enumerating windows: %v", r)
		}
	}()
	return w.clients.MatchAll(ctx)
}

// Shutdown stops the worker after every extended event has settled.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	w.state = StateStopped
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for pending events: %w", ctx.Err())
	}
}

// dispatch fires one event through handler and waits for its extensions.
func (w *Worker) dispatch(ctx context.Context, name string, handler func(ev *ExtendableEvent)) (err error) {
	w.inflight.Add(1)
	defer w.inflight.Done()

	ev := newExtendableEvent(ctx, name)
	func() {
		defer func() {
			if r := recover(); r != nil {
				ev.fail(fmt.Errorf("%s listener panicked: %v", name, r))
			}
		}()
		handler(ev)
	}()
	return ev.Wait()
}

// sameURL reports whether a window at current shows target. Relative
// targets match on path and query; fragments are ignored.
func sameURL(current, target string) bool {
	cu, err := url.Parse(current)
	if err != nil {
		return current == target
	}
	tu, err := url.Parse(target)
	if err != nil {
		return current == target
	}

	if tu.Host != "" && (!strings.EqualFold(cu.Scheme, tu.Scheme) || !strings.EqualFold(cu.Host, tu.Host)) {
		return false
	}
	return cleanPath(cu.Path) == cleanPath(tu.Path) && cu.RawQuery == tu.RawQuery
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	return p
}
