// Package host is the platform the agent plays for application pages. Pages
// attach over a websocket, report focus and navigation, answer permission
// prompts and receive application events and notifications.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eternisai/enchanted-push/internal/bridge"
	"github.com/eternisai/enchanted-push/internal/logger"
	"github.com/eternisai/enchanted-push/internal/metrics"
	"github.com/eternisai/enchanted-push/internal/push"
	"github.com/eternisai/enchanted-push/internal/worker"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	maxFrameSize = 64 * 1024
	writeTimeout = 5 * time.Second
)

var (
	// ErrNoPages is returned when an operation needs an attached page.
	ErrNoPages = errors.New("no application page attached")
	// ErrNoOpener is returned by OpenWindow when no opener is configured.
	ErrNoOpener = errors.New("no window opener configured")
)

// Opener opens a new application window at an absolute URL.
type Opener interface {
	Open(ctx context.Context, target string) error
}

// Options configure the host.
type Options struct {
	// Permission is the decision the host starts with.
	Permission    push.PermissionState
	PromptTimeout time.Duration
	Opener        Opener
}

// Page is one attached application window.
type Page struct {
	ID string

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu         sync.RWMutex
	url        string
	focused    bool
	controlled bool
}

// URL returns the page's current location.
func (p *Page) URL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.url
}

// Focused reports whether the page has input focus.
func (p *Page) Focused() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.focused
}

// Controlled reports whether the background worker has claimed the page.
func (p *Page) Controlled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.controlled
}

// Focus asks the page to bring its window to the front.
func (p *Page) Focus(ctx context.Context) error {
	return p.send(Frame{Type: FrameFocusWindow})
}

func (p *Page) send(f Frame) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := p.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return p.conn.WriteJSON(f)
}

// Host tracks attached pages and implements the platform capabilities the
// worker, bridge and token manager consume.
type Host struct {
	opts   Options
	logger *logger.Logger

	mu    sync.RWMutex
	pages map[string]*Page

	permMu     sync.Mutex
	permission push.PermissionState
	prompts    map[string]chan push.PermissionState

	clickMu sync.RWMutex
	onClick func(ctx context.Context, n push.Display)
}

// New creates a host with no pages attached.
func New(opts Options, log *logger.Logger) *Host {
	if opts.PromptTimeout == 0 {
		opts.PromptTimeout = 2 * time.Minute
	}
	return &Host{
		opts:       opts,
		logger:     log.WithComponent("host"),
		pages:      make(map[string]*Page),
		permission: opts.Permission,
		prompts:    make(map[string]chan push.PermissionState),
	}
}

// OnNotificationClick registers the handler for clicks reported by pages.
func (h *Host) OnNotificationClick(fn func(ctx context.Context, n push.Display)) {
	h.clickMu.Lock()
	defer h.clickMu.Unlock()
	h.onClick = fn
}

// Serve runs one page connection until the page detaches or ctx is done.
// The first frame must be a hello frame.
func (h *Host) Serve(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()
	conn.SetReadLimit(maxFrameSize)

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	var hello Frame
	if err := conn.ReadJSON(&hello); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("reading hello frame: %w", err)
	}
	if hello.Type != FrameHello {
		return fmt.Errorf("expected %s frame, got %q", FrameHello, hello.Type)
	}

	page := &Page{
		ID:      uuid.NewString(),
		conn:    conn,
		url:     hello.URL,
		focused: hello.Focused,
	}
	h.register(page)
	defer h.unregister(page)

	if err := page.send(Frame{Type: FrameAttached, PageID: page.ID, Permission: h.permissionState()}); err != nil {
		return fmt.Errorf("sending attached frame: %w", err)
	}

	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("reading page frame: %w", err)
		}
		h.handle(ctx, page, f)
	}
}

func (h *Host) handle(ctx context.Context, page *Page, f Frame) {
	log := h.logger.WithContext(ctx).With(slog.String("page_id", page.ID))

	switch f.Type {
	case FrameFocus, FrameBlur:
		page.mu.Lock()
		page.focused = f.Type == FrameFocus
		page.mu.Unlock()
		log.Debug("page focus changed", slog.Bool("focused", f.Type == FrameFocus))
	case FrameNavigate:
		page.mu.Lock()
		page.url = f.URL
		page.mu.Unlock()
	case FramePermissionAnswer:
		h.answer(f.PromptID, f.Permission)
	case FrameNotificationClick:
		if f.Notification == nil {
			log.Warn("notification click without notification")
			return
		}
		h.clickMu.RLock()
		fn := h.onClick
		h.clickMu.RUnlock()
		if fn != nil {
			go fn(context.WithoutCancel(ctx), *f.Notification)
		}
	default:
		log.Warn("unknown page frame", slog.String("type", f.Type))
		_ = page.send(Frame{Type: FrameError, Error: fmt.Sprintf("unknown frame type %q", f.Type)})
	}
}

func (h *Host) register(page *Page) {
	h.mu.Lock()
	h.pages[page.ID] = page
	count := len(h.pages)
	h.mu.Unlock()

	metrics.PagesAttached(1)
	h.logger.Debug("page attached",
		slog.String("page_id", page.ID),
		slog.String("url", page.URL()),
		slog.Int("pages", count))
}

func (h *Host) unregister(page *Page) {
	h.mu.Lock()
	delete(h.pages, page.ID)
	count := len(h.pages)
	h.mu.Unlock()

	metrics.PagesAttached(-1)
	h.logger.Debug("page detached",
		slog.String("page_id", page.ID),
		slog.Int("pages", count))
}

func (h *Host) snapshot() []*Page {
	h.mu.RLock()
	defer h.mu.RUnlock()
	pages := make([]*Page, 0, len(h.pages))
	for _, p := range h.pages {
		pages = append(pages, p)
	}
	return pages
}

// PageCount returns the number of attached pages.
func (h *Host) PageCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.pages)
}

// Focused reports whether any attached page has focus.
func (h *Host) Focused() bool {
	for _, p := range h.snapshot() {
		if p.Focused() {
			return true
		}
	}
	return false
}

// MatchAll returns every attached window, controlled or not.
func (h *Host) MatchAll(ctx context.Context) ([]worker.WindowClient, error) {
	pages := h.snapshot()
	windows := make([]worker.WindowClient, len(pages))
	for i, p := range pages {
		windows[i] = p
	}
	return windows, nil
}

// OpenWindow opens target through the configured opener.
func (h *Host) OpenWindow(ctx context.Context, target string) error {
	if h.opts.Opener == nil {
		return ErrNoOpener
	}
	return h.opts.Opener.Open(ctx, target)
}

// Claim puts every attached page under the worker's control.
func (h *Host) Claim(ctx context.Context) error {
	var errs []error
	for _, p := range h.snapshot() {
		p.mu.Lock()
		p.controlled = true
		p.mu.Unlock()
		if err := p.send(Frame{Type: FrameClaimed}); err != nil {
			errs = append(errs, fmt.Errorf("page %s: %w", p.ID, err))
		}
	}
	return errors.Join(errs...)
}

// Dispatch delivers an application event to every attached page.
func (h *Host) Dispatch(ctx context.Context, ev bridge.Event) error {
	return h.broadcast(Frame{Type: FrameEvent, Event: &ev})
}

// Show asks every attached page to display d.
func (h *Host) Show(ctx context.Context, d push.Display) error {
	return h.broadcast(Frame{Type: FrameNotification, Notification: &d})
}

// Close dismisses the notification tagged tag on every page.
func (h *Host) Close(ctx context.Context, tag string) error {
	return h.broadcast(Frame{Type: FrameNotificationClose, Tag: tag})
}

func (h *Host) broadcast(f Frame) error {
	pages := h.snapshot()
	if len(pages) == 0 {
		return ErrNoPages
	}

	var errs []error
	for _, p := range pages {
		if err := p.send(f); err != nil {
			h.logger.Warn("failed to send frame to page",
				slog.String("page_id", p.ID),
				slog.String("type", f.Type),
				slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("page %s: %w", p.ID, err))
		}
	}
	return errors.Join(errs...)
}

// Shutdown closes every page connection.
func (h *Host) Shutdown() {
	for _, p := range h.snapshot() {
		p.writeMu.Lock()
		_ = p.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "agent shutting down"),
			time.Now().Add(time.Second))
		p.writeMu.Unlock()
		p.conn.Close()
	}
}
