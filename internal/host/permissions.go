package host

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/eternisai/enchanted-push/internal/push"
	"github.com/google/uuid"
)

// Permissions is the notification permission API backed by page prompts.
type Permissions struct {
	host *Host
}

// Permissions returns the host's permission API.
func (h *Host) Permissions() *Permissions {
	return &Permissions{host: h}
}

// State returns the recorded decision.
func (p *Permissions) State() push.PermissionState {
	return p.host.permissionState()
}

// Set records a decision without prompting, e.g. from configuration.
func (p *Permissions) Set(state push.PermissionState) {
	p.host.setPermission(state)
}

// Request prompts the focused page, or any page when none is focused, and
// waits for the answer. A dismissed prompt leaves the state at default.
func (p *Permissions) Request(ctx context.Context) (push.PermissionState, error) {
	h := p.host
	page := h.promptTarget()
	if page == nil {
		return push.PermissionDefault, ErrNoPages
	}

	id := uuid.NewString()
	answers := make(chan push.PermissionState, 1)

	h.permMu.Lock()
	h.prompts[id] = answers
	h.permMu.Unlock()
	defer func() {
		h.permMu.Lock()
		delete(h.prompts, id)
		h.permMu.Unlock()
	}()

	if err := page.send(Frame{Type: FramePermissionPrompt, PromptID: id}); err != nil {
		return push.PermissionDefault, fmt.Errorf("sending permission prompt: %w", err)
	}
	h.logger.WithContext(ctx).Info("permission prompt shown",
		slog.String("page_id", page.ID),
		slog.String("prompt_id", id))

	timer := time.NewTimer(h.opts.PromptTimeout)
	defer timer.Stop()

	select {
	case state := <-answers:
		if state != push.PermissionDefault {
			h.setPermission(state)
		}
		return state, nil
	case <-timer.C:
		return push.PermissionDefault, fmt.Errorf("permission prompt %s timed out", id)
	case <-ctx.Done():
		return push.PermissionDefault, ctx.Err()
	}
}

func (h *Host) promptTarget() *Page {
	pages := h.snapshot()
	for _, p := range pages {
		if p.Focused() {
			return p
		}
	}
	if len(pages) > 0 {
		return pages[0]
	}
	return nil
}

func (h *Host) answer(promptID string, state push.PermissionState) {
	h.permMu.Lock()
	answers, ok := h.prompts[promptID]
	h.permMu.Unlock()
	if !ok {
		h.logger.Warn("answer for unknown permission prompt", slog.String("prompt_id", promptID))
		return
	}
	select {
	case answers <- state:
	default:
	}
}

func (h *Host) permissionState() push.PermissionState {
	h.permMu.Lock()
	defer h.permMu.Unlock()
	return h.permission
}

func (h *Host) setPermission(state push.PermissionState) {
	h.permMu.Lock()
	changed := h.permission != state
	h.permission = state
	h.permMu.Unlock()

	if changed {
		h.logger.Info("notification permission changed", slog.String("state", state.String()))
		_ = h.broadcast(Frame{Type: FramePermissionChanged, Permission: state})
	}
}
