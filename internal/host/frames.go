package host

import (
	"github.com/eternisai/enchanted-push/internal/bridge"
	"github.com/eternisai/enchanted-push/internal/push"
)

// Frame is one JSON message on a page connection, in either direction.
type Frame struct {
	Type         string               `json:"type"`
	PageID       string               `json:"pageId,omitempty"`
	URL          string               `json:"url,omitempty"`
	Focused      bool                 `json:"focused,omitempty"`
	PromptID     string               `json:"promptId,omitempty"`
	Permission   push.PermissionState `json:"permission,omitempty"`
	Event        *bridge.Event        `json:"event,omitempty"`
	Notification *push.Display        `json:"notification,omitempty"`
	Tag          string               `json:"tag,omitempty"`
	Error        string               `json:"error,omitempty"`
}

// Page to agent frame types
const (
	FrameHello             = "hello"
	FrameFocus             = "focus"
	FrameBlur              = "blur"
	FrameNavigate          = "navigate"
	FramePermissionAnswer  = "permission_answer"
	FrameNotificationClick = "notification_click"
)

// Agent to page frame types
const (
	FrameAttached          = "attached"
	FrameClaimed           = "claimed"
	FrameEvent             = "event"
	FrameNotification      = "notification"
	FrameNotificationClose = "notification_close"
	FrameFocusWindow       = "focus_window"
	FramePermissionPrompt  = "permission_prompt"
	FramePermissionChanged = "permission_changed"
	FrameError             = "error"
)
