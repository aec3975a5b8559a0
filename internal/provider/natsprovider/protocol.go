package natsprovider

import (
	"fmt"
	"strings"

	"github.com/eternisai/enchanted-push/internal/push"
)

// HeaderMessageID carries the provider message ID on delivery messages.
const HeaderMessageID = "Push-Message-Id"

// DefaultPrefix roots every subject the provider uses.
const DefaultPrefix = "push"

// Reply codes.
const (
	CodeNoPermission = "no_permission"
	CodeInvalid      = "invalid_request"
)

// IssueRequest asks the registrar for a registration token.
type IssueRequest struct {
	DeviceID string `json:"deviceId"`
	AppID    string `json:"appId"`
	SenderID string `json:"senderId"`
	VAPIDKey string `json:"vapidKey"`
}

// IssueReply answers an IssueRequest.
type IssueReply struct {
	Token string `json:"token,omitempty"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}

// RevokeRequest invalidates a token.
type RevokeRequest struct {
	Token string `json:"token"`
}

// RevokeReply answers a RevokeRequest.
type RevokeReply struct {
	Deleted bool   `json:"deleted"`
	Error   string `json:"error,omitempty"`
}

// Subjects names the subjects for one project.
type Subjects struct {
	prefix  string
	project string
}

// NewSubjects returns the subjects for cfg under prefix.
func NewSubjects(prefix string, cfg push.Config) Subjects {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Subjects{prefix: prefix, project: sanitize(cfg.ProjectID)}
}

func (s Subjects) Issue() string {
	return fmt.Sprintf("%s.%s.tokens.issue", s.prefix, s.project)
}

func (s Subjects) Revoke() string {
	return fmt.Sprintf("%s.%s.tokens.revoke", s.prefix, s.project)
}

// Deliver is the subject messages for token are published on.
func (s Subjects) Deliver(token push.Token) string {
	return fmt.Sprintf("%s.%s.deliver.%s", s.prefix, s.project, sanitize(string(token)))
}

// sanitize keeps a value usable as a single subject token.
func sanitize(v string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, v)
}
