package push

import (
	"fmt"
	"strings"
)

// PermissionState mirrors the platform notification permission.
type PermissionState int

const (
	PermissionDefault PermissionState = iota
	PermissionGranted
	PermissionDenied
)

func (s PermissionState) String() string {
	switch s {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	default:
		return "default"
	}
}

// ParsePermissionState maps the platform's tri-state string onto PermissionState.
// Anything unrecognised is treated as Default, i.e. the user has not decided.
func ParsePermissionState(s string) PermissionState {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "granted":
		return PermissionGranted
	case "denied":
		return PermissionDenied
	default:
		return PermissionDefault
	}
}

func (s PermissionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *PermissionState) UnmarshalText(text []byte) error {
	*s = ParsePermissionState(string(text))
	return nil
}

// Token is an opaque registration token issued by the push provider.
// The empty Token means no token is available.
type Token string

// Prefix returns a short, log-safe prefix of the token.
func (t Token) Prefix() string {
	if len(t) <= 10 {
		return string(t)
	}
	return string(t[:10]) + "..."
}

// Config identifies one push provider backend. Distinct deployment
// environments carry distinct values.
type Config struct {
	ProjectID      string `yaml:"project_id" json:"projectId"`
	AppID          string `yaml:"app_id" json:"appId"`
	SenderID       string `yaml:"sender_id" json:"senderId"`
	StorageBucket  string `yaml:"storage_bucket" json:"storageBucket"`
	VAPIDPublicKey string `yaml:"vapid_public_key" json:"vapidPublicKey"`
}

// Validate checks that every identity needed to bootstrap a client is present.
func (c Config) Validate() error {
	var missing []string
	if c.ProjectID == "" {
		missing = append(missing, "project_id")
	}
	if c.AppID == "" {
		missing = append(missing, "app_id")
	}
	if c.SenderID == "" {
		missing = append(missing, "sender_id")
	}
	if c.VAPIDPublicKey == "" {
		missing = append(missing, "vapid_public_key")
	}
	if len(missing) > 0 {
		return fmt.Errorf("push config incomplete: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Key identifies the backend a configuration points at.
func (c Config) Key() string {
	return c.ProjectID + "/" + c.AppID
}
