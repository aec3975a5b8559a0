// Package registry records which push token each of a user's devices holds,
// so the backend can address the user's devices.
package registry

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	// ErrDeviceNotFound is returned when unregistering a device the user never registered.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrNoTokens is returned when a user has no registered device.
	ErrNoTokens = errors.New("no push tokens registered")
	// ErrTokenRejected is returned by a Verifier for tokens the provider no longer accepts.
	ErrTokenRejected = errors.New("push token rejected by provider")
)

// TokenInfo represents a push notification token stored for one device.
type TokenInfo struct {
	Token         string `firestore:"token" json:"token"`
	DeviceID      string `firestore:"deviceId" json:"deviceId"`
	LastUpdatedAt string `firestore:"lastUpdatedAt" json:"lastUpdatedAt"`
}

// Store persists device registrations per user.
type Store interface {
	Register(ctx context.Context, userID, deviceID, token string) error
	Unregister(ctx context.Context, userID, deviceID string) error
	Tokens(ctx context.Context, userID string) ([]TokenInfo, error)
}

// MemoryStore keeps registrations in process. Used when no Firebase
// credentials are configured.
type MemoryStore struct {
	mu    sync.Mutex
	users map[string]map[string]TokenInfo
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]map[string]TokenInfo),
		now:   time.Now,
	}
}

func (m *MemoryStore) Register(ctx context.Context, userID, deviceID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.users[userID] == nil {
		m.users[userID] = make(map[string]TokenInfo)
	}
	m.users[userID][deviceID] = TokenInfo{
		Token:         token,
		DeviceID:      deviceID,
		LastUpdatedAt: m.now().UTC().Format(time.RFC3339),
	}
	return nil
}

func (m *MemoryStore) Unregister(ctx context.Context, userID, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	devices, ok := m.users[userID]
	if !ok {
		return ErrDeviceNotFound
	}
	if _, ok := devices[deviceID]; !ok {
		return ErrDeviceNotFound
	}
	delete(devices, deviceID)
	if len(devices) == 0 {
		delete(m.users, userID)
	}
	return nil
}

func (m *MemoryStore) Tokens(ctx context.Context, userID string) ([]TokenInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	devices := m.users[userID]
	if len(devices) == 0 {
		return nil, ErrNoTokens
	}
	tokens := make([]TokenInfo, 0, len(devices))
	for _, info := range devices {
		tokens = append(tokens, info)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].DeviceID < tokens[j].DeviceID })
	return tokens, nil
}

// Find returns the registration of deviceID among tokens.
func Find(tokens []TokenInfo, deviceID string) (TokenInfo, bool) {
	for _, t := range tokens {
		if t.DeviceID == deviceID {
			return t, true
		}
	}
	return TokenInfo{}, false
}
