package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"firebase.google.com/go/v4/messaging"
	"github.com/eternisai/enchanted-push/internal/logger"
	"golang.org/x/oauth2/google"
)

// Messenger is the subset of the Cloud Messaging client the sender uses.
type Messenger interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
	SendDryRun(ctx context.Context, message *messaging.Message) (string, error)
}

// Notification is a test notification addressed to a user's devices.
type Notification struct {
	Title string
	Body  string
	Data  map[string]string
}

// SendResult represents the result of sending a notification to a device.
type SendResult struct {
	DeviceID string
	Token    string
	Success  bool
	Response string
	Error    string
}

// Sender delivers notifications to every device a user registered, and
// verifies tokens with dry-run sends.
type Sender struct {
	messenger Messenger
	store     Store
	logger    *logger.Logger

	// debugCreds enables curl reproductions of failed sends in the log.
	debugCreds string
	projectID  string
}

// NewSender creates a sender. credJSON may be empty.
func NewSender(messenger Messenger, store Store, projectID, credJSON string, logger *logger.Logger) *Sender {
	return &Sender{
		messenger:  messenger,
		store:      store,
		logger:     logger.WithComponent("push-sender"),
		debugCreds: credJSON,
		projectID:  projectID,
	}
}

// Verify checks token with a dry-run send. Tokens the provider reports as
// unregistered or invalid yield ErrTokenRejected.
func (s *Sender) Verify(ctx context.Context, token string) error {
	_, err := s.messenger.SendDryRun(ctx, &messaging.Message{
		Data:  map[string]string{"type": "verification"},
		Token: token,
	})
	switch {
	case err == nil:
		return nil
	case messaging.IsUnregistered(err), messaging.IsInvalidArgument(err), messaging.IsSenderIDMismatch(err):
		return fmt.Errorf("%w: %v", ErrTokenRejected, err)
	default:
		return fmt.Errorf("verifying token: %w", err)
	}
}

// Send delivers n to all of the user's registered devices. It fails only
// when every device failed.
func (s *Sender) Send(ctx context.Context, userID string, n Notification) ([]SendResult, error) {
	log := s.logger.WithContext(ctx)

	tokens, err := s.store.Tokens(ctx, userID)
	if err != nil {
		log.Warn("failed to retrieve push tokens",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to retrieve push tokens: %w", err)
	}

	log.Info("sending notification",
		slog.String("user_id", userID),
		slog.String("title", n.Title),
		slog.Int("device_count", len(tokens)))

	results := make([]SendResult, 0, len(tokens))
	failures := 0
	for _, info := range tokens {
		result := s.sendToDevice(ctx, info, n)
		results = append(results, result)
		if !result.Success {
			failures++
			log.Error("send failed",
				slog.String("device_id", info.DeviceID),
				slog.String("error", result.Error))
		}
	}

	log.Info("notification summary",
		slog.Int("total_devices", len(tokens)),
		slog.Int("successful", len(tokens)-failures),
		slog.Int("failed", failures))

	if failures == len(tokens) {
		return results, fmt.Errorf("all %d notification(s) failed", failures)
	}
	return results, nil
}

func (s *Sender) sendToDevice(ctx context.Context, info TokenInfo, n Notification) SendResult {
	message := &messaging.Message{
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Data:  n.Data,
		Token: info.Token,
	}

	result := SendResult{DeviceID: info.DeviceID, Token: prefix(info.Token)}
	response, err := s.messenger.Send(ctx, message)
	if err != nil {
		result.Error = err.Error()
		if s.debugCreds != "" {
			s.logger.Debug("reproduce with",
				slog.String("curl", DebugCurl(ctx, s.debugCreds, s.projectID, message)))
		}
		return result
	}

	result.Success = true
	result.Response = response
	return result
}

// DebugCurl creates a curl command that replicates the FCM request.
func DebugCurl(ctx context.Context, credJSON, projectID string, message *messaging.Message) string {
	creds, err := google.CredentialsFromJSON(ctx, []byte(credJSON),
		"https://www.googleapis.com/auth/firebase.messaging")
	if err != nil {
		return fmt.Sprintf("# ERROR: Failed to parse credentials: %v", err)
	}

	token, err := creds.TokenSource.Token()
	if err != nil {
		return fmt.Sprintf("# ERROR: Failed to get OAuth token: %v", err)
	}

	msg := map[string]interface{}{
		"token": message.Token,
		"data":  message.Data,
	}
	if message.Notification != nil {
		msg["notification"] = map[string]interface{}{
			"title": message.Notification.Title,
			"body":  message.Notification.Body,
		}
	}

	payloadJSON, err := json.Marshal(map[string]interface{}{"message": msg})
	if err != nil {
		return fmt.Sprintf("# ERROR: Failed to marshal payload: %v", err)
	}

	return fmt.Sprintf(`curl -X POST \
  'https://fcm.googleapis.com/v1/projects/%s/messages:send' \
  -H 'Authorization: Bearer %s' \
  -H 'Content-Type: application/json' \
  -d '%s'`,
		projectID,
		token.AccessToken,
		strings.ReplaceAll(string(payloadJSON), "'", "\\'"))
}
