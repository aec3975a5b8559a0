package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/eternisai/enchanted-push/internal/logger"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const collection = "push_tokens"

// FirestoreStore keeps registrations at /push_tokens/{user_id} with structure:
//
//	{
//	  tokens: {
//	    deviceId1: {token: "fcm_token_...", deviceId: "device1", lastUpdatedAt: "2025-01-01T00:00:00Z"},
//	    deviceId2: {...}
//	  }
//	}
type FirestoreStore struct {
	firestoreClient *firestore.Client
	logger          *logger.Logger
	now             func() time.Time
}

// NewFirestoreStore creates a store backed by firestoreClient.
func NewFirestoreStore(firestoreClient *firestore.Client, logger *logger.Logger) *FirestoreStore {
	return &FirestoreStore{
		firestoreClient: firestoreClient,
		logger:          logger.WithComponent("registry"),
		now:             time.Now,
	}
}

// Register upserts the device entry, leaving the user's other devices alone.
func (s *FirestoreStore) Register(ctx context.Context, userID, deviceID, token string) error {
	log := s.logger.WithContext(ctx)

	entry := TokenInfo{
		Token:         token,
		DeviceID:      deviceID,
		LastUpdatedAt: s.now().UTC().Format(time.RFC3339),
	}
	_, err := s.firestoreClient.Collection(collection).Doc(userID).Set(ctx, map[string]interface{}{
		"tokens": map[string]interface{}{
			deviceID: entry,
		},
	}, firestore.MergeAll)
	if err != nil {
		log.Error("failed to register device",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to register device: %w", err)
	}

	log.Info("device registered",
		slog.String("user_id", userID),
		slog.String("token_prefix", prefix(token)))
	return nil
}

// Unregister removes the device entry. A missing document or entry is
// ErrDeviceNotFound.
func (s *FirestoreStore) Unregister(ctx context.Context, userID, deviceID string) error {
	log := s.logger.WithContext(ctx)
	docRef := s.firestoreClient.Collection(collection).Doc(userID)

	err := s.firestoreClient.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(docRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return ErrDeviceNotFound
			}
			return err
		}

		tokensMap, _ := doc.Data()["tokens"].(map[string]interface{})
		if _, ok := tokensMap[deviceID]; !ok {
			return ErrDeviceNotFound
		}

		return tx.Update(docRef, []firestore.Update{
			{FieldPath: firestore.FieldPath{"tokens", deviceID}, Value: firestore.Delete},
		})
	})
	if err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			return err
		}
		log.Error("failed to unregister device",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to unregister device: %w", err)
	}

	log.Info("device unregistered", slog.String("user_id", userID))
	return nil
}

// Tokens retrieves all push tokens registered for a user.
func (s *FirestoreStore) Tokens(ctx context.Context, userID string) ([]TokenInfo, error) {
	log := s.logger.WithContext(ctx)

	log.Debug("fetching push tokens from Firestore",
		slog.String("user_id", userID),
		slog.String("path", fmt.Sprintf("%s/%s", collection, userID)))

	doc, err := s.firestoreClient.Collection(collection).Doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("%w for user %s", ErrNoTokens, userID)
		}
		log.Error("failed to fetch push tokens document",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to fetch push tokens: %w", err)
	}

	tokens, skipped := parseTokens(doc.Data())
	if skipped > 0 {
		log.Warn("skipped invalid token entries",
			slog.String("user_id", userID),
			slog.Int("skipped", skipped))
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w for user %s", ErrNoTokens, userID)
	}
	return tokens, nil
}

// parseTokens converts the tokens map of a push_tokens document. It returns
// the valid entries sorted by device and the number of entries skipped.
func parseTokens(data map[string]interface{}) ([]TokenInfo, int) {
	tokensMap, ok := data["tokens"].(map[string]interface{})
	if !ok {
		return nil, 0
	}

	var tokens []TokenInfo
	skipped := 0
	for deviceID, tokenData := range tokensMap {
		tokenMap, ok := tokenData.(map[string]interface{})
		if !ok {
			skipped++
			continue
		}

		token, ok := tokenMap["token"].(string)
		if !ok || token == "" {
			skipped++
			continue
		}

		info := TokenInfo{
			Token:    token,
			DeviceID: deviceID,
		}
		switch lastUpdated := tokenMap["lastUpdatedAt"].(type) {
		case string:
			info.LastUpdatedAt = lastUpdated
		case time.Time:
			info.LastUpdatedAt = lastUpdated.UTC().Format(time.RFC3339)
		}
		tokens = append(tokens, info)
	}

	sort.Slice(tokens, func(i, j int) bool { return tokens[i].DeviceID < tokens[j].DeviceID })
	return tokens, skipped
}

func prefix(token string) string {
	if len(token) <= 10 {
		return token
	}
	return token[:10] + "..."
}
