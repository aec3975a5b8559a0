package registry

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// FirebaseClient wraps the Firebase services the registry uses.
type FirebaseClient struct {
	Firestore *firestore.Client
	Messaging *messaging.Client
}

// NewFirebaseClient creates Firestore and Cloud Messaging clients for projectID.
func NewFirebaseClient(ctx context.Context, projectID, credJSON string) (*FirebaseClient, error) {
	opt := option.WithCredentialsJSON([]byte(credJSON))

	config := &firebase.Config{
		ProjectID: projectID,
	}

	app, err := firebase.NewApp(ctx, config, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %v", err)
	}

	firestoreClient, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get Firestore client: %w", err)
	}

	messagingClient, err := app.Messaging(ctx)
	if err != nil {
		firestoreClient.Close()
		return nil, fmt.Errorf("failed to get Messaging client: %w", err)
	}

	return &FirebaseClient{
		Firestore: firestoreClient,
		Messaging: messagingClient,
	}, nil
}

// Close closes the Firestore client
func (f *FirebaseClient) Close() error {
	if f.Firestore != nil {
		return f.Firestore.Close()
	}
	return nil
}
