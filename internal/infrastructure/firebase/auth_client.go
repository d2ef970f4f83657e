package firebase

import (
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/firestore"
	fbapp "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"cuidar/pkg/logger"
)

// Credentials picks the service account source: inline JSON first, then a
// file path. Both empty means application default credentials, which is also
// what the emulators expect.
func Credentials(serviceAccountJSON, serviceAccountPath string) ([]option.ClientOption, error) {
	if serviceAccountJSON != "" {
		logger.Info("Using Firebase service account from environment variable")
		return []option.ClientOption{option.WithCredentialsJSON([]byte(serviceAccountJSON))}, nil
	}
	if serviceAccountPath != "" {
		if _, err := os.Stat(serviceAccountPath); err != nil {
			return nil, fmt.Errorf("service account file %s: %w", serviceAccountPath, err)
		}
		logger.Info("Using Firebase service account from file: %s", serviceAccountPath)
		return []option.ClientOption{option.WithCredentialsFile(serviceAccountPath)}, nil
	}
	logger.Warn("No Firebase service account configured, using application default credentials")
	return nil, nil
}

// Clients bundles the Firebase services the server talks to.
type Clients struct {
	Auth      *FirebaseAuthClient
	Firestore *firestore.Client
}

func NewClients(ctx context.Context, projectID string, opts ...option.ClientOption) (*Clients, error) {
	app, err := fbapp.NewApp(ctx, &fbapp.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase Auth: %w", err)
	}

	firestoreClient, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return &Clients{
		Auth:      NewFirebaseAuthClient(authClient),
		Firestore: firestoreClient,
	}, nil
}

func (c *Clients) Close() error {
	return c.Firestore.Close()
}

// FirebaseAuthClient verifies the ID tokens the mobile app obtains at sign-in.
type FirebaseAuthClient struct {
	client *auth.Client
}

func NewFirebaseAuthClient(client *auth.Client) *FirebaseAuthClient {
	return &FirebaseAuthClient{
		client: client,
	}
}

func (f *FirebaseAuthClient) VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error) {
	return f.client.VerifyIDToken(ctx, idToken)
}

// TestConnection makes one authenticated call so health checks can tell a
// bad credential from a healthy service.
func (f *FirebaseAuthClient) TestConnection(ctx context.Context) error {
	_, err := f.client.GetUser(ctx, "health-check-user")
	if err != nil && !auth.IsUserNotFound(err) {
		return err
	}
	return nil
}
