package db

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/example/quakealert/internal/config"
)

// Collection names of the document store.
const (
	usersCollection           = "users"
	pendingRequestsCollection = "pendingRequests"
	groupChatsCollection      = "groupChats"
	chatsCollection           = "chats"
	messagesCollection        = "messages"
	auditLogsCollection       = "auditLogs"
)

// FirebaseClients holds the clients created from one Firebase app.
type FirebaseClients struct {
	Firestore *firestore.Client
	Auth      *auth.Client
}

// InitFirebase initializes the Firebase Admin SDK and returns the Firestore and
// Auth clients. Credentials come from a file, a base64 JSON blob, or
// Application Default Credentials, in that order.
func InitFirebase(ctx context.Context, appConfig *config.Config, logger *zap.Logger) (*FirebaseClients, error) {
	if appConfig == nil {
		return nil, fmt.Errorf("InitFirebase: appConfig cannot be nil")
	}

	var opts []option.ClientOption
	switch {
	case appConfig.GoogleApplicationCredentials != "":
		logger.Info("Initializing Firebase with credentials file", zap.String("path", appConfig.GoogleApplicationCredentials))
		if _, err := os.Stat(appConfig.GoogleApplicationCredentials); os.IsNotExist(err) {
			logger.Warn("Credentials file does not exist; the SDK may still find ADC", zap.String("path", appConfig.GoogleApplicationCredentials))
		}
		opts = append(opts, option.WithCredentialsFile(appConfig.GoogleApplicationCredentials))
	case appConfig.FirebaseServiceAccountJSONBase64 != "":
		logger.Info("Initializing Firebase with base64 encoded service account JSON")
		decodedJSON, err := base64.StdEncoding.DecodeString(appConfig.FirebaseServiceAccountJSONBase64)
		if err != nil {
			return nil, fmt.Errorf("failed to decode FIREBASE_SERVICE_ACCOUNT_JSON_BASE64: %w", err)
		}
		opts = append(opts, option.WithCredentialsJSON(decodedJSON))
	default:
		logger.Info("Initializing Firebase using Application Default Credentials")
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: appConfig.FirebaseProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase.NewApp: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("app.Auth: %w", err)
	}

	clients := &FirebaseClients{Auth: authClient}
	if appConfig.StoreDriver != config.StoreDriverFirestore {
		return clients, nil
	}

	fsClient, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("app.Firestore: %w", err)
	}
	clients.Firestore = fsClient
	logger.Info("Firestore client initialized", zap.String("projectID", appConfig.FirebaseProjectID))
	return clients, nil
}

// firestoreStore implements Store on top of a Firestore client.
type firestoreStore struct {
	client   *firestore.Client
	users    *firestoreUserRepository
	requests *firestoreFriendRequestRepository
	groups   *firestoreGroupRepository
	messages *firestoreMessageRepository
	audit    *firestoreAuditRepository
}

// NewFirestoreStore creates a Store backed by client. The caller owns the client;
// Close on the returned store closes it.
func NewFirestoreStore(client *firestore.Client, logger *zap.Logger) Store {
	if client == nil {
		panic("Firestore client is not initialized for NewFirestoreStore")
	}
	return &firestoreStore{
		client:   client,
		users:    &firestoreUserRepository{client: client, logger: logger},
		requests: &firestoreFriendRequestRepository{client: client, logger: logger},
		groups:   &firestoreGroupRepository{client: client, logger: logger},
		messages: &firestoreMessageRepository{client: client, logger: logger},
		audit:    &firestoreAuditRepository{client: client},
	}
}

func (s *firestoreStore) Users() UserRepository                   { return s.users }
func (s *firestoreStore) FriendRequests() FriendRequestRepository { return s.requests }
func (s *firestoreStore) Groups() GroupRepository                 { return s.groups }
func (s *firestoreStore) Messages() MessageRepository             { return s.messages }
func (s *firestoreStore) Audit() AuditRepository                  { return s.audit }
func (s *firestoreStore) Close() error                            { return s.client.Close() }

func (s *firestoreStore) NewGraphBatch() GraphBatch {
	return &firestoreGraphBatch{client: s.client}
}

// watchQuery runs q as a live query and pushes decoded snapshots into a new
// Subscription until ctx ends or the subscription is cancelled.
func watchQuery[T any](ctx context.Context, q firestore.Query, decode func(*firestore.DocumentSnapshot) (T, error), logger *zap.Logger) *Subscription[T] {
	sub, ctx := newSubscription[T](ctx)
	go func() {
		it := q.Snapshots(ctx)
		defer it.Stop()
		for {
			qs, err := it.Next()
			if err != nil {
				if ctx.Err() == nil {
					sub.push(Snapshot[T]{Err: mapError(err, "live query")})
				}
				sub.Cancel()
				return
			}
			docs, err := qs.Documents.GetAll()
			if err != nil {
				sub.push(Snapshot[T]{Err: mapError(err, "live query documents")})
				sub.Cancel()
				return
			}
			items := make([]T, 0, len(docs))
			for _, doc := range docs {
				item, err := decode(doc)
				if err != nil {
					logger.Warn("Skipping undecodable document in live query", zap.String("docPath", doc.Ref.Path), zap.Error(err))
					continue
				}
				items = append(items, item)
			}
			if !sub.push(Snapshot[T]{Items: items}) {
				return
			}
		}
	}()
	return sub
}

// watchDoc runs a live listener on a single document. A missing document is
// reported as an empty snapshot.
func watchDoc[T any](ctx context.Context, ref *firestore.DocumentRef, decode func(*firestore.DocumentSnapshot) (T, error)) *Subscription[T] {
	sub, ctx := newSubscription[T](ctx)
	go func() {
		it := ref.Snapshots(ctx)
		defer it.Stop()
		for {
			snap, err := it.Next()
			if err != nil {
				if ctx.Err() == nil {
					sub.push(Snapshot[T]{Err: mapError(err, "live document "+ref.Path)})
				}
				sub.Cancel()
				return
			}
			var items []T
			if snap.Exists() {
				item, err := decode(snap)
				if err != nil {
					sub.push(Snapshot[T]{Err: fmt.Errorf("failed to decode %s: %w", ref.Path, err)})
					sub.Cancel()
					return
				}
				items = []T{item}
			}
			if !sub.push(Snapshot[T]{Items: items}) {
				return
			}
		}
	}()
	return sub
}

// getAll drains a query iterator into decoded values.
func getAll[T any](ctx context.Context, q firestore.Query, decode func(*firestore.DocumentSnapshot) (T, error)) ([]T, error) {
	docs, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		item, err := decode(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", doc.Ref.Path, err)
		}
		out = append(out, item)
	}
	return out, nil
}
