package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/v2/mongo/otelmongo"

	"github.com/NovuntFinance/authgate/storage"
)

// SessionsCollection holds one document per client session blob.
const SessionsCollection = "client_sessions"

type sessionDoc struct {
	ID        string    `bson:"_id"`
	Blob      []byte    `bson:"blob"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// Connect initializes a MongoDB client suitable for the session store.
// It should be called once at application startup.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	log.Info().Msg("Initializing MongoDB client for session storage")

	clientOptions := options.Client().ApplyURI(uri)
	clientOptions.SetConnectTimeout(10 * time.Second)
	clientOptions.SetMonitor(
		otelmongo.NewMonitor(),
	)

	client, err := mongo.Connect(clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping the primary to verify connection.
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client, nil
}

// SessionStore implements storage.Storage on a MongoDB collection, for
// deployments that already run the platform's document store and want
// shared, auditable session blobs.
type SessionStore struct {
	coll *mongo.Collection
	id   string
}

// NewSessionStore creates a store writing to db's client_sessions
// collection under the given store id.
func NewSessionStore(db *mongo.Database, id string) *SessionStore {
	return &SessionStore{
		coll: db.Collection(SessionsCollection),
		id:   id,
	}
}

// Load implements storage.Storage.
func (s *SessionStore) Load(ctx context.Context) ([]byte, error) {
	var doc sessionDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": s.id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load session blob: %w", err)
	}
	return doc.Blob, nil
}

// Save implements storage.Storage.
func (s *SessionStore) Save(ctx context.Context, data []byte) error {
	doc := sessionDoc{
		ID:        s.id,
		Blob:      data,
		UpdatedAt: time.Now().UTC(),
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.coll.ReplaceOne(ctx, bson.M{"_id": s.id}, doc, opts); err != nil {
		return fmt.Errorf("failed to save session blob: %w", err)
	}
	return nil
}

// Clear implements storage.Storage.
func (s *SessionStore) Clear(ctx context.Context) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": s.id}); err != nil {
		return fmt.Errorf("failed to clear session blob: %w", err)
	}
	return nil
}

var _ storage.Storage = (*SessionStore)(nil)
