package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"debatesite/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore persists debates, users and topics in MongoDB.
type MongoStore struct {
	client   *mongo.Client
	database *mongo.Database
	debates  *mongo.Collection
	users    *mongo.Collection
	topics   *mongo.Collection
}

// extractDBName parses the database name from the URI, defaulting to "test"
func extractDBName(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return "test"
	}
	if u.Path != "" && u.Path != "/" {
		return u.Path[1:] // Trim leading '/'
	}
	return "test"
}

// NewMongoStore connects to MongoDB using the provided URI and verifies the
// connection with a ping.
func NewMongoStore(ctx context.Context, uri string, logger *slog.Logger) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	dbName := extractDBName(uri)
	logger.Info("using mongo database", "database", dbName)

	database := client.Database(dbName)
	return &MongoStore{
		client:   client,
		database: database,
		debates:  database.Collection("debates"),
		users:    database.Collection("users"),
		topics:   database.Collection("topics"),
	}, nil
}

func (s *MongoStore) CreateSession(ctx context.Context, rec *models.DebateRecord) (string, error) {
	doc := *rec
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.Status == "" {
		doc.Status = models.StatusActive
	}
	if doc.Log == nil {
		doc.Log = []models.LogEntry{}
	}
	if _, err := s.debates.InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("insert debate: %w", err)
	}
	return doc.ID, nil
}

func (s *MongoStore) AppendLog(ctx context.Context, sessionID string, entry models.LogEntry) error {
	res, err := s.debates.UpdateByID(ctx, sessionID, bson.M{"$push": bson.M{"log": entry}})
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) Finalize(ctx context.Context, sessionID string, outcome models.Outcome) error {
	update := bson.M{"$set": bson.M{
		"status":      statusFor(outcome),
		"outcome":     outcome,
		"concludedAt": time.Now(),
	}}
	res, err := s.debates.UpdateByID(ctx, sessionID, update)
	if err != nil {
		return fmt.Errorf("finalize debate: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) GetDebate(ctx context.Context, sessionID string) (*models.DebateRecord, error) {
	var rec models.DebateRecord
	err := s.debates.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *MongoStore) RandomTopic(ctx context.Context) (string, error) {
	cursor, err := s.topics.Aggregate(ctx, mongo.Pipeline{{{Key: "$sample", Value: bson.M{"size": 1}}}})
	if err != nil {
		return "", fmt.Errorf("sample topic: %w", err)
	}
	defer cursor.Close(ctx)

	var picked []models.Topic
	if err := cursor.All(ctx, &picked); err != nil {
		return "", err
	}
	if len(picked) == 0 {
		return FallbackTopic, nil
	}
	return picked[0].Text, nil
}

// SeedTopics inserts topics only when the collection is empty.
func (s *MongoStore) SeedTopics(ctx context.Context, topics []string) (int, error) {
	count, err := s.topics.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}

	docs := make([]interface{}, 0, len(topics))
	for i, t := range topics {
		docs = append(docs, models.Topic{ID: i + 1, Text: t})
	}
	if len(docs) == 0 {
		return 0, nil
	}
	if _, err := s.topics.InsertMany(ctx, docs); err != nil {
		return 0, fmt.Errorf("seed topics: %w", err)
	}
	return len(docs), nil
}

func (s *MongoStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var u models.User
	err := s.users.FindOne(ctx, bson.M{"_id": userID}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *MongoStore) SaveUser(ctx context.Context, user *models.User) error {
	doc := *user
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.users.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, opts); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
