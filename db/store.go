package db

import (
	"context"
	"errors"

	"debatesite/models"
)

var ErrNotFound = errors.New("record not found")

// FallbackTopic is used when the topic collection is empty.
const FallbackTopic = "Should pineapple be on pizza?"

// DefaultTopics seeds an empty topic collection.
var DefaultTopics = []string{
	"Social media has a positive impact on society",
	"Remote work is better than office work",
	"Artificial intelligence will benefit humanity more than it will harm it",
	"Video games have a positive impact on children",
	"Climate change is the most pressing issue of our time",
	"Free speech should have no limitations",
	"Technology makes us more isolated",
	"Education should be free for everyone",
	"Space exploration is worth the investment",
	"Democracy is the best form of government",
}

// Store is the record store the debate core persists into.
// CreateSession assigns an id when rec.ID is empty and returns it.
type Store interface {
	CreateSession(ctx context.Context, rec *models.DebateRecord) (string, error)
	AppendLog(ctx context.Context, sessionID string, entry models.LogEntry) error
	Finalize(ctx context.Context, sessionID string, outcome models.Outcome) error
	GetDebate(ctx context.Context, sessionID string) (*models.DebateRecord, error)
	RandomTopic(ctx context.Context) (string, error)
	SeedTopics(ctx context.Context, topics []string) (int, error)
	GetUser(ctx context.Context, userID string) (*models.User, error)
	SaveUser(ctx context.Context, user *models.User) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

func statusFor(outcome models.Outcome) string {
	if outcome.Reason == models.ReasonAborted {
		return models.StatusAborted
	}
	return models.StatusConcluded
}
