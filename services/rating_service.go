package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"debatesite/db"
	"debatesite/internal/debate"
	"debatesite/models"
	"debatesite/rating"
)

// UserStore is the part of the record store holding users.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
	SaveUser(ctx context.Context, user *models.User) error
}

// RatingService reads and updates user ratings.
type RatingService struct {
	store  UserStore
	elo    *rating.Elo
	logger *slog.Logger

	// serializes read-modify-write of user records
	mu sync.Mutex
}

func NewRatingService(store UserStore, elo *rating.Elo, logger *slog.Logger) *RatingService {
	if elo == nil {
		elo = rating.New(0)
	}
	return &RatingService{store: store, elo: elo, logger: logger.With("component", "ratings")}
}

// RatingOf returns a user's rating, creating the user with the default
// rating on first sight.
func (r *RatingService) RatingOf(ctx context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, err := r.loadOrCreate(ctx, userID)
	if err != nil {
		return 0, err
	}
	return u.Rating, nil
}

func (r *RatingService) loadOrCreate(ctx context.Context, userID string) (*models.User, error) {
	u, err := r.store.GetUser(ctx, userID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}
	u = &models.User{ID: userID, Username: userID, Rating: models.DefaultRating}
	if err := r.store.SaveUser(ctx, u); err != nil {
		return nil, fmt.Errorf("create user %s: %w", userID, err)
	}
	return u, nil
}

// scoreFor maps an outcome to the score of user a. It reports false for
// outcomes that must not move ratings.
func scoreFor(a string, o models.Outcome) (float64, bool) {
	switch o.Reason {
	case models.ReasonAborted, models.ReasonShutdown:
		return 0, false
	}
	switch {
	case o.Winner == a:
		return rating.Win, true
	case o.Winner != "":
		return rating.Loss, true
	case o.Reason == models.ReasonCompleted || o.Reason == models.ReasonAdjudicated:
		return rating.Draw, true
	default:
		return 0, false
	}
}

// Apply updates both participants after a concluded debate. It is registered
// as a session result hook.
func (r *RatingService) Apply(ctx context.Context, res debate.Result) {
	score, ok := scoreFor(res.UserA, res.Outcome)
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a, err := r.loadOrCreate(ctx, res.UserA)
	if err != nil {
		r.logger.Warn("rating update skipped", "session_id", res.SessionID, "error", err)
		return
	}
	b, err := r.loadOrCreate(ctx, res.UserB)
	if err != nil {
		r.logger.Warn("rating update skipped", "session_id", res.SessionID, "error", err)
		return
	}

	oldA, oldB := a.Rating, b.Rating
	a.Rating, b.Rating = r.elo.Update(a.Rating, b.Rating, score)
	switch score {
	case rating.Win:
		a.Wins++
		b.Losses++
	case rating.Loss:
		a.Losses++
		b.Wins++
	default:
		a.Draws++
		b.Draws++
	}

	for _, u := range []*models.User{a, b} {
		if err := r.store.SaveUser(ctx, u); err != nil {
			r.logger.Warn("failed to save rating", "user_id", u.ID, "error", err)
		}
	}
	r.logger.Info("ratings updated", "session_id", res.SessionID,
		"user_a", a.ID, "rating_a", fmt.Sprintf("%d->%d", oldA, a.Rating),
		"user_b", b.ID, "rating_b", fmt.Sprintf("%d->%d", oldB, b.Rating))
}
