package routes

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"debatesite/db"
	"debatesite/internal/debate"
	"debatesite/models"
	"debatesite/services"

	"github.com/gin-gonic/gin"
)

// Queue reports the matchmaking queue.
type Queue interface {
	Status() services.QueueStatus
}

// Connections reports the connection registry.
type Connections interface {
	Count() int
}

// Sessions is the live-session table.
type Sessions interface {
	Status(sessionID string) (debate.Status, error)
	Statuses() []debate.Status
	ActiveCount() int
	Adjudicate(sessionID, winner string) error
}

// Records reads persisted debates.
type Records interface {
	GetDebate(ctx context.Context, sessionID string) (*models.DebateRecord, error)
	Ping(ctx context.Context) error
}

// EventReader replays the event stream of a session.
type EventReader interface {
	Events(ctx context.Context, sessionID string, count int64) ([]debate.Event, error)
}

const (
	defaultEventCount = 100
	maxEventCount     = 1000
	requestTimeout    = 5 * time.Second
)

// API serves the HTTP status and adjudication endpoints.
type API struct {
	queue    Queue
	conns    Connections
	sessions Sessions
	records  Records
	events   EventReader
	logger   *slog.Logger
}

// NewAPI builds the HTTP handlers. events may be nil when no stream is
// configured.
func NewAPI(queue Queue, conns Connections, sessions Sessions, records Records, events EventReader, logger *slog.Logger) *API {
	return &API{
		queue:    queue,
		conns:    conns,
		sessions: sessions,
		records:  records,
		events:   events,
		logger:   logger.With("component", "http"),
	}
}

// Register mounts the routes. Adjudication goes through auth when it is
// not nil.
func (a *API) Register(r gin.IRouter, auth gin.HandlerFunc) {
	r.GET("/health", a.Health)
	r.GET("/status", a.GetStatus)
	r.GET("/queue/status", a.GetQueueStatus)
	r.GET("/debates", a.ListDebates)
	r.GET("/debates/:id", a.GetDebate)
	r.GET("/debates/:id/events", a.GetEvents)

	adjudicate := []gin.HandlerFunc{a.Adjudicate}
	if auth != nil {
		adjudicate = append([]gin.HandlerFunc{auth}, adjudicate...)
	}
	r.POST("/debates/:id/adjudicate", adjudicate...)
}

func (a *API) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()
	if err := a.records.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetStatus handles GET /status
func (a *API) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected_users": a.conns.Count(),
		"active_debates":  a.sessions.ActiveCount(),
		"queue":           a.queue.Status(),
	})
}

func (a *API) GetQueueStatus(c *gin.Context) {
	c.JSON(http.StatusOK, a.queue.Status())
}

// ListDebates returns every live session.
func (a *API) ListDebates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"debates": a.sessions.Statuses()})
}

// GetDebate returns the live status of a session, or its stored record once
// it has concluded.
func (a *API) GetDebate(c *gin.Context) {
	id := c.Param("id")

	st, err := a.sessions.Status(id)
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"live": true, "status": st})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()
	rec, err := a.records.GetDebate(ctx, id)
	switch {
	case errors.Is(err, db.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Debate not found"})
	case err != nil:
		a.logger.Error("failed to load debate", "session_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load debate"})
	default:
		c.JSON(http.StatusOK, gin.H{"live": false, "record": rec})
	}
}

// Adjudicate handles POST /debates/:id/adjudicate with {"winner": "<user id>"}.
// A null or missing winner records a draw.
func (a *API) Adjudicate(c *gin.Context) {
	var request struct {
		Winner *string `json:"winner"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
			return
		}
	}

	winner := ""
	if request.Winner != nil {
		winner = *request.Winner
	}
	id := c.Param("id")

	err := a.sessions.Adjudicate(id, winner)
	switch {
	case errors.Is(err, debate.ErrUnknownSession):
		c.JSON(http.StatusNotFound, gin.H{"error": "Debate not found"})
	case errors.Is(err, debate.ErrInvalidWinner):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Winner is not a participant"})
	case errors.Is(err, debate.ErrSessionConcluded):
		c.JSON(http.StatusConflict, gin.H{"error": "Debate already concluded"})
	case err != nil:
		a.logger.Error("adjudication failed", "session_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Adjudication failed"})
	default:
		a.logger.Info("debate adjudicated", "session_id", id, "winner", winner)
		c.JSON(http.StatusAccepted, gin.H{"session_id": id, "winner": request.Winner})
	}
}

// GetEvents replays the event stream of a session.
func (a *API) GetEvents(c *gin.Context) {
	if a.events == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Event stream not configured"})
		return
	}

	count := int64(defaultEventCount)
	if raw := c.Query("count"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "count must be a positive integer"})
			return
		}
		count = min(n, maxEventCount)
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()
	events, err := a.events.Events(ctx, c.Param("id"), count)
	if err != nil {
		a.logger.Error("failed to read events", "session_id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read events"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
