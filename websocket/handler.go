package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"debatesite/config"
	"debatesite/internal/debate"
	"debatesite/metrics"
	"debatesite/services"
	"debatesite/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Queue is the matchmaking queue as seen by a connection.
type Queue interface {
	Enqueue(userID string, rating int) error
	Dequeue(userID string) bool
	IsQueued(userID string) bool
	Status() services.QueueStatus
}

// Ratings resolves the stored rating of a user.
type Ratings interface {
	RatingOf(ctx context.Context, userID string) (int, error)
}

// Sessions is the live-session table as seen by a connection.
type Sessions interface {
	SessionFor(userID string) (*debate.Session, bool)
	Start(sessionID, userID string) (bool, error)
	Submit(sessionID, userID, content string) error
	Forfeit(sessionID, userID string) error
	HandleDisconnect(userID string)
	HandleReconnect(userID string)
}

// Handler upgrades HTTP requests to websocket connections and dispatches
// inbound protocol messages.
type Handler struct {
	cfg      config.WebSocketConfig
	registry *Registry
	queue    Queue
	ratings  Ratings
	sessions Sessions
	metrics  *metrics.Collector
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewHandler(cfg config.WebSocketConfig, registry *Registry, queue Queue, ratings Ratings,
	sessions Sessions, collector *metrics.Collector, logger *slog.Logger) *Handler {
	return &Handler{
		cfg:      cfg,
		registry: registry,
		queue:    queue,
		ratings:  ratings,
		sessions: sessions,
		metrics:  collector,
		logger:   logger.With("component", "websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origins are enforced by the CORS layer in front of the engine.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// identify resolves the user of a connection request. With a JWT secret
// configured the token is mandatory; otherwise a user_id query parameter is
// accepted.
func identify(c *gin.Context) (string, error) {
	token := c.Query("token")
	if token == "" {
		if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		}
	}
	if utils.JWTEnabled() {
		if token == "" {
			return "", ErrMissingIdentity
		}
		return utils.GetUserIDFromToken(token)
	}
	if id := strings.TrimSpace(c.Query("user_id")); id != "" {
		return id, nil
	}
	return "", ErrMissingIdentity
}

// ServeWS handles GET /ws.
func (h *Handler) ServeWS(c *gin.Context) {
	userID, err := identify(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "user_id", userID, "error", err)
		return
	}

	limiter := rate.NewLimiter(rate.Limit(h.cfg.RatePerSecond), h.cfg.Burst)
	client := newClient(conn, userID, h.cfg.SendBuffer, limiter)
	replaced, err := h.registry.Register(client)
	if err != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	h.logger.Info("client connected", "user_id", userID, "replaced", replaced)

	go client.writePump(h.cfg.PingInterval)
	h.sessions.HandleReconnect(userID)

	go func() {
		client.readPump(h.cfg.ReadLimit, h.cfg.PongWait, func(data []byte) { h.dispatch(client, data) })
		if h.registry.Unregister(client) {
			h.queue.Dequeue(userID)
			h.sessions.HandleDisconnect(userID)
			h.logger.Info("client disconnected", "user_id", userID)
		}
	}()
}

func (h *Handler) reply(c *Client, msg any) {
	h.registry.Send(c.userID, msg)
}

func (h *Handler) fail(c *Client, code string, err error) {
	h.reply(c, errorReply(code, err.Error()))
}

// dispatch handles one inbound frame.
func (h *Handler) dispatch(c *Client, data []byte) {
	var msg Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		h.reply(c, errorReply(CodeBadRequest, "malformed message"))
		return
	}
	h.metrics.RecordInbound(msg.Type)

	if !c.limiter.Allow() {
		h.reply(c, errorReply(CodeRateLimited, "too many messages"))
		return
	}
	if msg.UserID != "" && msg.UserID != c.userID {
		h.reply(c, errorReply(CodeNotParticipant, "user_id does not match the connection"))
		return
	}

	switch msg.Type {
	case TypeJoinQueue:
		h.joinQueue(c, msg)
	case TypeLeaveQueue:
		removed := h.queue.Dequeue(c.userID)
		h.reply(c, QueueLeft{Envelope: debate.Envelope{Type: TypeQueueLeft}, WasQueued: removed})
	case TypeQueueStatus:
		st := h.queue.Status()
		h.reply(c, QueueStatusReply{
			Envelope:          debate.Envelope{Type: TypeQueueStatus},
			WaitingCount:      st.WaitingCount,
			OldestWaitSeconds: st.OldestWaitSeconds,
		})
	case TypeStartDebate:
		if _, err := h.sessions.Start(msg.SessionID, c.userID); err != nil {
			h.fail(c, codeFor(err), err)
		}
	case TypeSubmitTurn:
		if err := h.sessions.Submit(msg.SessionID, c.userID, msg.Content); err != nil {
			h.fail(c, codeFor(err), err)
		}
	case TypeForfeitDebate:
		if err := h.sessions.Forfeit(msg.SessionID, c.userID); err != nil {
			h.fail(c, codeFor(err), err)
		}
	default:
		h.reply(c, errorReply(CodeBadRequest, "unknown message type "+msg.Type))
	}
}

func (h *Handler) joinQueue(c *Client, msg Inbound) {
	if _, busy := h.sessions.SessionFor(c.userID); busy {
		h.reply(c, errorReply(CodeBadRequest, "already in a debate"))
		return
	}
	if msg.Rating < 0 {
		h.reply(c, errorReply(CodeBadRequest, "rating must be positive"))
		return
	}
	if h.queue.IsQueued(c.userID) {
		h.fail(c, CodeAlreadyQueued, services.ErrAlreadyQueued)
		return
	}

	r := msg.Rating
	if r == 0 {
		ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
		defer cancel()
		stored, err := h.ratings.RatingOf(ctx, c.userID)
		if err != nil {
			h.logger.Warn("rating lookup failed", "user_id", c.userID, "error", err)
			h.reply(c, errorReply(CodeBadRequest, "rating unavailable"))
			return
		}
		r = stored
	}

	if err := h.queue.Enqueue(c.userID, r); err != nil {
		h.fail(c, codeFor(err), err)
		return
	}
	h.reply(c, QueueJoined{Envelope: debate.Envelope{Type: TypeQueueJoined}, Rating: r})
}

// codeFor maps a domain error to the code reported to the client.
func codeFor(err error) string {
	switch {
	case errors.Is(err, services.ErrAlreadyQueued):
		return CodeAlreadyQueued
	case errors.Is(err, debate.ErrUnknownSession), errors.Is(err, debate.ErrSessionConcluded):
		return CodeUnknownSession
	case errors.Is(err, debate.ErrOutOfTurn):
		return CodeOutOfTurn
	case errors.Is(err, debate.ErrNotParticipant):
		return CodeNotParticipant
	case errors.Is(err, debate.ErrInvalidContent):
		return CodeInvalidContent
	default:
		return CodeBadRequest
	}
}
