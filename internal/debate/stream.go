package debate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// streamMaxLen bounds the history kept per session stream.
const streamMaxLen = 10000

// Event is one session message as appended to the Redis stream.
// An empty Recipient means both participants received it.
type Event struct {
	Type      string          `json:"type"`
	Recipient string          `json:"recipient,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
}

// NewEvent creates a new event with timestamp
func NewEvent(recipient string, msg Message) (*Event, error) {
	payloadBytes, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}

	return &Event{
		Type:      msg.MessageType(),
		Recipient: recipient,
		Payload:   payloadBytes,
		Timestamp: time.Now().Unix(),
	}, nil
}

// MarshalEvent marshals an event to JSON string for Redis Stream
func MarshalEvent(event *Event) (string, error) {
	b, err := json.Marshal(event)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// UnmarshalEvent unmarshals a JSON string to an Event
func UnmarshalEvent(data string) (*Event, error) {
	var event Event
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// StreamKey is the Redis stream holding a session's events.
func StreamKey(sessionID string) string {
	return fmt.Sprintf("debate:%s:events", sessionID)
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

type streamEvent struct {
	sessionID string
	event     *Event
}

// RedisStream appends session events to per-session Redis streams.
// Publish only enqueues; Run performs the writes.
type RedisStream struct {
	rdb     *redis.Client
	logger  *slog.Logger
	queue   chan streamEvent
	dropped atomic.Int64
}

func NewRedisStream(rdb *redis.Client, buffer int, logger *slog.Logger) *RedisStream {
	if buffer <= 0 {
		buffer = 1024
	}
	return &RedisStream{
		rdb:    rdb,
		logger: logger.With("component", "event_stream"),
		queue:  make(chan streamEvent, buffer),
	}
}

// Publish queues msg for the session stream. Events are dropped when the
// queue is full.
func (r *RedisStream) Publish(sessionID, recipient string, msg Message) {
	ev, err := NewEvent(recipient, msg)
	if err != nil {
		r.logger.Warn("failed to encode event", "session_id", sessionID, "error", err)
		return
	}
	select {
	case r.queue <- streamEvent{sessionID: sessionID, event: ev}:
	default:
		r.dropped.Add(1)
	}
}

// Dropped reports how many events were discarded because the queue was full.
func (r *RedisStream) Dropped() int64 {
	return r.dropped.Load()
}

// Run writes queued events until ctx is cancelled, then flushes what is left.
func (r *RedisStream) Run(ctx context.Context) {
	for {
		select {
		case se := <-r.queue:
			r.write(ctx, se)
		case <-ctx.Done():
			r.flush()
			return
		}
	}
}

func (r *RedisStream) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		select {
		case se := <-r.queue:
			r.write(ctx, se)
		default:
			return
		}
	}
}

func (r *RedisStream) write(ctx context.Context, se streamEvent) {
	data, err := MarshalEvent(se.event)
	if err != nil {
		return
	}
	err = r.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey(se.sessionID),
		Values: map[string]interface{}{"data": data},
		MaxLen: streamMaxLen,
		Approx: true,
	}).Err()
	if err != nil {
		r.logger.Warn("failed to publish event", "session_id", se.sessionID, "type", se.event.Type, "error", err)
	}
}

// Events reads up to count events of a session stream from the beginning.
func (r *RedisStream) Events(ctx context.Context, sessionID string, count int64) ([]Event, error) {
	msgs, err := r.rdb.XRangeN(ctx, StreamKey(sessionID), "-", "+", count).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return r.decode(sessionID, msgs), nil
}

// Follow delivers the events of a session as they are appended, starting from
// the beginning of the stream. It returns when ctx is cancelled or after the
// debate_concluded event has been delivered.
func (r *RedisStream) Follow(ctx context.Context, sessionID string, fn func(Event)) error {
	key := StreamKey(sessionID)
	last := "0"
	for {
		streams, err := r.rdb.XRead(ctx, &redis.XReadArgs{
			Streams: []string{key, last},
			Count:   100,
			Block:   time.Second,
		}).Result()
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			return fmt.Errorf("failed to follow events: %w", err)
		}

		for _, stream := range streams {
			if len(stream.Messages) == 0 {
				continue
			}
			last = stream.Messages[len(stream.Messages)-1].ID
			for _, ev := range r.decode(sessionID, stream.Messages) {
				fn(ev)
				if ev.Type == TypeDebateConcluded {
					return nil
				}
			}
		}
	}
}

func (r *RedisStream) decode(sessionID string, msgs []redis.XMessage) []Event {
	events := make([]Event, 0, len(msgs))
	for _, m := range msgs {
		raw, ok := m.Values["data"].(string)
		if !ok {
			continue
		}
		ev, err := UnmarshalEvent(raw)
		if err != nil {
			r.logger.Warn("skipping malformed event", "session_id", sessionID, "id", m.ID, "error", err)
			continue
		}
		events = append(events, *ev)
	}
	return events
}
