// Package outbox holds spreadsheet writes that failed so they can be retried
// outside the request that made them.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"absensi/internal/model"
	"absensi/internal/sheetclient"
)

// Message is one pending write.
type Message struct {
	Action   string          `json:"action"`
	Payload  json.RawMessage `json:"payload"`
	Attempts int             `json:"attempts"`
}

// Queue is the abstraction over different backends.
type Queue interface {
	Publish(ctx context.Context, msg Message) error
	Consume(ctx context.Context) (<-chan Message, error)
}

type idPayload struct {
	ID     string       `json:"id"`
	Status model.Status `json:"status,omitempty"`
}

// AddMessage wraps a failed ADD_ATTENDANCE.
func AddMessage(rec model.AttendanceRecord) Message {
	b, _ := json.Marshal(rec)
	return Message{Action: sheetclient.ActionAddAttendance, Payload: b}
}

// DeleteMessage wraps a failed DELETE_ATTENDANCE.
func DeleteMessage(id string) Message {
	b, _ := json.Marshal(idPayload{ID: id})
	return Message{Action: sheetclient.ActionDeleteAttendance, Payload: b}
}

// StatusMessage wraps a failed UPDATE_ATTENDANCE_STATUS.
func StatusMessage(id string, status model.Status) Message {
	b, _ := json.Marshal(idPayload{ID: id, Status: status})
	return Message{Action: sheetclient.ActionUpdateStatus, Payload: b}
}

// InMemory is a bounded channel-backed queue for single-process setups.
type InMemory struct {
	ch chan Message
}

// NewInMemory creates a bounded in-memory queue.
func NewInMemory(size int) *InMemory {
	return &InMemory{ch: make(chan Message, size)}
}

// ErrQueueFull is returned by InMemory.Publish when the buffer is full.
var ErrQueueFull = errors.New("outbox queue full")

// Publish enqueues a message without waiting. A full buffer returns
// ErrQueueFull so callers never block behind the replayer.
func (q *InMemory) Publish(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case q.ch <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Consume returns a channel for the replayer.
func (q *InMemory) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			select {
			case msg := <-q.ch:
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RedisQueue is a Redis list used with LPUSH/BRPOP so the API and the worker
// can run as separate processes.
type RedisQueue struct {
	client *redis.Client
	key    string
}

func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = "absensi:outbox"
	}
	return &RedisQueue{client: client, key: key}
}

// Publish enqueues a message.
func (q *RedisQueue) Publish(ctx context.Context, msg Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, b).Err()
}

// Consume streams messages using BRPOP. Undecodable entries are skipped.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if !errors.Is(err, redis.Nil) {
					time.Sleep(time.Second)
				}
				continue
			}
			if len(res) != 2 {
				continue
			}
			var msg Message
			if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
				continue
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
