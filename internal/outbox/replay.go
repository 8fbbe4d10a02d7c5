package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"absensi/internal/metrics"
	"absensi/internal/model"
	"absensi/internal/sheetclient"
)

// Writer is the subset of the spreadsheet gateway the replayer needs.
type Writer interface {
	AddAttendance(ctx context.Context, rec model.AttendanceRecord) error
	DeleteAttendance(ctx context.Context, id string) error
	UpdateAttendanceStatus(ctx context.Context, id string, status model.Status) error
}

// Replayer consumes the outbox and retries each write until it succeeds or
// MaxAttempts is reached. The n-th retry waits n*Backoff.
type Replayer struct {
	Queue       Queue
	Writer      Writer
	MaxAttempts int
	Backoff     time.Duration
	Log         *zap.Logger
}

// Run blocks until ctx is cancelled.
func (r *Replayer) Run(ctx context.Context) error {
	if r.Log == nil {
		r.Log = zap.NewNop()
	}
	messages, err := r.Queue.Consume(ctx)
	if err != nil {
		return fmt.Errorf("outbox consume: %w", err)
	}
	r.Log.Info("outbox replayer started", zap.Int("max_attempts", r.MaxAttempts))
	for msg := range messages {
		r.handle(ctx, msg)
	}
	r.Log.Info("outbox replayer stopped")
	return nil
}

func (r *Replayer) handle(ctx context.Context, msg Message) {
	msg.Attempts++
	err := r.apply(ctx, msg)
	log := r.Log.With(zap.String("action", msg.Action), zap.Int("attempt", msg.Attempts))
	if err == nil {
		metrics.OutboxReplays.WithLabelValues(msg.Action, "ok").Inc()
		log.Info("outbox write replayed")
		return
	}
	if msg.Attempts >= r.MaxAttempts {
		metrics.OutboxReplays.WithLabelValues(msg.Action, "gave_up").Inc()
		log.Error("outbox write abandoned", zap.ByteString("payload", msg.Payload), zap.Error(err))
		return
	}
	metrics.OutboxReplays.WithLabelValues(msg.Action, "retry").Inc()
	log.Warn("outbox write failed, will retry", zap.Error(err))

	select {
	case <-time.After(time.Duration(msg.Attempts) * r.Backoff):
	case <-ctx.Done():
		return
	}
	if err := r.Queue.Publish(ctx, msg); err != nil {
		metrics.OutboxReplays.WithLabelValues(msg.Action, "dropped").Inc()
		log.Error("outbox requeue failed, write dropped", zap.ByteString("payload", msg.Payload), zap.Error(err))
	}
}

func (r *Replayer) apply(ctx context.Context, msg Message) error {
	switch msg.Action {
	case sheetclient.ActionAddAttendance:
		var rec model.AttendanceRecord
		if err := json.Unmarshal(msg.Payload, &rec); err != nil {
			return err
		}
		return r.Writer.AddAttendance(ctx, rec)
	case sheetclient.ActionDeleteAttendance:
		var p idPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		return r.Writer.DeleteAttendance(ctx, p.ID)
	case sheetclient.ActionUpdateStatus:
		var p idPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		return r.Writer.UpdateAttendanceStatus(ctx, p.ID, p.Status)
	default:
		return fmt.Errorf("unknown outbox action %q", msg.Action)
	}
}
