package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"thought-pipeline/internal/domain/model"
	"thought-pipeline/internal/domain/ports/adapter"
	"thought-pipeline/internal/domain/ports/usecase"
	"thought-pipeline/internal/infra/metrics"
)

// Compile-time check
var _ usecase.Notifier = (*NotificationUseCase)(nil)

const notifyTimeout = 5 * time.Second

// NotificationUseCase fans pipeline events out to every sink. Delivery is best-effort:
// sink errors are logged and never reach the caller.
type NotificationUseCase struct {
	sinks []adapter.NotificationSink
	log   *zerolog.Logger
	now   func() time.Time
}

func NewNotificationUseCase(logger *zerolog.Logger, sinks ...adapter.NotificationSink) *NotificationUseCase {
	l := logger.With().Str("component", "notifier").Logger()
	return &NotificationUseCase{sinks: sinks, log: &l, now: time.Now}
}

func (n *NotificationUseCase) Send(ctx context.Context, ownerID, thoughtID string, eventType adapter.EventType, stage model.Stage, data map[string]any) {
	msg := adapter.Notification{
		Type:      eventType,
		OwnerID:   ownerID,
		ThoughtID: thoughtID,
		Stage:     string(stage),
		Data:      data,
		At:        n.now().UTC(),
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	for _, s := range n.sinks {
		n.publish(ctx, s, msg)
	}
}

func (n *NotificationUseCase) publish(ctx context.Context, s adapter.NotificationSink, msg adapter.Notification) {
	defer func() {
		if r := recover(); r != nil {
			metrics.IncNotification(s.Name(), "error")
			n.log.Error().Interface("panic", r).Str("sink", s.Name()).Msg("notification sink panicked")
		}
	}()
	if err := s.Publish(ctx, msg); err != nil {
		metrics.IncNotification(s.Name(), "error")
		n.log.Warn().Err(err).
			Str("sink", s.Name()).
			Str("type", string(msg.Type)).
			Str("owner_id", msg.OwnerID).
			Str("thought_id", msg.ThoughtID).
			Msg("notification dropped")
		return
	}
	metrics.IncNotification(s.Name(), "sent")
}

// StageFailed reports a terminal failure. Retries are not announced.
func (n *NotificationUseCase) StageFailed(ctx context.Context, item *model.ProcessingItem) {
	n.Send(ctx, item.OwnerID, item.ThoughtID, adapter.EventStageFailed, item.Stage, map[string]any{
		"item_id":  item.ID,
		"attempts": item.Attempts,
		"error":    item.LastError,
	})
}
