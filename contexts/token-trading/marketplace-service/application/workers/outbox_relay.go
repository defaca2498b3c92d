package workers

import (
	"context"
	"log/slog"
	"time"

	contractsv1 "tiof/contracts/gen/events/v1"
	application "tiof/contexts/token-trading/marketplace-service/application"
	"tiof/contexts/token-trading/marketplace-service/ports"
)

// EventsTopic carries every marketplace envelope; consumers switch on EventType.
const EventsTopic = "marketplace.events"

type OutboxRelay struct {
	Outbox    ports.OutboxRepository
	Publisher ports.EventPublisher
	Clock     ports.Clock
	Topic     string
	BatchSize int
	Logger    *slog.Logger
}

// RunOnce relays one batch in outbox order. It stops at the first failure so
// later envelopes are never published ahead of an earlier one.
func (r OutboxRelay) RunOnce(ctx context.Context) (int, error) {
	logger := application.ResolveLogger(r.Logger)
	limit := r.BatchSize
	if limit <= 0 {
		limit = 100
	}
	topic := r.Topic
	if topic == "" {
		topic = EventsTopic
	}

	pending, err := r.Outbox.ListPendingOutbox(ctx, limit)
	if err != nil {
		logger.Error("outbox list pending failed",
			"event", "marketplace_outbox_list_failed",
			"module", application.ModuleName,
			"layer", "worker",
			"error", err.Error(),
		)
		return 0, err
	}

	sent := 0
	for _, message := range pending {
		envelope, err := contractsv1.Decode(message.Payload)
		if err != nil {
			logger.Error("outbox payload decode failed",
				"event", "marketplace_outbox_decode_failed",
				"module", application.ModuleName,
				"layer", "worker",
				"outbox_id", message.OutboxID,
				"error", err.Error(),
			)
			return sent, err
		}
		if err := r.Publisher.Publish(ctx, topic, envelope); err != nil {
			logger.Error("outbox publish failed",
				"event", "marketplace_outbox_publish_failed",
				"module", application.ModuleName,
				"layer", "worker",
				"outbox_id", message.OutboxID,
				"event_id", envelope.EventID,
				"event_type", envelope.EventType,
				"error", err.Error(),
			)
			return sent, err
		}
		if err := r.Outbox.MarkOutboxSent(ctx, message.OutboxID, r.now()); err != nil {
			logger.Error("outbox mark sent failed",
				"event", "marketplace_outbox_mark_sent_failed",
				"module", application.ModuleName,
				"layer", "worker",
				"outbox_id", message.OutboxID,
				"error", err.Error(),
			)
			return sent, err
		}
		sent++
	}

	if sent > 0 {
		logger.Info("outbox relay cycle completed",
			"event", "marketplace_outbox_relay_completed",
			"module", application.ModuleName,
			"layer", "worker",
			"sent_count", sent,
		)
	}
	return sent, nil
}

func (r OutboxRelay) now() time.Time {
	if r.Clock != nil {
		return r.Clock.Now().UTC()
	}
	return time.Now().UTC()
}
