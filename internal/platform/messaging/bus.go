package messaging

import (
	"context"
	"log/slog"
	"sync"

	contractsv1 "tiof/contracts/gen/events/v1"
)

const memberBuffer = 128

// Bus is an in-process topic bus. Every consumer group on a topic receives
// each envelope once; members of one group share deliveries round-robin.
// Brokers are accepted for configuration parity and not dialed.
type Bus struct {
	mu      sync.Mutex
	topics  map[string]map[string]*consumerGroup
	brokers []string
	logger  *slog.Logger
}

type consumerGroup struct {
	members []chan contractsv1.Envelope
	next    int
}

func NewBus(brokers []string, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		topics:  make(map[string]map[string]*consumerGroup),
		brokers: append([]string(nil), brokers...),
		logger:  logger,
	}
}

func (b *Bus) Publish(ctx context.Context, topic string, event contractsv1.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	targets := make(map[string]chan contractsv1.Envelope, len(b.topics[topic]))
	for name, group := range b.topics[topic] {
		if len(group.members) == 0 {
			continue
		}
		targets[name] = group.members[group.next%len(group.members)]
		group.next++
	}
	b.mu.Unlock()

	for name, member := range targets {
		select {
		case member <- event:
		default:
			b.logger.Warn("dropping event for slow consumer group",
				"event", "bus_publish_drop",
				"module", "internal/platform/messaging",
				"layer", "platform",
				"topic", topic,
				"consumer_group", name,
				"event_id", event.EventID,
			)
		}
	}

	b.logger.Debug("event published",
		"event", "bus_publish",
		"module", "internal/platform/messaging",
		"layer", "platform",
		"topic", topic,
		"event_id", event.EventID,
		"event_type", event.EventType,
		"groups", len(targets),
	)
	return nil
}

// Subscribe joins consumerGroup on topic until ctx is done.
func (b *Bus) Subscribe(
	ctx context.Context,
	topic string,
	consumerGroup string,
	handler func(context.Context, contractsv1.Envelope) error,
) error {
	member := make(chan contractsv1.Envelope, memberBuffer)
	b.join(topic, consumerGroup, member)

	go func() {
		defer b.leave(topic, consumerGroup, member)
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-member:
				if err := handler(ctx, event); err != nil {
					b.logger.Error("consumer handler failed",
						"event", "bus_consume_failed",
						"module", "internal/platform/messaging",
						"layer", "platform",
						"topic", topic,
						"consumer_group", consumerGroup,
						"event_id", event.EventID,
						"event_type", event.EventType,
						"error", err.Error(),
					)
				}
			}
		}
	}()
	return nil
}

func (b *Bus) join(topic string, name string, member chan contractsv1.Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	groups, ok := b.topics[topic]
	if !ok {
		groups = make(map[string]*consumerGroup)
		b.topics[topic] = groups
	}
	group, ok := groups[name]
	if !ok {
		group = &consumerGroup{}
		groups[name] = group
	}
	group.members = append(group.members, member)
}

func (b *Bus) leave(topic string, name string, member chan contractsv1.Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	group, ok := b.topics[topic][name]
	if !ok {
		return
	}
	kept := group.members[:0]
	for _, candidate := range group.members {
		if candidate != member {
			kept = append(kept, candidate)
		}
	}
	group.members = kept
	if len(kept) == 0 {
		delete(b.topics[topic], name)
	}
}
