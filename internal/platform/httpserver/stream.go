package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	contractsv1 "tiof/contracts/gen/events/v1"

	"github.com/gorilla/websocket"
)

const (
	streamConsumerGroup = "marketplace-event-stream"
	streamWriteWait     = 10 * time.Second
	streamPongWait      = 60 * time.Second
	streamPingPeriod    = (streamPongWait * 9) / 10
	streamClientBuffer  = 64
)

// EnvelopeSubscriber is the consumer side of the event bus.
type EnvelopeSubscriber interface {
	Subscribe(
		ctx context.Context,
		topic string,
		consumerGroup string,
		handler func(context.Context, contractsv1.Envelope) error,
	) error
}

// EventStream fans relayed outbox envelopes out to websocket clients.
// Clients may narrow the feed with ?contract=<address>.
type EventStream struct {
	upgrader websocket.Upgrader
	mu       sync.Mutex
	clients  map[*streamClient]struct{}
	logger   *slog.Logger
}

type streamClient struct {
	conn     *websocket.Conn
	contract string
	send     chan contractsv1.Envelope
}

func NewEventStream(logger *slog.Logger) *EventStream {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventStream{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		clients: make(map[*streamClient]struct{}),
		logger:  logger,
	}
}

// Start subscribes the stream to topic for the lifetime of ctx.
func (s *EventStream) Start(ctx context.Context, subscriber EnvelopeSubscriber, topic string) error {
	return subscriber.Subscribe(ctx, topic, streamConsumerGroup, func(_ context.Context, event contractsv1.Envelope) error {
		s.Broadcast(event)
		return nil
	})
}

// Broadcast queues event for every matching client; full clients are skipped.
func (s *EventStream) Broadcast(event contractsv1.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for client := range s.clients {
		if client.contract != "" && client.contract != event.PartitionKey {
			continue
		}
		select {
		case client.send <- event:
		default:
			s.logger.Warn("event stream client lagging",
				"event", "event_stream_client_drop",
				"module", "internal/platform/httpserver",
				"layer", "platform",
				"event_id", event.EventID,
			)
		}
	}
}

func (s *EventStream) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *EventStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("event stream upgrade failed",
			"event", "event_stream_upgrade_failed",
			"module", "internal/platform/httpserver",
			"layer", "platform",
			"error", err.Error(),
		)
		return
	}
	client := &streamClient{
		conn:     conn,
		contract: strings.TrimSpace(r.URL.Query().Get("contract")),
		send:     make(chan contractsv1.Envelope, streamClientBuffer),
	}
	s.mu.Lock()
	s.clients[client] = struct{}{}
	s.mu.Unlock()

	done := make(chan struct{})
	go s.writeLoop(client, done)
	s.readLoop(client)
	close(done)

	s.mu.Lock()
	delete(s.clients, client)
	s.mu.Unlock()
	_ = conn.Close()
}

// readLoop drains control frames until the peer goes away.
func (s *EventStream) readLoop(client *streamClient) {
	client.conn.SetReadLimit(512)
	_ = client.conn.SetReadDeadline(time.Now().Add(streamPongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *EventStream) writeLoop(client *streamClient, done <-chan struct{}) {
	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case event := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := client.conn.WriteJSON(event); err != nil {
				_ = client.conn.Close()
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = client.conn.Close()
				return
			}
		}
	}
}
