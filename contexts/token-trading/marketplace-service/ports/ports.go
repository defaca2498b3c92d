package ports

import (
	"context"
	"encoding/json"
	"time"

	contractsv1 "tiof/contracts/gen/events/v1"
	"tiof/contexts/token-trading/marketplace-service/domain/entities"
)

// SaleListFilter defines read-side filtering/pagination for open sales.
type SaleListFilter struct {
	Contract entities.Address
	Seller   entities.Address
	Cursor   string
	Limit    int
}

// LedgerSnapshot is a consistent copy of the whole marketplace state.
type LedgerSnapshot struct {
	Administrator entities.Address
	SaleCounter   uint64
	Markets       []entities.Market
	Sales         []entities.Sale
}

// LedgerReader serves queries outside of the write path.
type LedgerReader interface {
	GetAdministrator(ctx context.Context) (entities.Address, error)
	GetMarket(ctx context.Context, contract entities.Address) (entities.Market, error)
	ListMarkets(ctx context.Context) ([]entities.Market, error)
	GetSale(ctx context.Context, saleID uint64) (entities.Sale, error)
	ListSales(ctx context.Context, filter SaleListFilter) ([]entities.Sale, string, error)
	Snapshot(ctx context.Context) (LedgerSnapshot, error)
}

// LedgerRepository owns markets, sales, the administrator and the sale counter.
type LedgerRepository interface {
	LedgerReader
	// Transact runs fn as one indivisible unit of work. Mutating calls never
	// interleave; writes made through tx are visible only if fn returns nil.
	Transact(ctx context.Context, fn func(tx LedgerTx) error) error
}

// LedgerTx is the write view inside a Transact call.
type LedgerTx interface {
	Administrator(ctx context.Context) (entities.Address, error)
	SetAdministrator(ctx context.Context, administrator entities.Address) error
	FindMarket(ctx context.Context, contract entities.Address) (entities.Market, bool, error)
	PutMarket(ctx context.Context, market entities.Market) error
	DeleteMarket(ctx context.Context, contract entities.Address) error
	FindSale(ctx context.Context, saleID uint64) (entities.Sale, bool, error)
	PutSale(ctx context.Context, sale entities.Sale) error
	DeleteSale(ctx context.Context, saleID uint64) error
	// NextSaleID increments the sale counter and returns the new value.
	NextSaleID(ctx context.Context) (uint64, error)
	AppendOutbox(ctx context.Context, event MarketplaceEvent) error
}

// Settlement opens staged custody sessions against the token chain.
type Settlement interface {
	// Begin opens a session whose contract calls are sent by operator.
	Begin(ctx context.Context, operator entities.Address) (SettlementSession, error)
}

// SettlementSession stages contract calls and fund movements. Each call is
// checked against the staged view when made; nothing is observable outside
// the session until Commit. Abort after Commit is a no-op.
type SettlementSession interface {
	Invoke(ctx context.Context, call entities.ContractCall) error
	// CollectPayment moves a payment attached by payer into the operator's balance.
	CollectPayment(ctx context.Context, payer entities.Address, amount entities.Mutez) error
	// SendFunds pays amount from the operator's balance to recipient.
	SendFunds(ctx context.Context, recipient entities.Address, amount entities.Mutez) error
	Commit(ctx context.Context) error
	Abort(ctx context.Context) error
}

// AssetTransferAdapter moves assets using the wire convention of their token kind.
type AssetTransferAdapter interface {
	Transfer(ctx context.Context, session SettlementSession, transfer entities.AssetTransfer) error
}

// EscrowBalances reads committed asset balances for custody audits.
type EscrowBalances interface {
	AssetBalance(ctx context.Context, owner entities.Address, contract entities.Address, tokenID uint64) (uint64, error)
}

// OperationObserver records the outcome of every entry operation.
type OperationObserver interface {
	ObserveOperation(operation string, code string, elapsed time.Duration)
}

// Clock allows deterministic testing of event timestamps.
type Clock interface {
	Now() time.Time
}

// IDGenerator abstracts event identifier generation.
type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

// MarketplaceEvent is the outbound integration payload persisted to outbox.
type MarketplaceEvent struct {
	EventID      string
	EventType    string
	PartitionKey string
	OccurredAt   time.Time
	Data         map[string]any
}

// Envelope renders the event in the canonical cross-runtime shape.
func (e MarketplaceEvent) Envelope() (EventEnvelope, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return EventEnvelope{}, err
	}
	return EventEnvelope{
		EventID:          e.EventID,
		EventType:        e.EventType,
		OccurredAt:       e.OccurredAt.UTC(),
		SourceService:    "marketplace-service",
		SchemaVersion:    1,
		PartitionKeyPath: "contract",
		PartitionKey:     e.PartitionKey,
		Data:             data,
	}, nil
}

// OutboxMessage is a row ready to relay from the module outbox.
type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

// OutboxRepository models worker-side outbox polling/acknowledgement.
type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxSent(ctx context.Context, outboxID string, sentAt time.Time) error
}

// EventEnvelope reuses the canonical cross-runtime envelope contract.
type EventEnvelope = contractsv1.Envelope

// EventPublisher publishes canonical envelopes to a topic.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

// EventSubscriber registers a topic consumer callback.
type EventSubscriber interface {
	Subscribe(
		ctx context.Context,
		topic string,
		consumerGroup string,
		handler func(context.Context, EventEnvelope) error,
	) error
}
