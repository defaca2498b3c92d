package memory

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	application "tiof/contexts/token-trading/marketplace-service/application"
	"tiof/contexts/token-trading/marketplace-service/domain/entities"
	domainerrors "tiof/contexts/token-trading/marketplace-service/domain/errors"
	"tiof/contexts/token-trading/marketplace-service/ports"
)

// Store is an in-memory ledger for local runtime and tests. Transact holds the
// write lock for the whole unit of work and swaps in a staged copy on success.
type Store struct {
	mu     sync.RWMutex
	ledger ledgerState
	outbox outboxState
	ids    uint64
	logger *slog.Logger
}

type ledgerState struct {
	administrator entities.Address
	saleCounter   uint64
	markets       map[entities.Address]entities.Market
	sales         map[uint64]entities.Sale
}

type outboxState struct {
	messages map[string]ports.OutboxMessage
	order    []string
	sent     map[string]time.Time
}

func NewStore(administrator entities.Address, logger *slog.Logger) *Store {
	return &Store{
		ledger: ledgerState{
			administrator: administrator,
			markets:       make(map[entities.Address]entities.Market),
			sales:         make(map[uint64]entities.Sale),
		},
		outbox: outboxState{
			messages: make(map[string]ports.OutboxMessage),
			order:    make([]string, 0),
			sent:     make(map[string]time.Time),
		},
		logger: application.ResolveLogger(logger),
	}
}

func (s *Store) Transact(ctx context.Context, fn func(tx ports.LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &storeTx{
		base:    s.ledger,
		markets: make(map[entities.Address]*entities.Market),
		sales:   make(map[uint64]*entities.Sale),
		counter: s.ledger.saleCounter,
		admin:   s.ledger.administrator,
	}
	if err := fn(tx); err != nil {
		s.logger.Debug("ledger transaction rolled back",
			"event", "memory_ledger_rollback",
			"module", application.ModuleName,
			"layer", "adapter",
			"error", err.Error(),
		)
		return err
	}
	s.apply(tx)
	return nil
}

// apply swaps in new maps so snapshots handed out earlier stay untouched.
func (s *Store) apply(tx *storeTx) {
	markets := make(map[entities.Address]entities.Market, len(s.ledger.markets))
	for contract, market := range s.ledger.markets {
		markets[contract] = market
	}
	for contract, market := range tx.markets {
		if market == nil {
			delete(markets, contract)
			continue
		}
		markets[contract] = market.Clone()
	}
	sales := make(map[uint64]entities.Sale, len(s.ledger.sales))
	for id, sale := range s.ledger.sales {
		sales[id] = sale
	}
	for id, sale := range tx.sales {
		if sale == nil {
			delete(sales, id)
			continue
		}
		sales[id] = *sale
	}
	s.ledger = ledgerState{
		administrator: tx.admin,
		saleCounter:   tx.counter,
		markets:       markets,
		sales:         sales,
	}
	for _, message := range tx.outbox {
		s.outbox.messages[message.OutboxID] = message
		s.outbox.order = append(s.outbox.order, message.OutboxID)
	}
}

// storeTx records writes as overlays on the committed state. A nil overlay
// entry is a deletion.
type storeTx struct {
	base    ledgerState
	admin   entities.Address
	counter uint64
	markets map[entities.Address]*entities.Market
	sales   map[uint64]*entities.Sale
	outbox  []ports.OutboxMessage
}

func (t *storeTx) Administrator(context.Context) (entities.Address, error) {
	return t.admin, nil
}

func (t *storeTx) SetAdministrator(_ context.Context, administrator entities.Address) error {
	t.admin = administrator
	return nil
}

func (t *storeTx) FindMarket(_ context.Context, contract entities.Address) (entities.Market, bool, error) {
	if staged, ok := t.markets[contract]; ok {
		if staged == nil {
			return entities.Market{}, false, nil
		}
		return staged.Clone(), true, nil
	}
	market, ok := t.base.markets[contract]
	if !ok {
		return entities.Market{}, false, nil
	}
	return market.Clone(), true, nil
}

func (t *storeTx) PutMarket(_ context.Context, market entities.Market) error {
	staged := market.Clone()
	t.markets[market.Contract] = &staged
	return nil
}

func (t *storeTx) DeleteMarket(_ context.Context, contract entities.Address) error {
	t.markets[contract] = nil
	return nil
}

func (t *storeTx) FindSale(_ context.Context, saleID uint64) (entities.Sale, bool, error) {
	if staged, ok := t.sales[saleID]; ok {
		if staged == nil {
			return entities.Sale{}, false, nil
		}
		return *staged, true, nil
	}
	sale, ok := t.base.sales[saleID]
	return sale, ok, nil
}

func (t *storeTx) PutSale(_ context.Context, sale entities.Sale) error {
	staged := sale
	t.sales[sale.SaleID] = &staged
	return nil
}

func (t *storeTx) DeleteSale(_ context.Context, saleID uint64) error {
	t.sales[saleID] = nil
	return nil
}

func (t *storeTx) NextSaleID(context.Context) (uint64, error) {
	t.counter++
	return t.counter, nil
}

func (t *storeTx) AppendOutbox(_ context.Context, event ports.MarketplaceEvent) error {
	envelope, err := event.Envelope()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	t.outbox = append(t.outbox, ports.OutboxMessage{
		OutboxID:     event.EventID,
		EventType:    event.EventType,
		PartitionKey: event.PartitionKey,
		Payload:      payload,
		CreatedAt:    event.OccurredAt.UTC(),
	})
	return nil
}

func (s *Store) GetAdministrator(context.Context) (entities.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.administrator, nil
}

func (s *Store) GetMarket(_ context.Context, contract entities.Address) (entities.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	market, ok := s.ledger.markets[contract]
	if !ok {
		return entities.Market{}, domainerrors.ErrMarketDoesNotExist
	}
	return market.Clone(), nil
}

func (s *Store) ListMarkets(context.Context) ([]entities.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedMarkets(s.ledger.markets), nil
}

func (s *Store) GetSale(_ context.Context, saleID uint64) (entities.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sale, ok := s.ledger.sales[saleID]
	if !ok {
		return entities.Sale{}, domainerrors.ErrSaleDoesNotExist
	}
	return sale, nil
}

func (s *Store) ListSales(_ context.Context, filter ports.SaleListFilter) ([]entities.Sale, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filtered := make([]entities.Sale, 0)
	for _, sale := range sortedSales(s.ledger.sales) {
		if filter.Contract != "" && sale.Contract != filter.Contract {
			continue
		}
		if filter.Seller != "" && sale.Seller != filter.Seller {
			continue
		}
		filtered = append(filtered, sale)
	}

	start := decodeCursor(filter.Cursor)
	if start > len(filtered) {
		start = len(filtered)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	end := start + limit
	if end > len(filtered) {
		end = len(filtered)
	}

	page := append([]entities.Sale(nil), filtered[start:end]...)
	nextCursor := ""
	if end < len(filtered) {
		nextCursor = encodeCursor(end)
	}

	s.logger.Debug("sales listed from memory store",
		"event", "memory_list_sales",
		"module", application.ModuleName,
		"layer", "adapter",
		"start", start,
		"end", end,
		"total", len(filtered),
	)
	return page, nextCursor, nil
}

func (s *Store) Snapshot(context.Context) (ports.LedgerSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ports.LedgerSnapshot{
		Administrator: s.ledger.administrator,
		SaleCounter:   s.ledger.saleCounter,
		Markets:       sortedMarkets(s.ledger.markets),
		Sales:         sortedSales(s.ledger.sales),
	}, nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	messages := make([]ports.OutboxMessage, 0, limit)
	for _, id := range s.outbox.order {
		if _, sent := s.outbox.sent[id]; sent {
			continue
		}
		messages = append(messages, s.outbox.messages[id])
		if len(messages) >= limit {
			break
		}
	}
	return messages, nil
}

func (s *Store) MarkOutboxSent(_ context.Context, outboxID string, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.outbox.messages[outboxID]; !ok {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	s.outbox.sent[outboxID] = sentAt.UTC()
	return nil
}

// OutboxEvents returns every committed outbox message in append order.
func (s *Store) OutboxEvents() []ports.OutboxMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]ports.OutboxMessage, 0, len(s.outbox.order))
	for _, id := range s.outbox.order {
		events = append(events, s.outbox.messages[id])
	}
	return events
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	value := atomic.AddUint64(&s.ids, 1)
	return fmt.Sprintf("mkt-%d", value), nil
}

func sortedMarkets(markets map[entities.Address]entities.Market) []entities.Market {
	items := make([]entities.Market, 0, len(markets))
	for _, market := range markets {
		items = append(items, market.Clone())
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Contract < items[j].Contract })
	return items
}

func sortedSales(sales map[uint64]entities.Sale) []entities.Sale {
	items := make([]entities.Sale, 0, len(sales))
	for _, sale := range sales {
		items = append(items, sale)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].SaleID < items[j].SaleID })
	return items
}

func decodeCursor(cursor string) int {
	if strings.TrimSpace(cursor) == "" {
		return 0
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0
	}
	index, err := strconv.Atoi(string(raw))
	if err != nil || index < 0 {
		return 0
	}
	return index
}

func encodeCursor(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.Itoa(offset)))
}
