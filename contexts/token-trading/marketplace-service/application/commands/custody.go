package commands

import (
	"context"
	"log/slog"
	"time"

	application "tiof/contexts/token-trading/marketplace-service/application"
	"tiof/contexts/token-trading/marketplace-service/domain/entities"
	domainerrors "tiof/contexts/token-trading/marketplace-service/domain/errors"
	"tiof/contexts/token-trading/marketplace-service/ports"
)

const (
	eventAdministratorChanged = "marketplace.administrator_changed"
	eventMarketRegistered     = "marketplace.market_registered"
	eventMarketRemoved        = "marketplace.market_removed"
	eventSaleListed           = "marketplace.sale_listed"
	eventSalePurchased        = "marketplace.sale_purchased"
	eventSaleCancelled        = "marketplace.sale_cancelled"
	eventSaleUnwound          = "marketplace.sale_unwound"
)

// custody holds the single settlement session of one entry operation.
// Nothing staged through it is visible until commit.
type custody struct {
	session   ports.SettlementSession
	transfers ports.AssetTransferAdapter
	done      bool
}

func openCustody(
	ctx context.Context,
	settlement ports.Settlement,
	transfers ports.AssetTransferAdapter,
	escrow entities.Address,
) (*custody, error) {
	if settlement == nil || transfers == nil || escrow == "" {
		return nil, domainerrors.ErrRepositoryInvariantBroke
	}
	session, err := settlement.Begin(ctx, escrow)
	if err != nil {
		return nil, err
	}
	return &custody{session: session, transfers: transfers}, nil
}

func (c *custody) move(ctx context.Context, transfer entities.AssetTransfer) error {
	return c.transfers.Transfer(ctx, c.session, transfer)
}

func (c *custody) commit(ctx context.Context) error {
	if err := c.session.Commit(ctx); err != nil {
		return err
	}
	c.done = true
	return nil
}

// abort discards staged moves unless commit already succeeded.
func (c *custody) abort(ctx context.Context) {
	if c.done {
		return
	}
	c.done = true
	_ = c.session.Abort(ctx)
}

// removeSale drops saleID from its market's open set, then deletes the record.
func removeSale(ctx context.Context, tx ports.LedgerTx, market entities.Market, saleID uint64) (entities.Market, error) {
	if !market.HasSale(saleID) {
		return market, domainerrors.ErrRepositoryInvariantBroke
	}
	next := market.RemoveSale(saleID)
	if err := tx.PutMarket(ctx, next); err != nil {
		return market, err
	}
	if err := tx.DeleteSale(ctx, saleID); err != nil {
		return market, err
	}
	return next, nil
}

// loadSaleMarket resolves a live sale and the market it belongs to.
func loadSaleMarket(ctx context.Context, tx ports.LedgerTx, saleID uint64) (entities.Sale, entities.Market, error) {
	sale, found, err := tx.FindSale(ctx, saleID)
	if err != nil {
		return entities.Sale{}, entities.Market{}, err
	}
	if !found {
		return entities.Sale{}, entities.Market{}, domainerrors.ErrSaleDoesNotExist
	}
	market, found, err := tx.FindMarket(ctx, sale.Contract)
	if err != nil {
		return entities.Sale{}, entities.Market{}, err
	}
	if !found {
		return entities.Sale{}, entities.Market{}, domainerrors.ErrRepositoryInvariantBroke
	}
	return sale, market, nil
}

type eventFactory struct {
	clock       ports.Clock
	idGenerator ports.IDGenerator
}

func (f eventFactory) now() time.Time {
	if f.clock == nil {
		return time.Now().UTC()
	}
	return f.clock.Now().UTC()
}

func (f eventFactory) build(
	ctx context.Context,
	eventType string,
	partitionKey entities.Address,
	data map[string]any,
) (ports.MarketplaceEvent, error) {
	if f.idGenerator == nil {
		return ports.MarketplaceEvent{}, domainerrors.ErrRepositoryInvariantBroke
	}
	eventID, err := f.idGenerator.NewID(ctx)
	if err != nil {
		return ports.MarketplaceEvent{}, err
	}
	return ports.MarketplaceEvent{
		EventID:      eventID,
		EventType:    eventType,
		PartitionKey: string(partitionKey),
		OccurredAt:   f.now(),
		Data:         data,
	}, nil
}

func saleEventData(sale entities.Sale) map[string]any {
	return map[string]any{
		"sale_id":     sale.SaleID,
		"contract":    string(sale.Contract),
		"token_id":    sale.TokenID,
		"amount":      sale.Amount,
		"price_mutez": uint64(sale.Price),
		"seller":      string(sale.Seller),
	}
}

func parseCaller(raw string) (entities.Address, error) {
	caller, ok := entities.ParseAddress(raw)
	if !ok {
		return "", domainerrors.ErrInvalidRequest
	}
	return caller, nil
}

// parseCounterparty parses a caller that trades against escrow. The escrow
// is never a counterparty: its own transfers bypass allowance and operator
// checks, so it could list or buy units held for other sales.
func parseCounterparty(raw string, escrow entities.Address) (entities.Address, error) {
	caller, err := parseCaller(raw)
	if err != nil {
		return "", err
	}
	if caller == escrow {
		return "", domainerrors.ErrInvalidRequest
	}
	return caller, nil
}

// logRejection logs a failed entry operation. Precondition failures are
// warnings; anything else is an infrastructure fault.
func logRejection(logger *slog.Logger, operation string, caller string, err error, attrs ...any) {
	args := append([]any{
		"event", "marketplace_" + operation + "_rejected",
		"module", application.ModuleName,
		"layer", "application",
		"caller", caller,
		"error_code", domainerrors.Code(err),
		"error", err.Error(),
	}, attrs...)
	if application.IsRejection(err) {
		logger.Warn(operation+" rejected", args...)
		return
	}
	args[1] = "marketplace_" + operation + "_failed"
	logger.Error(operation+" failed", args...)
}
