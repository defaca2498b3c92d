package commands

import (
	"context"
	"log/slog"
	"time"

	application "tiof/contexts/token-trading/marketplace-service/application"
	"tiof/contexts/token-trading/marketplace-service/domain/entities"
	domainerrors "tiof/contexts/token-trading/marketplace-service/domain/errors"
	"tiof/contexts/token-trading/marketplace-service/domain/services"
	"tiof/contexts/token-trading/marketplace-service/ports"
)

type SellAssetCommand struct {
	Caller   string
	Contract string
	TokenID  uint64
	Amount   uint64
	Price    entities.Mutez
}

type SellAssetResult struct {
	Sale entities.Sale
}

// SellAssetUseCase escrows the caller's asset and opens a fixed-price sale.
type SellAssetUseCase struct {
	Ledger      ports.LedgerRepository
	Settlement  ports.Settlement
	Transfers   ports.AssetTransferAdapter
	Escrow      entities.Address
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Observer    ports.OperationObserver
	Logger      *slog.Logger
}

func (u SellAssetUseCase) Execute(ctx context.Context, cmd SellAssetCommand) (SellAssetResult, error) {
	started := time.Now()
	result, err := u.execute(ctx, cmd)
	application.ObserveOperation(u.Observer, "sell_asset", started, err)
	return result, err
}

func (u SellAssetUseCase) execute(ctx context.Context, cmd SellAssetCommand) (SellAssetResult, error) {
	logger := application.ResolveLogger(u.Logger)
	seller, err := parseCounterparty(cmd.Caller, u.Escrow)
	if err != nil {
		return SellAssetResult{}, err
	}
	contract, ok := entities.ParseAddress(cmd.Contract)
	if !ok || cmd.Amount == 0 {
		return SellAssetResult{}, domainerrors.ErrInvalidRequest
	}

	events := eventFactory{clock: u.Clock, idGenerator: u.IDGenerator}
	var sale entities.Sale
	err = u.Ledger.Transact(ctx, func(tx ports.LedgerTx) error {
		market, found, err := tx.FindMarket(ctx, contract)
		if err != nil {
			return err
		}
		if !found {
			return domainerrors.ErrMarketDoesNotExist
		}

		session, err := openCustody(ctx, u.Settlement, u.Transfers, u.Escrow)
		if err != nil {
			return err
		}
		defer session.abort(ctx)

		listing := services.ListingTransfer(seller, u.Escrow, market, cmd.TokenID, cmd.Amount)
		if err := session.move(ctx, listing); err != nil {
			return err
		}

		// The counter only advances once custody of the asset is staged.
		saleID, err := tx.NextSaleID(ctx)
		if err != nil {
			return err
		}
		sale, err = entities.NewSale(saleID, contract, cmd.TokenID, cmd.Amount, cmd.Price, seller)
		if err != nil {
			return err
		}
		if err := tx.PutSale(ctx, sale); err != nil {
			return err
		}
		if err := tx.PutMarket(ctx, market.AddSale(saleID)); err != nil {
			return err
		}
		event, err := events.build(ctx, eventSaleListed, contract, saleEventData(sale))
		if err != nil {
			return err
		}
		if err := tx.AppendOutbox(ctx, event); err != nil {
			return err
		}
		return session.commit(ctx)
	})
	if err != nil {
		logRejection(logger, "sell_asset", cmd.Caller, err,
			"contract", cmd.Contract,
			"token_id", cmd.TokenID,
		)
		return SellAssetResult{}, err
	}

	logger.Info("sale listed",
		"event", "marketplace_sale_listed",
		"module", application.ModuleName,
		"layer", "application",
		"sale_id", sale.SaleID,
		"contract", sale.Contract,
		"token_id", sale.TokenID,
		"amount", sale.Amount,
		"price_mutez", uint64(sale.Price),
	)
	return SellAssetResult{Sale: sale}, nil
}
