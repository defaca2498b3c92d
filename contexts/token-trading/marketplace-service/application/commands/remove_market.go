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

type RemoveMarketCommand struct {
	Caller   string
	Contract string
}

type RemoveMarketResult struct {
	Contract      entities.Address
	ReturnedSales []entities.Sale
}

// RemoveMarketUseCase deregisters a market after returning every escrowed
// quantity to its seller. Either all returns happen and the market goes, or
// nothing changes.
type RemoveMarketUseCase struct {
	Ledger      ports.LedgerRepository
	Settlement  ports.Settlement
	Transfers   ports.AssetTransferAdapter
	Escrow      entities.Address
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Observer    ports.OperationObserver
	Logger      *slog.Logger
}

func (u RemoveMarketUseCase) Execute(ctx context.Context, cmd RemoveMarketCommand) (RemoveMarketResult, error) {
	started := time.Now()
	result, err := u.execute(ctx, cmd)
	application.ObserveOperation(u.Observer, "remove_market", started, err)
	return result, err
}

func (u RemoveMarketUseCase) execute(ctx context.Context, cmd RemoveMarketCommand) (RemoveMarketResult, error) {
	logger := application.ResolveLogger(u.Logger)
	caller, err := parseCaller(cmd.Caller)
	if err != nil {
		return RemoveMarketResult{}, err
	}
	contract, ok := entities.ParseAddress(cmd.Contract)
	if !ok {
		return RemoveMarketResult{}, domainerrors.ErrInvalidRequest
	}

	events := eventFactory{clock: u.Clock, idGenerator: u.IDGenerator}
	var result RemoveMarketResult
	err = u.Ledger.Transact(ctx, func(tx ports.LedgerTx) error {
		administrator, err := tx.Administrator(ctx)
		if err != nil {
			return err
		}
		if err := (services.AccessControl{Administrator: administrator}).VerifyAdministrator(caller); err != nil {
			return err
		}
		market, found, err := tx.FindMarket(ctx, contract)
		if err != nil {
			return err
		}
		if !found {
			return domainerrors.ErrMarketDoesNotExist
		}

		open := make(map[uint64]entities.Sale, len(market.SaleIDs))
		for _, saleID := range market.SortedSaleIDs() {
			sale, found, err := tx.FindSale(ctx, saleID)
			if err != nil {
				return err
			}
			if !found {
				return domainerrors.ErrRepositoryInvariantBroke
			}
			open[saleID] = sale
		}
		returns, err := services.PlanMarketUnwind(market, open, u.Escrow)
		if err != nil {
			return err
		}

		session, err := openCustody(ctx, u.Settlement, u.Transfers, u.Escrow)
		if err != nil {
			return err
		}
		defer session.abort(ctx)

		returned := make([]entities.Sale, 0, len(returns))
		for i, saleID := range market.SortedSaleIDs() {
			sale := open[saleID]
			if err := session.move(ctx, returns[i]); err != nil {
				return err
			}
			if err := tx.DeleteSale(ctx, saleID); err != nil {
				return err
			}
			event, err := events.build(ctx, eventSaleUnwound, contract, saleEventData(sale))
			if err != nil {
				return err
			}
			if err := tx.AppendOutbox(ctx, event); err != nil {
				return err
			}
			returned = append(returned, sale)
		}
		if err := tx.DeleteMarket(ctx, contract); err != nil {
			return err
		}
		event, err := events.build(ctx, eventMarketRemoved, contract, map[string]any{
			"contract":       string(contract),
			"returned_sales": len(returned),
		})
		if err != nil {
			return err
		}
		if err := tx.AppendOutbox(ctx, event); err != nil {
			return err
		}
		if err := session.commit(ctx); err != nil {
			return err
		}
		result = RemoveMarketResult{Contract: contract, ReturnedSales: returned}
		return nil
	})
	if err != nil {
		logRejection(logger, "remove_market", cmd.Caller, err, "contract", cmd.Contract)
		return RemoveMarketResult{}, err
	}

	logger.Info("market removed",
		"event", "marketplace_market_removed",
		"module", application.ModuleName,
		"layer", "application",
		"contract", contract,
		"returned_sales", len(result.ReturnedSales),
	)
	return result, nil
}
