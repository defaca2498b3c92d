package commands

import (
	"context"
	"log/slog"
	"time"

	application "tiof/contexts/token-trading/marketplace-service/application"
	"tiof/contexts/token-trading/marketplace-service/domain/entities"
	"tiof/contexts/token-trading/marketplace-service/domain/services"
	"tiof/contexts/token-trading/marketplace-service/ports"
)

type CancelSaleCommand struct {
	Caller string
	SaleID uint64
}

type CancelSaleResult struct {
	Sale entities.Sale
}

// CancelSaleUseCase returns an escrowed quantity to its seller. The seller or
// the administrator may cancel.
type CancelSaleUseCase struct {
	Ledger      ports.LedgerRepository
	Settlement  ports.Settlement
	Transfers   ports.AssetTransferAdapter
	Escrow      entities.Address
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Observer    ports.OperationObserver
	Logger      *slog.Logger
}

func (u CancelSaleUseCase) Execute(ctx context.Context, cmd CancelSaleCommand) (CancelSaleResult, error) {
	started := time.Now()
	result, err := u.execute(ctx, cmd)
	application.ObserveOperation(u.Observer, "cancel_sale", started, err)
	return result, err
}

func (u CancelSaleUseCase) execute(ctx context.Context, cmd CancelSaleCommand) (CancelSaleResult, error) {
	logger := application.ResolveLogger(u.Logger)
	caller, err := parseCaller(cmd.Caller)
	if err != nil {
		return CancelSaleResult{}, err
	}

	events := eventFactory{clock: u.Clock, idGenerator: u.IDGenerator}
	var sale entities.Sale
	err = u.Ledger.Transact(ctx, func(tx ports.LedgerTx) error {
		current, market, err := loadSaleMarket(ctx, tx, cmd.SaleID)
		if err != nil {
			return err
		}
		sale = current
		administrator, err := tx.Administrator(ctx)
		if err != nil {
			return err
		}
		access := services.AccessControl{Administrator: administrator}
		if err := access.VerifyAdministratorOrSeller(caller, sale); err != nil {
			return err
		}

		session, err := openCustody(ctx, u.Settlement, u.Transfers, u.Escrow)
		if err != nil {
			return err
		}
		defer session.abort(ctx)

		if err := session.move(ctx, services.ReturnTransfer(sale, market.TokenKind, u.Escrow)); err != nil {
			return err
		}
		if _, err := removeSale(ctx, tx, market, sale.SaleID); err != nil {
			return err
		}
		data := saleEventData(sale)
		data["cancelled_by"] = string(caller)
		event, err := events.build(ctx, eventSaleCancelled, sale.Contract, data)
		if err != nil {
			return err
		}
		if err := tx.AppendOutbox(ctx, event); err != nil {
			return err
		}
		return session.commit(ctx)
	})
	if err != nil {
		logRejection(logger, "cancel_sale", cmd.Caller, err, "sale_id", cmd.SaleID)
		return CancelSaleResult{}, err
	}

	logger.Info("sale cancelled",
		"event", "marketplace_sale_cancelled",
		"module", application.ModuleName,
		"layer", "application",
		"sale_id", sale.SaleID,
		"cancelled_by", caller,
	)
	return CancelSaleResult{Sale: sale}, nil
}
