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

type BuyAssetCommand struct {
	Caller   string
	SaleID   uint64
	Attached entities.Mutez
}

type BuyAssetResult struct {
	Sale  entities.Sale
	Buyer entities.Address
}

// BuyAssetUseCase settles a sale: the attached payment goes to the seller and
// the escrowed quantity goes to the buyer.
type BuyAssetUseCase struct {
	Ledger      ports.LedgerRepository
	Settlement  ports.Settlement
	Transfers   ports.AssetTransferAdapter
	Escrow      entities.Address
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Observer    ports.OperationObserver
	Logger      *slog.Logger
}

func (u BuyAssetUseCase) Execute(ctx context.Context, cmd BuyAssetCommand) (BuyAssetResult, error) {
	started := time.Now()
	result, err := u.execute(ctx, cmd)
	application.ObserveOperation(u.Observer, "buy_asset", started, err)
	return result, err
}

func (u BuyAssetUseCase) execute(ctx context.Context, cmd BuyAssetCommand) (BuyAssetResult, error) {
	logger := application.ResolveLogger(u.Logger)
	buyer, err := parseCounterparty(cmd.Caller, u.Escrow)
	if err != nil {
		return BuyAssetResult{}, err
	}

	events := eventFactory{clock: u.Clock, idGenerator: u.IDGenerator}
	var sale entities.Sale
	err = u.Ledger.Transact(ctx, func(tx ports.LedgerTx) error {
		current, market, err := loadSaleMarket(ctx, tx, cmd.SaleID)
		if err != nil {
			return err
		}
		sale = current
		if err := services.VerifyPayment(sale, cmd.Attached); err != nil {
			return err
		}

		session, err := openCustody(ctx, u.Settlement, u.Transfers, u.Escrow)
		if err != nil {
			return err
		}
		defer session.abort(ctx)

		if err := session.session.CollectPayment(ctx, buyer, cmd.Attached); err != nil {
			return err
		}
		if err := session.move(ctx, services.PurchaseTransfer(sale, market.TokenKind, u.Escrow, buyer)); err != nil {
			return err
		}
		if err := session.session.SendFunds(ctx, sale.Seller, sale.Price); err != nil {
			return err
		}
		if _, err := removeSale(ctx, tx, market, sale.SaleID); err != nil {
			return err
		}
		data := saleEventData(sale)
		data["buyer"] = string(buyer)
		event, err := events.build(ctx, eventSalePurchased, sale.Contract, data)
		if err != nil {
			return err
		}
		if err := tx.AppendOutbox(ctx, event); err != nil {
			return err
		}
		return session.commit(ctx)
	})
	if err != nil {
		logRejection(logger, "buy_asset", cmd.Caller, err,
			"sale_id", cmd.SaleID,
			"attached_mutez", uint64(cmd.Attached),
		)
		return BuyAssetResult{}, err
	}

	logger.Info("sale purchased",
		"event", "marketplace_sale_purchased",
		"module", application.ModuleName,
		"layer", "application",
		"sale_id", sale.SaleID,
		"buyer", buyer,
		"seller", sale.Seller,
		"price_mutez", uint64(sale.Price),
	)
	return BuyAssetResult{Sale: sale, Buyer: buyer}, nil
}
