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

type RegisterMarketCommand struct {
	Caller    string
	Contract  string
	TokenKind entities.TokenKind
}

type RegisterMarketResult struct {
	Market entities.Market
}

type RegisterMarketUseCase struct {
	Ledger      ports.LedgerRepository
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Observer    ports.OperationObserver
	Logger      *slog.Logger
}

func (u RegisterMarketUseCase) Execute(ctx context.Context, cmd RegisterMarketCommand) (RegisterMarketResult, error) {
	started := time.Now()
	result, err := u.execute(ctx, cmd)
	application.ObserveOperation(u.Observer, "register_market", started, err)
	return result, err
}

func (u RegisterMarketUseCase) execute(ctx context.Context, cmd RegisterMarketCommand) (RegisterMarketResult, error) {
	logger := application.ResolveLogger(u.Logger)
	caller, err := parseCaller(cmd.Caller)
	if err != nil {
		return RegisterMarketResult{}, err
	}
	contract, ok := entities.ParseAddress(cmd.Contract)
	if !ok || !cmd.TokenKind.Valid() {
		return RegisterMarketResult{}, domainerrors.ErrInvalidRequest
	}

	events := eventFactory{clock: u.Clock, idGenerator: u.IDGenerator}
	var market entities.Market
	err = u.Ledger.Transact(ctx, func(tx ports.LedgerTx) error {
		administrator, err := tx.Administrator(ctx)
		if err != nil {
			return err
		}
		_, exists, err := tx.FindMarket(ctx, contract)
		if err != nil {
			return err
		}
		market, err = services.PlanMarketRegistration(
			services.AccessControl{Administrator: administrator},
			caller,
			contract,
			cmd.TokenKind,
			exists,
		)
		if err != nil {
			return err
		}
		if err := tx.PutMarket(ctx, market); err != nil {
			return err
		}
		event, err := events.build(ctx, eventMarketRegistered, contract, map[string]any{
			"contract":   string(contract),
			"token_kind": market.TokenKind.String(),
		})
		if err != nil {
			return err
		}
		return tx.AppendOutbox(ctx, event)
	})
	if err != nil {
		logRejection(logger, "register_market", cmd.Caller, err, "contract", cmd.Contract)
		return RegisterMarketResult{}, err
	}

	logger.Info("market registered",
		"event", "marketplace_market_registered",
		"module", application.ModuleName,
		"layer", "application",
		"contract", market.Contract,
		"token_kind", market.TokenKind.String(),
	)
	return RegisterMarketResult{Market: market}, nil
}
