package queries

import (
	"context"
	"errors"
	"log/slog"

	application "tiof/contexts/token-trading/marketplace-service/application"
	"tiof/contexts/token-trading/marketplace-service/domain/entities"
	domainerrors "tiof/contexts/token-trading/marketplace-service/domain/errors"
	"tiof/contexts/token-trading/marketplace-service/ports"
)

type GetMarketQuery struct {
	Contract string
}

type GetMarketResult struct {
	Market entities.Market
}

type GetMarketUseCase struct {
	Ledger ports.LedgerReader
	Logger *slog.Logger
}

func (u GetMarketUseCase) Execute(ctx context.Context, query GetMarketQuery) (GetMarketResult, error) {
	logger := application.ResolveLogger(u.Logger)
	contract, ok := entities.ParseAddress(query.Contract)
	if !ok {
		return GetMarketResult{}, domainerrors.ErrInvalidRequest
	}

	market, err := u.Ledger.GetMarket(ctx, contract)
	if err != nil {
		if !errors.Is(err, domainerrors.ErrMarketDoesNotExist) {
			logger.Error("get market failed",
				"event", "marketplace_get_market_failed",
				"module", application.ModuleName,
				"layer", "application",
				"contract", query.Contract,
				"error", err.Error(),
			)
		}
		return GetMarketResult{}, err
	}
	return GetMarketResult{Market: market}, nil
}
