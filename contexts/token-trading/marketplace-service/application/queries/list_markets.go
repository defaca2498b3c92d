package queries

import (
	"context"
	"log/slog"

	application "tiof/contexts/token-trading/marketplace-service/application"
	"tiof/contexts/token-trading/marketplace-service/domain/entities"
	"tiof/contexts/token-trading/marketplace-service/ports"
)

type ListMarketsResult struct {
	Items []entities.Market
}

type ListMarketsUseCase struct {
	Ledger ports.LedgerReader
	Logger *slog.Logger
}

func (u ListMarketsUseCase) Execute(ctx context.Context) (ListMarketsResult, error) {
	logger := application.ResolveLogger(u.Logger)
	items, err := u.Ledger.ListMarkets(ctx)
	if err != nil {
		logger.Error("list markets failed",
			"event", "marketplace_list_markets_failed",
			"module", application.ModuleName,
			"layer", "application",
			"error", err.Error(),
		)
		return ListMarketsResult{}, err
	}

	logger.Debug("list markets completed",
		"event", "marketplace_list_markets_completed",
		"module", application.ModuleName,
		"layer", "application",
		"items_count", len(items),
	)
	return ListMarketsResult{Items: items}, nil
}
