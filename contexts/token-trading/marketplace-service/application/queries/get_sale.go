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

type GetSaleQuery struct {
	SaleID uint64
}

type GetSaleResult struct {
	Sale entities.Sale
}

type GetSaleUseCase struct {
	Ledger ports.LedgerReader
	Logger *slog.Logger
}

func (u GetSaleUseCase) Execute(ctx context.Context, query GetSaleQuery) (GetSaleResult, error) {
	sale, err := u.Ledger.GetSale(ctx, query.SaleID)
	if err != nil {
		if !errors.Is(err, domainerrors.ErrSaleDoesNotExist) {
			application.ResolveLogger(u.Logger).Error("get sale failed",
				"event", "marketplace_get_sale_failed",
				"module", application.ModuleName,
				"layer", "application",
				"sale_id", query.SaleID,
				"error", err.Error(),
			)
		}
		return GetSaleResult{}, err
	}
	return GetSaleResult{Sale: sale}, nil
}
