package queries

import (
	"context"
	"log/slog"
	"strings"

	application "tiof/contexts/token-trading/marketplace-service/application"
	"tiof/contexts/token-trading/marketplace-service/domain/entities"
	domainerrors "tiof/contexts/token-trading/marketplace-service/domain/errors"
	"tiof/contexts/token-trading/marketplace-service/ports"
)

const (
	defaultSaleLimit = 20
	maxSaleLimit     = 100
)

type ListSalesQuery struct {
	Contract string
	Seller   string
	Cursor   string
	Limit    int
}

type ListSalesResult struct {
	Items      []entities.Sale
	NextCursor string
}

type ListSalesUseCase struct {
	Ledger ports.LedgerReader
	Logger *slog.Logger
}

func (u ListSalesUseCase) Execute(ctx context.Context, query ListSalesQuery) (ListSalesResult, error) {
	logger := application.ResolveLogger(u.Logger)
	limit := query.Limit
	if limit <= 0 {
		limit = defaultSaleLimit
	}
	if limit > maxSaleLimit {
		limit = maxSaleLimit
	}

	filter := ports.SaleListFilter{Cursor: strings.TrimSpace(query.Cursor), Limit: limit}
	if raw := strings.TrimSpace(query.Contract); raw != "" {
		contract, ok := entities.ParseAddress(raw)
		if !ok {
			return ListSalesResult{}, domainerrors.ErrInvalidRequest
		}
		filter.Contract = contract
	}
	if raw := strings.TrimSpace(query.Seller); raw != "" {
		seller, ok := entities.ParseAddress(raw)
		if !ok {
			return ListSalesResult{}, domainerrors.ErrInvalidRequest
		}
		filter.Seller = seller
	}

	items, nextCursor, err := u.Ledger.ListSales(ctx, filter)
	if err != nil {
		logger.Error("list sales failed",
			"event", "marketplace_list_sales_failed",
			"module", application.ModuleName,
			"layer", "application",
			"error", err.Error(),
		)
		return ListSalesResult{}, err
	}

	logger.Debug("list sales completed",
		"event", "marketplace_list_sales_completed",
		"module", application.ModuleName,
		"layer", "application",
		"items_count", len(items),
		"has_next_cursor", nextCursor != "",
	)
	return ListSalesResult{Items: items, NextCursor: nextCursor}, nil
}
