package httpadapter

import (
	"context"
	"log/slog"

	application "tiof/contexts/token-trading/marketplace-service/application"
	"tiof/contexts/token-trading/marketplace-service/application/commands"
	"tiof/contexts/token-trading/marketplace-service/application/queries"
	"tiof/contexts/token-trading/marketplace-service/domain/entities"
	domainerrors "tiof/contexts/token-trading/marketplace-service/domain/errors"
	httptransport "tiof/contexts/token-trading/marketplace-service/transport/http"
)

type Handler struct {
	GetAdministrator queries.GetAdministratorUseCase
	GetMarket        queries.GetMarketUseCase
	ListMarkets      queries.ListMarketsUseCase
	GetSale          queries.GetSaleUseCase
	ListSales        queries.ListSalesUseCase
	SetAdministrator commands.SetAdministratorUseCase
	RegisterMarket   commands.RegisterMarketUseCase
	RemoveMarket     commands.RemoveMarketUseCase
	SellAsset        commands.SellAssetUseCase
	BuyAsset         commands.BuyAssetUseCase
	CancelSale       commands.CancelSaleUseCase
	Logger           *slog.Logger
}

// GetAdministratorHandler godoc
// @Summary Get marketplace administrator
// @Tags marketplace
// @Produce json
// @Success 200 {object} httptransport.AdministratorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /v1/administrator [get]
func (h Handler) GetAdministratorHandler(ctx context.Context) (httptransport.AdministratorResponse, error) {
	result, err := h.GetAdministrator.Execute(ctx)
	if err != nil {
		return httptransport.AdministratorResponse{}, err
	}
	return httptransport.AdministratorResponse{Administrator: string(result.Administrator)}, nil
}

// SetAdministratorHandler godoc
// @Summary Replace marketplace administrator
// @Description Only the current administrator may hand over the role.
// @Tags marketplace
// @Accept json
// @Produce json
// @Param X-Caller-Address header string true "Caller address"
// @Param request body httptransport.SetAdministratorRequest true "New administrator"
// @Success 200 {object} httptransport.SetAdministratorResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 401 {object} httptransport.ErrorResponse
// @Failure 403 {object} httptransport.ErrorResponse
// @Router /v1/administrator [put]
func (h Handler) SetAdministratorHandler(
	ctx context.Context,
	caller string,
	req httptransport.SetAdministratorRequest,
) (httptransport.SetAdministratorResponse, error) {
	h.logReceived("set_administrator", caller)
	result, err := h.SetAdministrator.Execute(ctx, commands.SetAdministratorCommand{
		Caller:        caller,
		Administrator: req.Administrator,
	})
	if err != nil {
		return httptransport.SetAdministratorResponse{}, err
	}
	return httptransport.SetAdministratorResponse{
		Previous:      string(result.Previous),
		Administrator: string(result.Administrator),
	}, nil
}

// RegisterMarketHandler godoc
// @Summary Register a market
// @Description Opens an asset contract for listings. token_kind is fa1.2 or fa2.
// @Tags marketplace
// @Accept json
// @Produce json
// @Param X-Caller-Address header string true "Caller address"
// @Param request body httptransport.RegisterMarketRequest true "Market"
// @Success 201 {object} httptransport.GetMarketResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 403 {object} httptransport.ErrorResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Router /v1/markets [post]
func (h Handler) RegisterMarketHandler(
	ctx context.Context,
	caller string,
	req httptransport.RegisterMarketRequest,
) (httptransport.GetMarketResponse, error) {
	h.logReceived("register_market", caller)
	kind, ok := entities.ParseTokenKind(req.TokenKind)
	if !ok {
		return httptransport.GetMarketResponse{}, domainerrors.ErrInvalidRequest
	}
	result, err := h.RegisterMarket.Execute(ctx, commands.RegisterMarketCommand{
		Caller:    caller,
		Contract:  req.Contract,
		TokenKind: kind,
	})
	if err != nil {
		return httptransport.GetMarketResponse{}, err
	}
	return httptransport.GetMarketResponse{Item: mapMarket(result.Market)}, nil
}

// ListMarketsHandler godoc
// @Summary List markets
// @Tags marketplace
// @Produce json
// @Success 200 {object} httptransport.ListMarketsResponse
// @Router /v1/markets [get]
func (h Handler) ListMarketsHandler(ctx context.Context) (httptransport.ListMarketsResponse, error) {
	result, err := h.ListMarkets.Execute(ctx)
	if err != nil {
		return httptransport.ListMarketsResponse{}, err
	}
	items := make([]httptransport.MarketDTO, 0, len(result.Items))
	for _, market := range result.Items {
		items = append(items, mapMarket(market))
	}
	return httptransport.ListMarketsResponse{Items: items}, nil
}

// GetMarketHandler godoc
// @Summary Get a market
// @Tags marketplace
// @Produce json
// @Param contract path string true "Asset contract address"
// @Success 200 {object} httptransport.GetMarketResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Router /v1/markets/{contract} [get]
func (h Handler) GetMarketHandler(ctx context.Context, contract string) (httptransport.GetMarketResponse, error) {
	result, err := h.GetMarket.Execute(ctx, queries.GetMarketQuery{Contract: contract})
	if err != nil {
		return httptransport.GetMarketResponse{}, err
	}
	return httptransport.GetMarketResponse{Item: mapMarket(result.Market)}, nil
}

// RemoveMarketHandler godoc
// @Summary Remove a market
// @Description Returns every escrowed listing to its seller, then deregisters the contract.
// @Tags marketplace
// @Produce json
// @Param X-Caller-Address header string true "Caller address"
// @Param contract path string true "Asset contract address"
// @Success 200 {object} httptransport.RemoveMarketResponse
// @Failure 403 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 422 {object} httptransport.ErrorResponse
// @Router /v1/markets/{contract} [delete]
func (h Handler) RemoveMarketHandler(ctx context.Context, caller string, contract string) (httptransport.RemoveMarketResponse, error) {
	h.logReceived("remove_market", caller)
	result, err := h.RemoveMarket.Execute(ctx, commands.RemoveMarketCommand{
		Caller:   caller,
		Contract: contract,
	})
	if err != nil {
		return httptransport.RemoveMarketResponse{}, err
	}
	return httptransport.RemoveMarketResponse{
		Contract:      string(result.Contract),
		ReturnedSales: mapSales(result.ReturnedSales),
	}, nil
}

// SellAssetHandler godoc
// @Summary List an asset for sale
// @Description Moves the asset into escrow and opens a fixed-price sale.
// @Tags marketplace
// @Accept json
// @Produce json
// @Param X-Caller-Address header string true "Seller address"
// @Param request body httptransport.SellAssetRequest true "Listing"
// @Success 201 {object} httptransport.GetSaleResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 422 {object} httptransport.ErrorResponse
// @Router /v1/sales [post]
func (h Handler) SellAssetHandler(
	ctx context.Context,
	caller string,
	req httptransport.SellAssetRequest,
) (httptransport.GetSaleResponse, error) {
	h.logReceived("sell_asset", caller)
	result, err := h.SellAsset.Execute(ctx, commands.SellAssetCommand{
		Caller:   caller,
		Contract: req.Contract,
		TokenID:  req.TokenID,
		Amount:   req.Amount,
		Price:    entities.Mutez(req.PriceMutez),
	})
	if err != nil {
		return httptransport.GetSaleResponse{}, err
	}
	return httptransport.GetSaleResponse{Item: mapSale(result.Sale)}, nil
}

// ListSalesHandler godoc
// @Summary List open sales
// @Tags marketplace
// @Produce json
// @Param contract query string false "Asset contract filter"
// @Param seller query string false "Seller filter"
// @Param cursor query string false "Cursor token"
// @Param limit query int false "Page size (max 100)"
// @Success 200 {object} httptransport.ListSalesResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Router /v1/sales [get]
func (h Handler) ListSalesHandler(ctx context.Context, req httptransport.ListSalesRequest) (httptransport.ListSalesResponse, error) {
	result, err := h.ListSales.Execute(ctx, queries.ListSalesQuery{
		Contract: req.Contract,
		Seller:   req.Seller,
		Cursor:   req.Cursor,
		Limit:    req.Limit,
	})
	if err != nil {
		return httptransport.ListSalesResponse{}, err
	}
	return httptransport.ListSalesResponse{
		Items:      mapSales(result.Items),
		NextCursor: result.NextCursor,
	}, nil
}

// GetSaleHandler godoc
// @Summary Get an open sale
// @Tags marketplace
// @Produce json
// @Param sale_id path int true "Sale id"
// @Success 200 {object} httptransport.GetSaleResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Router /v1/sales/{sale_id} [get]
func (h Handler) GetSaleHandler(ctx context.Context, saleID uint64) (httptransport.GetSaleResponse, error) {
	result, err := h.GetSale.Execute(ctx, queries.GetSaleQuery{SaleID: saleID})
	if err != nil {
		return httptransport.GetSaleResponse{}, err
	}
	return httptransport.GetSaleResponse{Item: mapSale(result.Sale)}, nil
}

// BuyAssetHandler godoc
// @Summary Buy an open sale
// @Description amount_mutez must equal the sale price exactly.
// @Tags marketplace
// @Accept json
// @Produce json
// @Param X-Caller-Address header string true "Buyer address"
// @Param sale_id path int true "Sale id"
// @Param request body httptransport.BuyAssetRequest true "Attached payment"
// @Success 200 {object} httptransport.BuyAssetResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Failure 422 {object} httptransport.ErrorResponse
// @Router /v1/sales/{sale_id}/buy [post]
func (h Handler) BuyAssetHandler(
	ctx context.Context,
	caller string,
	saleID uint64,
	req httptransport.BuyAssetRequest,
) (httptransport.BuyAssetResponse, error) {
	h.logReceived("buy_asset", caller)
	result, err := h.BuyAsset.Execute(ctx, commands.BuyAssetCommand{
		Caller:   caller,
		SaleID:   saleID,
		Attached: entities.Mutez(req.AmountMutez),
	})
	if err != nil {
		return httptransport.BuyAssetResponse{}, err
	}
	return httptransport.BuyAssetResponse{
		Sale:  mapSale(result.Sale),
		Buyer: string(result.Buyer),
	}, nil
}

// CancelSaleHandler godoc
// @Summary Cancel an open sale
// @Description The seller or the administrator may cancel; the asset returns to the seller.
// @Tags marketplace
// @Produce json
// @Param X-Caller-Address header string true "Caller address"
// @Param sale_id path int true "Sale id"
// @Success 200 {object} httptransport.CancelSaleResponse
// @Failure 403 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Router /v1/sales/{sale_id} [delete]
func (h Handler) CancelSaleHandler(ctx context.Context, caller string, saleID uint64) (httptransport.CancelSaleResponse, error) {
	h.logReceived("cancel_sale", caller)
	result, err := h.CancelSale.Execute(ctx, commands.CancelSaleCommand{
		Caller: caller,
		SaleID: saleID,
	})
	if err != nil {
		return httptransport.CancelSaleResponse{}, err
	}
	return httptransport.CancelSaleResponse{Sale: mapSale(result.Sale)}, nil
}

func (h Handler) logReceived(operation string, caller string) {
	application.ResolveLogger(h.Logger).Debug("marketplace request received",
		"event", "http_"+operation+"_received",
		"module", application.ModuleName,
		"layer", "transport",
		"caller", caller,
	)
}

func mapMarket(market entities.Market) httptransport.MarketDTO {
	return httptransport.MarketDTO{
		Contract:  string(market.Contract),
		TokenKind: market.TokenKind.String(),
		SaleIDs:   market.SortedSaleIDs(),
	}
}

func mapSales(sales []entities.Sale) []httptransport.SaleDTO {
	items := make([]httptransport.SaleDTO, 0, len(sales))
	for _, sale := range sales {
		items = append(items, mapSale(sale))
	}
	return items
}

func mapSale(sale entities.Sale) httptransport.SaleDTO {
	return httptransport.SaleDTO{
		SaleID:     sale.SaleID,
		Contract:   string(sale.Contract),
		TokenID:    sale.TokenID,
		Amount:     sale.Amount,
		PriceMutez: uint64(sale.Price),
		PriceTez:   httptransport.FormatTez(uint64(sale.Price)),
		Seller:     string(sale.Seller),
	}
}
