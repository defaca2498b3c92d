package httptransport

import (
	"math/big"

	"github.com/shopspring/decimal"
)

const tezExponent = -6

// FormatTez renders a mutez amount as tez with six decimals, e.g. 1500000 -> "1.500000".
func FormatTez(mutez uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(mutez), tezExponent).StringFixed(6)
}

type AdministratorResponse struct {
	Administrator string `json:"administrator"`
}

type SetAdministratorRequest struct {
	Administrator string `json:"administrator"`
}

type SetAdministratorResponse struct {
	Previous      string `json:"previous"`
	Administrator string `json:"administrator"`
}

type RegisterMarketRequest struct {
	Contract  string `json:"contract"`
	TokenKind string `json:"token_kind"`
}

type MarketDTO struct {
	Contract  string   `json:"contract"`
	TokenKind string   `json:"token_kind"`
	SaleIDs   []uint64 `json:"sale_ids"`
}

type GetMarketResponse struct {
	Item MarketDTO `json:"item"`
}

type ListMarketsResponse struct {
	Items []MarketDTO `json:"items"`
}

type RemoveMarketResponse struct {
	Contract      string    `json:"contract"`
	ReturnedSales []SaleDTO `json:"returned_sales"`
}

type SellAssetRequest struct {
	Contract   string `json:"contract"`
	TokenID    uint64 `json:"token_id"`
	Amount     uint64 `json:"amount"`
	PriceMutez uint64 `json:"price_mutez"`
}

type SaleDTO struct {
	SaleID     uint64 `json:"sale_id"`
	Contract   string `json:"contract"`
	TokenID    uint64 `json:"token_id"`
	Amount     uint64 `json:"amount"`
	PriceMutez uint64 `json:"price_mutez"`
	PriceTez   string `json:"price_tez"`
	Seller     string `json:"seller"`
}

type GetSaleResponse struct {
	Item SaleDTO `json:"item"`
}

type ListSalesRequest struct {
	Contract string `json:"contract,omitempty"`
	Seller   string `json:"seller,omitempty"`
	Cursor   string `json:"cursor,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

type ListSalesResponse struct {
	Items      []SaleDTO `json:"items"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

type BuyAssetRequest struct {
	AmountMutez uint64 `json:"amount_mutez"`
}

type BuyAssetResponse struct {
	Sale  SaleDTO `json:"sale"`
	Buyer string  `json:"buyer"`
}

type CancelSaleResponse struct {
	Sale SaleDTO `json:"sale"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
