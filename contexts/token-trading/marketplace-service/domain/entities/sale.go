package entities

import (
	domainerrors "tiof/contexts/token-trading/marketplace-service/domain/errors"
)

// Sale is an escrowed listing. A live Sale record is the escrow marker:
// while it exists the escrow address holds Amount units of the asset.
type Sale struct {
	SaleID   uint64
	Contract Address
	TokenID  uint64
	Amount   uint64
	Price    Mutez
	Seller   Address
}

func NewSale(
	saleID uint64,
	contract Address,
	tokenID uint64,
	amount uint64,
	price Mutez,
	seller Address,
) (Sale, error) {
	if saleID == 0 || amount == 0 {
		return Sale{}, domainerrors.ErrInvalidRequest
	}
	if _, ok := ParseAddress(string(contract)); !ok {
		return Sale{}, domainerrors.ErrInvalidRequest
	}
	if _, ok := ParseAddress(string(seller)); !ok {
		return Sale{}, domainerrors.ErrInvalidRequest
	}
	return Sale{
		SaleID:   saleID,
		Contract: contract,
		TokenID:  tokenID,
		Amount:   amount,
		Price:    price,
		Seller:   seller,
	}, nil
}
