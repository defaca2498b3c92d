package services

import (
	"fmt"
	"sort"

	"tiof/contexts/token-trading/marketplace-service/domain/entities"
	domainerrors "tiof/contexts/token-trading/marketplace-service/domain/errors"
)

// ListingTransfer moves the listed quantity from the seller into escrow.
func ListingTransfer(
	seller entities.Address,
	escrow entities.Address,
	market entities.Market,
	tokenID uint64,
	amount uint64,
) entities.AssetTransfer {
	return entities.AssetTransfer{
		From:     seller,
		To:       escrow,
		Amount:   amount,
		Contract: market.Contract,
		TokenID:  tokenID,
		Kind:     market.TokenKind,
	}
}

// PurchaseTransfer moves the escrowed quantity to the buyer.
func PurchaseTransfer(sale entities.Sale, kind entities.TokenKind, escrow entities.Address, buyer entities.Address) entities.AssetTransfer {
	return entities.AssetTransfer{
		From:     escrow,
		To:       buyer,
		Amount:   sale.Amount,
		Contract: sale.Contract,
		TokenID:  sale.TokenID,
		Kind:     kind,
	}
}

// ReturnTransfer hands the escrowed quantity back to the seller.
func ReturnTransfer(sale entities.Sale, kind entities.TokenKind, escrow entities.Address) entities.AssetTransfer {
	return entities.AssetTransfer{
		From:     escrow,
		To:       sale.Seller,
		Amount:   sale.Amount,
		Contract: sale.Contract,
		TokenID:  sale.TokenID,
		Kind:     kind,
	}
}

// VerifyPayment requires the attached amount to equal the price exactly.
func VerifyPayment(sale entities.Sale, attached entities.Mutez) error {
	if attached != sale.Price {
		return domainerrors.ErrPriceMismatch
	}
	return nil
}

// CheckConsistency reports the first violation of the registry/ledger
// coupling: every market's open set must equal the sales pointing at it, and
// every sale must point at a registered market.
func CheckConsistency(markets []entities.Market, sales []entities.Sale) error {
	byContract := make(map[entities.Address]map[uint64]struct{}, len(markets))
	for _, market := range markets {
		byContract[market.Contract] = make(map[uint64]struct{})
	}

	for _, sale := range sales {
		ids, ok := byContract[sale.Contract]
		if !ok {
			return fmt.Errorf("%w: sale %d references unknown market %s",
				domainerrors.ErrRepositoryInvariantBroke, sale.SaleID, sale.Contract)
		}
		ids[sale.SaleID] = struct{}{}
	}

	ordered := append([]entities.Market(nil), markets...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Contract < ordered[j].Contract })
	for _, market := range ordered {
		expected := byContract[market.Contract]
		if len(expected) != len(market.SaleIDs) {
			return fmt.Errorf("%w: market %s lists %d sales, ledger holds %d",
				domainerrors.ErrRepositoryInvariantBroke, market.Contract, len(market.SaleIDs), len(expected))
		}
		for id := range market.SaleIDs {
			if _, ok := expected[id]; !ok {
				return fmt.Errorf("%w: market %s lists missing sale %d",
					domainerrors.ErrRepositoryInvariantBroke, market.Contract, id)
			}
		}
	}
	return nil
}
