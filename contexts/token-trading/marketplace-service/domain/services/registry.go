package services

import (
	"tiof/contexts/token-trading/marketplace-service/domain/entities"
	domainerrors "tiof/contexts/token-trading/marketplace-service/domain/errors"
)

// PlanMarketRegistration validates a registration and returns the new market.
func PlanMarketRegistration(
	access AccessControl,
	caller entities.Address,
	contract entities.Address,
	kind entities.TokenKind,
	alreadyRegistered bool,
) (entities.Market, error) {
	if err := access.VerifyAdministrator(caller); err != nil {
		return entities.Market{}, err
	}
	if alreadyRegistered {
		return entities.Market{}, domainerrors.ErrMarketAlreadyExists
	}
	return entities.NewMarket(contract, kind)
}

// PlanMarketUnwind returns, in the market's deterministic order, the transfers
// that hand every escrowed quantity back to its seller. sales must hold one
// record per id in the market's open set.
func PlanMarketUnwind(
	market entities.Market,
	sales map[uint64]entities.Sale,
	escrow entities.Address,
) ([]entities.AssetTransfer, error) {
	ids := market.SortedSaleIDs()
	transfers := make([]entities.AssetTransfer, 0, len(ids))
	for _, id := range ids {
		sale, ok := sales[id]
		if !ok || sale.Contract != market.Contract {
			return nil, domainerrors.ErrRepositoryInvariantBroke
		}
		transfers = append(transfers, ReturnTransfer(sale, market.TokenKind, escrow))
	}
	return transfers, nil
}
