package entities

import (
	"sort"

	domainerrors "tiof/contexts/token-trading/marketplace-service/domain/errors"
)

// Market is a registered asset contract together with its open sales.
type Market struct {
	Contract  Address
	TokenKind TokenKind
	SaleIDs   map[uint64]struct{}
}

func NewMarket(contract Address, kind TokenKind) (Market, error) {
	if _, ok := ParseAddress(string(contract)); !ok || !kind.Valid() {
		return Market{}, domainerrors.ErrInvalidRequest
	}
	return Market{
		Contract:  contract,
		TokenKind: kind,
		SaleIDs:   make(map[uint64]struct{}),
	}, nil
}

func (m Market) HasSale(saleID uint64) bool {
	_, ok := m.SaleIDs[saleID]
	return ok
}

// AddSale returns a copy of the market with saleID in its open set.
func (m Market) AddSale(saleID uint64) Market {
	next := m.Clone()
	next.SaleIDs[saleID] = struct{}{}
	return next
}

// RemoveSale returns a copy of the market without saleID.
func (m Market) RemoveSale(saleID uint64) Market {
	next := m.Clone()
	delete(next.SaleIDs, saleID)
	return next
}

// SortedSaleIDs lists open sale ids ascending. Removal unwinds in this order.
func (m Market) SortedSaleIDs() []uint64 {
	ids := make([]uint64, 0, len(m.SaleIDs))
	for id := range m.SaleIDs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m Market) Clone() Market {
	ids := make(map[uint64]struct{}, len(m.SaleIDs))
	for id := range m.SaleIDs {
		ids[id] = struct{}{}
	}
	return Market{
		Contract:  m.Contract,
		TokenKind: m.TokenKind,
		SaleIDs:   ids,
	}
}
