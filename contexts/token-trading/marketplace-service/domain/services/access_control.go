package services

import (
	"tiof/contexts/token-trading/marketplace-service/domain/entities"
	domainerrors "tiof/contexts/token-trading/marketplace-service/domain/errors"
)

// AccessControl is the single-administrator gate of the marketplace.
type AccessControl struct {
	Administrator entities.Address
}

func (a AccessControl) IsAdministrator(caller entities.Address) bool {
	return caller != "" && caller == a.Administrator
}

func (a AccessControl) VerifyAdministrator(caller entities.Address) error {
	if !a.IsAdministrator(caller) {
		return domainerrors.ErrNotAdmin
	}
	return nil
}

func (a AccessControl) VerifyAdministratorOrSeller(caller entities.Address, sale entities.Sale) error {
	if a.IsAdministrator(caller) || caller == sale.Seller {
		return nil
	}
	return domainerrors.ErrNotAdminOrSeller
}

// Replace hands the role to next. Only the current administrator may do so;
// next is not validated beyond being an address.
func (a AccessControl) Replace(caller entities.Address, next entities.Address) (AccessControl, error) {
	if err := a.VerifyAdministrator(caller); err != nil {
		return a, err
	}
	if _, ok := entities.ParseAddress(string(next)); !ok {
		return a, domainerrors.ErrInvalidRequest
	}
	return AccessControl{Administrator: next}, nil
}
