package application

import (
	"errors"
	"time"

	domainerrors "tiof/contexts/token-trading/marketplace-service/domain/errors"
	"tiof/contexts/token-trading/marketplace-service/ports"
)

const OutcomeOK = "OK"

// OutcomeCode is the metrics label for an operation result.
func OutcomeCode(err error) string {
	if err == nil {
		return OutcomeOK
	}
	return domainerrors.Code(err)
}

// IsRejection reports whether err is a caller-facing precondition failure
// rather than an infrastructure fault.
func IsRejection(err error) bool {
	return errors.Is(err, domainerrors.ErrNotAdmin) ||
		errors.Is(err, domainerrors.ErrNotAdminOrSeller) ||
		errors.Is(err, domainerrors.ErrMarketAlreadyExists) ||
		errors.Is(err, domainerrors.ErrMarketDoesNotExist) ||
		errors.Is(err, domainerrors.ErrSaleDoesNotExist) ||
		errors.Is(err, domainerrors.ErrPriceMismatch) ||
		errors.Is(err, domainerrors.ErrTransferRejected) ||
		errors.Is(err, domainerrors.ErrSettlementConflict) ||
		errors.Is(err, domainerrors.ErrInvalidRequest)
}

func ObserveOperation(observer ports.OperationObserver, operation string, started time.Time, err error) {
	if observer == nil {
		return
	}
	observer.ObserveOperation(operation, OutcomeCode(err), time.Since(started))
}
