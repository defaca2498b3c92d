package errors

import "errors"

var (
	ErrNotAdmin                 = errors.New("caller is not the administrator")
	ErrNotAdminOrSeller         = errors.New("caller is neither the administrator nor the seller")
	ErrMarketAlreadyExists      = errors.New("market already registered")
	ErrMarketDoesNotExist       = errors.New("market does not exist")
	ErrSaleDoesNotExist         = errors.New("sale does not exist")
	ErrPriceMismatch            = errors.New("attached amount does not match sale price")
	ErrTransferRejected         = errors.New("asset transfer rejected")
	ErrSettlementConflict       = errors.New("token chain changed during settlement")
	ErrInvalidRequest           = errors.New("invalid marketplace request")
	ErrRepositoryInvariantBroke = errors.New("repository invariant violated")
)

// Code returns the stable wire code for err. Codes keep the TIOF_ prefix
// used by the on-chain contract so off-chain callers can match either.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotAdmin):
		return "TIOF_NOT_ADMIN"
	case errors.Is(err, ErrNotAdminOrSeller):
		return "TIOF_NOT_ADMIN_OR_SELLER"
	case errors.Is(err, ErrMarketAlreadyExists):
		return "TIOF_ALREADY_REGISTERED"
	case errors.Is(err, ErrMarketDoesNotExist):
		return "TIOF_NOT_EXISTENT_MARKET"
	case errors.Is(err, ErrSaleDoesNotExist):
		return "TIOF_NOT_EXISTENT_SALE"
	case errors.Is(err, ErrPriceMismatch):
		return "TIOF_PRICE_MISMATCH"
	case errors.Is(err, ErrTransferRejected):
		return "TIOF_TRANSFER_REJECTED"
	case errors.Is(err, ErrSettlementConflict):
		return "TIOF_SETTLEMENT_CONFLICT"
	case errors.Is(err, ErrInvalidRequest):
		return "TIOF_INVALID_REQUEST"
	default:
		return "TIOF_INTERNAL"
	}
}
