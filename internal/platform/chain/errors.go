package chain

import "errors"

// Contract failures carry the names token contracts commonly emit.
var (
	ErrUnknownContract        = errors.New("chain: unknown contract")
	ErrUnknownEntrypoint      = errors.New("chain: unknown entrypoint")
	ErrMalformedParameters    = errors.New("chain: malformed parameters")
	ErrContractPaused         = errors.New("chain: contract paused")
	ErrNotEnoughBalance       = errors.New("NotEnoughBalance")
	ErrNotEnoughAllowance     = errors.New("NotEnoughAllowance")
	ErrUnsafeAllowanceChange  = errors.New("UnsafeAllowanceChange")
	ErrFA2InsufficientBalance = errors.New("FA2_INSUFFICIENT_BALANCE")
	ErrFA2NotOperator         = errors.New("FA2_NOT_OPERATOR")
	ErrFA2TokenUndefined      = errors.New("FA2_TOKEN_UNDEFINED")
	ErrFA2NotOwner            = errors.New("FA2_NOT_OWNER")
	ErrInsufficientFunds      = errors.New("chain: insufficient tez balance")
	ErrSessionClosed          = errors.New("chain: session closed")
	ErrStaleSession           = errors.New("chain: state changed since session began")
	ErrContractExists         = errors.New("chain: contract already deployed")
)
