package domain

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrPaused               = errors.New("engine paused")
	ErrInvalidState         = errors.New("invalid bond state")
	ErrInvalidParams        = errors.New("invalid bond parameters")
	ErrAlreadyRegistered    = errors.New("issuer already registered")
	ErrNotRegistered        = errors.New("issuer not registered")
	ErrNotKYCApproved       = errors.New("issuer not KYC approved")
	ErrInsufficientUnits    = errors.New("units exceed available supply")
	ErrInsufficientHolding  = errors.New("units exceed holder position")
	ErrIncorrectPayment     = errors.New("attached payment does not match price")
	ErrInsufficientTreasury = errors.New("payout exceeds treasury balance")
	ErrReentrancy           = errors.New("reentrant call rejected")
	ErrExternalCall         = errors.New("external token call failed")
	ErrAmountOverflow       = errors.New("amount overflows int64")
	ErrRateLimited          = errors.New("rate limited")
	ErrLockHeld             = errors.New("lock already held")
)
