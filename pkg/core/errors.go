package core

import "errors"

// Failure kinds shared by the order table and the settlement engine.
// Every failure is synchronous and leaves engine state unchanged; callers
// match with errors.Is and retry with re-derived arguments if they want to.
var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotFound         = errors.New("order not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrIncorrectPayment = errors.New("incorrect attached payment")
	ErrTransferFailed   = errors.New("transfer failed")
	ErrReentrant        = errors.New("reentrant call")
)
