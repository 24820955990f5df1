package escrow

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the engine. Callers match them with errors.Is;
// the engine wraps them with operation context.
var (
	ErrNotFound        = errors.New("escrow: not found")
	ErrUnauthorized    = errors.New("escrow: unauthorized")
	ErrInvalidState    = errors.New("escrow: invalid state")
	ErrInvalidAmount   = errors.New("escrow: invalid amount")
	ErrInvalidDuration = errors.New("escrow: invalid duration")
	ErrInvalidLand     = errors.New("escrow: invalid land")
	// ErrSelfDealing refines ErrInvalidLand for a buyer who owns the land.
	ErrSelfDealing    = fmt.Errorf("%w: caller owns the land", ErrInvalidLand)
	ErrInvalidFee     = errors.New("escrow: invalid fee")
	ErrTransferFailed = errors.New("escrow: transfer failed")

	errNilState     = errors.New("escrow engine: state not configured")
	errNilDirectory = errors.New("escrow engine: property directory not configured")
)

// Error kinds exposed to clients. The strings are stable.
const (
	KindNotFound        = "not_found"
	KindUnauthorized    = "unauthorized"
	KindInvalidState    = "invalid_state"
	KindInvalidAmount   = "invalid_amount"
	KindInvalidDuration = "invalid_duration"
	KindSelfDealing     = "self_dealing"
	KindInvalidLand     = "invalid_land"
	KindInvalidFee      = "invalid_fee"
	KindTransferFailed  = "transfer_failed"
	KindInternal        = "internal"
)

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrNotFound, KindNotFound},
	{ErrUnauthorized, KindUnauthorized},
	{ErrInvalidState, KindInvalidState},
	{ErrInvalidAmount, KindInvalidAmount},
	{ErrInvalidDuration, KindInvalidDuration},
	{ErrSelfDealing, KindSelfDealing},
	{ErrInvalidLand, KindInvalidLand},
	{ErrInvalidFee, KindInvalidFee},
	{ErrTransferFailed, KindTransferFailed},
}

// ErrorKind classifies err into one of the Kind constants. Nil yields "".
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, candidate := range errorKinds {
		if errors.Is(err, candidate.err) {
			return candidate.kind
		}
	}
	return KindInternal
}

func stateError(op string, esc *Escrow) error {
	return fmt.Errorf("%w: cannot %s escrow %d in state %s", ErrInvalidState, op, esc.ID, esc.State)
}

func authError(op string, caller [20]byte, id uint64) error {
	return fmt.Errorf("%w: %x may not %s escrow %d", ErrUnauthorized, caller, op, id)
}
