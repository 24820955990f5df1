package escrow

import (
	"fmt"
	"math/big"
	"strings"

	"landescrow/native/fees"
)

// EscrowState represents the lifecycle states of a land deposit escrow.
type EscrowState uint8

const (
	EscrowCreated EscrowState = iota
	EscrowConfirmed
	EscrowCompleted
	EscrowCancelled
	EscrowRefunded
	EscrowDisputed
	EscrowResolved
)

const (
	// MinDurationDays and MaxDurationDays bound the escrow deadline window.
	MinDurationDays = 1
	MaxDurationDays = 90

	secondsPerDay = 86_400

	// ExpiredReason is recorded as the cancel reason when an escrow lapses.
	ExpiredReason = "expired"
)

var stateNames = [...]string{
	EscrowCreated:   "created",
	EscrowConfirmed: "confirmed",
	EscrowCompleted: "completed",
	EscrowCancelled: "cancelled",
	EscrowRefunded:  "refunded",
	EscrowDisputed:  "disputed",
	EscrowResolved:  "resolved",
}

// Valid reports whether the state value is within the supported range.
func (s EscrowState) Valid() bool {
	return int(s) < len(stateNames)
}

// Terminal reports whether no further transition can leave the state.
func (s EscrowState) Terminal() bool {
	switch s {
	case EscrowCompleted, EscrowCancelled, EscrowRefunded, EscrowResolved:
		return true
	default:
		return false
	}
}

func (s EscrowState) String() string {
	if !s.Valid() {
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
	return stateNames[s]
}

// ParseState resolves a state name (case-insensitive) into its value.
func ParseState(name string) (EscrowState, error) {
	trimmed := strings.ToLower(strings.TrimSpace(name))
	for i, candidate := range stateNames {
		if candidate == trimmed {
			return EscrowState(i), nil
		}
	}
	return 0, fmt.Errorf("unknown escrow state %q", name)
}

// Escrow is the custody record for a buyer's deposit against a land entry.
// Amount is the value still held in custody; Deposit never changes, and the
// disbursement counters always satisfy
// Deposit == Amount + Refunded + FeePaid + SellerPaid.
type Escrow struct {
	ID              uint64
	LandID          uint64
	Buyer           [20]byte
	Seller          [20]byte
	Amount          *big.Int
	Deposit         *big.Int
	Refunded        *big.Int
	FeePaid         *big.Int
	SellerPaid      *big.Int
	State           EscrowState
	CreatedAt       int64
	Deadline        int64
	CompletedAt     int64
	AgreementHash   string
	ContactInfo     string
	CancelReason    string
	DisputeReason   string
	ResolutionNotes string
}

// Clone returns a deep copy of the escrow object so callers can safely mutate
// the copy without affecting the stored instance.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Amount = cloneBigInt(e.Amount)
	clone.Deposit = cloneBigInt(e.Deposit)
	clone.Refunded = cloneBigInt(e.Refunded)
	clone.FeePaid = cloneBigInt(e.FeePaid)
	clone.SellerPaid = cloneBigInt(e.SellerPaid)
	return &clone
}

// Disbursed returns the total value that has left custody.
func (e *Escrow) Disbursed() *big.Int {
	total := new(big.Int).Add(cloneBigInt(e.Refunded), cloneBigInt(e.FeePaid))
	return total.Add(total, cloneBigInt(e.SellerPaid))
}

// SanitizeEscrow validates the record and returns a clone with non-nil
// amounts. The accounting identity is enforced so a corrupted record never
// reaches storage.
func SanitizeEscrow(e *Escrow) (*Escrow, error) {
	if e == nil {
		return nil, fmt.Errorf("nil escrow")
	}
	clone := e.Clone()
	if clone.ID == 0 {
		return nil, fmt.Errorf("escrow id must be non-zero")
	}
	if !clone.State.Valid() {
		return nil, fmt.Errorf("invalid escrow state: %d", clone.State)
	}
	for name, v := range map[string]*big.Int{
		"amount":      clone.Amount,
		"deposit":     clone.Deposit,
		"refunded":    clone.Refunded,
		"fee":         clone.FeePaid,
		"seller paid": clone.SellerPaid,
	} {
		if v.Sign() < 0 {
			return nil, fmt.Errorf("escrow %s must be non-negative", name)
		}
	}
	total := new(big.Int).Add(clone.Amount, clone.Disbursed())
	if total.Cmp(clone.Deposit) != 0 {
		return nil, fmt.Errorf("escrow %d accounting mismatch: held %s + disbursed %s != deposit %s",
			clone.ID, clone.Amount, clone.Disbursed(), clone.Deposit)
	}
	return clone, nil
}

// Params are the engine settings persisted alongside escrow records.
type Params struct {
	FeeBps       uint32
	MaxFeeBps    uint32
	FeeCollector [20]byte
	Arbiter      [20]byte
}

// DefaultParams returns the fee defaults with no collector or arbiter.
func DefaultParams() Params {
	policy := fees.DefaultPolicy()
	return Params{FeeBps: policy.FeeBps, MaxFeeBps: policy.MaxFeeBps}
}

// Policy returns the fee policy described by the parameters.
func (p Params) Policy() fees.Policy {
	return fees.Policy{FeeBps: p.FeeBps, MaxFeeBps: p.MaxFeeBps}
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
