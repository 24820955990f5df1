package fees

import (
	"errors"
	"fmt"
	"math/big"
)

const (
	// BasisPointsDenominator is the divisor applied to basis-point rates.
	BasisPointsDenominator = 10_000
	// DefaultPlatformFeeBps is the platform fee applied to settlements (1%).
	DefaultPlatformFeeBps uint32 = 100
	// DefaultMaxPlatformFeeBps caps the rate the administrator may configure (10%).
	DefaultMaxPlatformFeeBps uint32 = 1_000
)

// ErrOutOfRange is returned when a basis-point rate exceeds the configured cap.
var ErrOutOfRange = errors.New("fees: basis points out of range")

// Policy captures the platform fee rate and the ceiling enforced on updates.
type Policy struct {
	FeeBps    uint32
	MaxFeeBps uint32
}

// DefaultPolicy returns the launch configuration.
func DefaultPolicy() Policy {
	return Policy{FeeBps: DefaultPlatformFeeBps, MaxFeeBps: DefaultMaxPlatformFeeBps}
}

// Validate ensures the rate sits under the cap and the cap under 100%.
func (p Policy) Validate() error {
	if p.MaxFeeBps > BasisPointsDenominator {
		return fmt.Errorf("%w: max %d exceeds %d", ErrOutOfRange, p.MaxFeeBps, BasisPointsDenominator)
	}
	return p.CheckRate(p.FeeBps)
}

// CheckRate reports whether bps may be configured under this policy's cap.
func (p Policy) CheckRate(bps uint32) error {
	if bps > p.MaxFeeBps {
		return fmt.Errorf("%w: %d exceeds cap %d", ErrOutOfRange, bps, p.MaxFeeBps)
	}
	return nil
}

// WithRate returns a copy of the policy using bps, validated against the cap.
func (p Policy) WithRate(bps uint32) (Policy, error) {
	if err := p.CheckRate(bps); err != nil {
		return p, err
	}
	p.FeeBps = bps
	return p, nil
}

// Result summarises a fee computation.
type Result struct {
	Gross *big.Int
	Fee   *big.Int
	Net   *big.Int
}

// Compute splits amount into the platform fee and the net payout. The fee is
// rounded down so Fee + Net always equals the gross amount. Nil or negative
// amounts yield a zero result.
func (p Policy) Compute(amount *big.Int) Result {
	result := Result{Gross: big.NewInt(0), Fee: big.NewInt(0), Net: big.NewInt(0)}
	if amount == nil || amount.Sign() <= 0 {
		return result
	}
	result.Gross.Set(amount)
	if p.FeeBps == 0 {
		result.Net.Set(amount)
		return result
	}
	fee := new(big.Int).Mul(amount, new(big.Int).SetUint64(uint64(p.FeeBps)))
	fee.Quo(fee, big.NewInt(BasisPointsDenominator))
	if fee.Cmp(amount) > 0 {
		fee.Set(amount)
	}
	result.Fee = fee
	result.Net = new(big.Int).Sub(amount, fee)
	return result
}
