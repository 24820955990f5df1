package fees

import (
	"errors"
	"math/big"
	"testing"
)

func TestComputeSplitsExactly(t *testing.T) {
	amounts := []*big.Int{
		big.NewInt(0),
		big.NewInt(1),
		big.NewInt(99),
		big.NewInt(10_001),
		new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil),
		new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1)),
	}
	for _, bps := range []uint32{0, 1, 100, 250, 999, 1_000, BasisPointsDenominator} {
		policy := Policy{FeeBps: bps, MaxFeeBps: BasisPointsDenominator}
		for _, amount := range amounts {
			res := policy.Compute(amount)
			sum := new(big.Int).Add(res.Fee, res.Net)
			if sum.Cmp(amount) != 0 {
				t.Fatalf("bps=%d amount=%s: fee %s + net %s != amount", bps, amount, res.Fee, res.Net)
			}
			if res.Fee.Sign() < 0 || res.Net.Sign() < 0 {
				t.Fatalf("bps=%d amount=%s: negative split", bps, amount)
			}
		}
	}
}

func TestComputeOneEtherAtDefaultRate(t *testing.T) {
	oneEther := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	res := DefaultPolicy().Compute(oneEther)
	wantFee := new(big.Int).Exp(big.NewInt(10), big.NewInt(16), nil)
	if res.Fee.Cmp(wantFee) != 0 {
		t.Fatalf("fee = %s, want %s", res.Fee, wantFee)
	}
	if res.Net.Cmp(new(big.Int).Sub(oneEther, wantFee)) != 0 {
		t.Fatalf("unexpected net %s", res.Net)
	}
}

func TestComputeRoundsDown(t *testing.T) {
	res := Policy{FeeBps: 100, MaxFeeBps: 1_000}.Compute(big.NewInt(199))
	if res.Fee.Int64() != 1 || res.Net.Int64() != 198 {
		t.Fatalf("unexpected split fee=%s net=%s", res.Fee, res.Net)
	}
}

func TestComputeNilAmount(t *testing.T) {
	res := DefaultPolicy().Compute(nil)
	if res.Fee.Sign() != 0 || res.Net.Sign() != 0 || res.Gross.Sign() != 0 {
		t.Fatalf("expected zero result for nil amount")
	}
}

func TestWithRateBounds(t *testing.T) {
	policy := DefaultPolicy()
	updated, err := policy.WithRate(200)
	if err != nil {
		t.Fatalf("with rate: %v", err)
	}
	if updated.FeeBps != 200 || policy.FeeBps != DefaultPlatformFeeBps {
		t.Fatalf("expected copy semantics, got %+v / %+v", updated, policy)
	}
	if _, err := policy.WithRate(DefaultMaxPlatformFeeBps + 1); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if _, err := policy.WithRate(DefaultMaxPlatformFeeBps); err != nil {
		t.Fatalf("cap itself must be accepted: %v", err)
	}
}

func TestValidate(t *testing.T) {
	if err := DefaultPolicy().Validate(); err != nil {
		t.Fatalf("default policy invalid: %v", err)
	}
	if err := (Policy{FeeBps: 10, MaxFeeBps: BasisPointsDenominator + 1}).Validate(); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected cap above 100%% to be rejected, got %v", err)
	}
	if err := (Policy{FeeBps: 500, MaxFeeBps: 400}).Validate(); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected rate above cap to be rejected, got %v", err)
	}
}
