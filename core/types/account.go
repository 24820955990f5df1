package types

import "math/big"

// Account holds the spendable balance of a ledger participant. Deposits are
// debited from it at escrow creation and payouts credit it.
type Account struct {
	Balance *big.Int `json:"balance"`
	// Credited tracks the cumulative on-ramp credits for audit purposes.
	Credited *big.Int `json:"credited"`
}

// NewAccount returns an account with zeroed balances.
func NewAccount() *Account {
	return &Account{Balance: big.NewInt(0), Credited: big.NewInt(0)}
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return NewAccount()
	}
	clone := NewAccount()
	if a.Balance != nil {
		clone.Balance.Set(a.Balance)
	}
	if a.Credited != nil {
		clone.Credited.Set(a.Credited)
	}
	return clone
}
