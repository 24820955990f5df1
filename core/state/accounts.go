package state

import (
	"fmt"
	"math/big"

	"landescrow/core/types"
)

type storedAccount struct {
	Balance  *big.Int
	Credited *big.Int
}

// GetAccount loads the account for addr. Unknown accounts are returned zeroed.
func (tx *Tx) GetAccount(addr [20]byte) (*types.Account, error) {
	var stored storedAccount
	ok, err := tx.KVGet(AccountKey(addr), &stored)
	if err != nil {
		return nil, err
	}
	acc := types.NewAccount()
	if !ok {
		return acc, nil
	}
	if stored.Balance != nil {
		acc.Balance.Set(stored.Balance)
	}
	if stored.Credited != nil {
		acc.Credited.Set(stored.Credited)
	}
	return acc, nil
}

// PutAccount stores the account for addr.
func (tx *Tx) PutAccount(addr [20]byte, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("state: nil account")
	}
	acc := account.Clone()
	if acc.Balance.Sign() < 0 || acc.Credited.Sign() < 0 {
		return fmt.Errorf("state: negative balance for %x", addr)
	}
	return tx.KVPut(AccountKey(addr), &storedAccount{Balance: acc.Balance, Credited: acc.Credited})
}

// Account is a convenience read of a single account outside any transaction.
func (m *Manager) Account(addr [20]byte) (*types.Account, error) {
	tx := m.Begin()
	defer tx.Discard()
	return tx.GetAccount(addr)
}
