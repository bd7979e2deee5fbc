package types

import "math/big"

// Account tracks the fungible balance and replay nonce for a 20-byte address.
// Balances are mutated exclusively through the escrow ledger and the token
// transfer path; callers receive copies from the state manager.
type Account struct {
	Nonce   uint64   `json:"nonce"`
	Balance *big.Int `json:"balance"`
}

// EnsureBalances normalises nil big.Int fields so arithmetic never panics on
// freshly decoded records.
func (a *Account) EnsureBalances() *Account {
	if a == nil {
		return &Account{Balance: big.NewInt(0)}
	}
	if a.Balance == nil {
		a.Balance = big.NewInt(0)
	}
	return a
}

// Clone returns a deep copy safe for mutation.
func (a *Account) Clone() *Account {
	if a == nil {
		return &Account{Balance: big.NewInt(0)}
	}
	clone := &Account{Nonce: a.Nonce, Balance: big.NewInt(0)}
	if a.Balance != nil {
		clone.Balance = new(big.Int).Set(a.Balance)
	}
	return clone
}
