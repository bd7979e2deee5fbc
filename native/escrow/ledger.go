package escrow

import (
	"errors"
	"fmt"
	"math/big"

	"jobmarket/core/types"
)

var (
	errNilState = errors.New("escrow ledger: state not configured")
	// ErrInsufficientFunds marks transfers exceeding the source balance.
	ErrInsufficientFunds = errors.New("escrow ledger: insufficient balance")
	// ErrVaultUnderflow marks releases exceeding the job's locked balance. A
	// correct state machine never triggers this; it centralises the
	// at-most-once payment invariant.
	ErrVaultUnderflow = errors.New("escrow ledger: vault underflow")
)

// ledgerState is the subset of state manager functionality the ledger needs:
// the account token ledger plus per-job vault bookkeeping.
type ledgerState interface {
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
	EscrowVaultAddress() [20]byte
	EscrowCredit(jobID uint64, amt *big.Int) error
	EscrowDebit(jobID uint64, amt *big.Int) error
	EscrowBalance(jobID uint64) (*big.Int, error)
}

// Ledger holds per-job locked balances. All escrow balance mutations flow
// through Deposit and Release; the job and dispute engines never touch the
// vault account directly.
type Ledger struct {
	state ledgerState
}

// NewLedger constructs a ledger bound to the provided state backend.
func NewLedger(state ledgerState) *Ledger {
	return &Ledger{state: state}
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func (l *Ledger) transfer(from, to [20]byte, amount *big.Int) error {
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("escrow ledger: negative transfer amount")
	}
	fromAcc, err := l.state.GetAccount(from[:])
	if err != nil {
		return err
	}
	toAcc, err := l.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	fromAcc = fromAcc.EnsureBalances()
	toAcc = toAcc.EnsureBalances()
	if fromAcc.Balance.Cmp(amt) < 0 {
		return ErrInsufficientFunds
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amt)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amt)
	if err := l.state.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	return l.state.PutAccount(to[:], toAcc)
}

// Deposit moves amount from the payer into the module vault and credits the
// job's locked balance.
func (l *Ledger) Deposit(jobID uint64, from [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return fmt.Errorf("escrow ledger: deposit amount must be positive")
	}
	vault := l.state.EscrowVaultAddress()
	if err := l.transfer(from, vault, amt); err != nil {
		return err
	}
	return l.state.EscrowCredit(jobID, amt)
}

// Release debits the job's locked balance and pays the recipient from the
// vault. Refunds are releases whose recipient is the client.
func (l *Ledger) Release(jobID uint64, to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return fmt.Errorf("escrow ledger: release amount must be positive")
	}
	locked, err := l.state.EscrowBalance(jobID)
	if err != nil {
		return err
	}
	if locked == nil || locked.Cmp(amt) < 0 {
		return ErrVaultUnderflow
	}
	if err := l.state.EscrowDebit(jobID, amt); err != nil {
		return err
	}
	vault := l.state.EscrowVaultAddress()
	return l.transfer(vault, to, amt)
}

// Leg is a single recipient in a batched settlement.
type Leg struct {
	To     [20]byte
	Amount *big.Int
}

// ReleaseMany settles several recipients from the job's locked balance as one
// all-or-nothing operation. Every leg is validated against the vault and all
// account mutations are staged before the first write, so a failed leg leaves
// no balance touched. Multi-leg settlements (cancellation penalty plus refund,
// dispute splits plus arbitration fee) must use this instead of sequential
// Release calls.
func (l *Ledger) ReleaseMany(jobID uint64, legs []Leg) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	total := big.NewInt(0)
	for _, leg := range legs {
		amt := cloneBigInt(leg.Amount)
		if amt.Sign() < 0 {
			return fmt.Errorf("escrow ledger: negative release amount")
		}
		total.Add(total, amt)
	}
	if total.Sign() == 0 {
		return nil
	}
	locked, err := l.state.EscrowBalance(jobID)
	if err != nil {
		return err
	}
	if locked == nil || locked.Cmp(total) < 0 {
		return ErrVaultUnderflow
	}
	vault := l.state.EscrowVaultAddress()
	vaultAcc, err := l.state.GetAccount(vault[:])
	if err != nil {
		return err
	}
	vaultAcc = vaultAcc.EnsureBalances()
	if vaultAcc.Balance.Cmp(total) < 0 {
		return ErrInsufficientFunds
	}
	order := make([][20]byte, 0, len(legs))
	staged := make(map[[20]byte]*types.Account, len(legs))
	for _, leg := range legs {
		amt := cloneBigInt(leg.Amount)
		if amt.Sign() == 0 {
			continue
		}
		acc, ok := staged[leg.To]
		if !ok {
			loaded, err := l.state.GetAccount(leg.To[:])
			if err != nil {
				return err
			}
			acc = loaded.EnsureBalances()
			staged[leg.To] = acc
			order = append(order, leg.To)
		}
		acc.Balance = new(big.Int).Add(acc.Balance, amt)
	}
	vaultAcc.Balance = new(big.Int).Sub(vaultAcc.Balance, total)
	if err := l.state.EscrowDebit(jobID, total); err != nil {
		return err
	}
	if err := l.state.PutAccount(vault[:], vaultAcc); err != nil {
		return err
	}
	for _, to := range order {
		if err := l.state.PutAccount(to[:], staged[to]); err != nil {
			return err
		}
	}
	return nil
}

// Balance reports the job's currently locked amount.
func (l *Ledger) Balance(jobID uint64) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	bal, err := l.state.EscrowBalance(jobID)
	if err != nil {
		return nil, err
	}
	return cloneBigInt(bal), nil
}
