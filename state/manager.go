package state

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"jobmarket/core/types"
	"jobmarket/native/arbitration"
	"jobmarket/native/jobs"
	"jobmarket/storage"
)

var (
	accountPrefix      = []byte("accounts/")
	jobPrefix          = []byte("jobs/job/")
	jobCounterKey      = []byte("jobs/counter")
	disputePrefix      = []byte("jobs/dispute/")
	disputeCounterKey  = []byte("jobs/dispute/counter")
	disputeHeadPrefix  = []byte("jobs/dispute/head/")
	arbitratorPrefix   = []byte("arbitration/registry/")
	arbitratorIndexKey = []byte("arbitration/registry/index")
	vaultBalancePrefix = []byte("escrow/vault/")
)

// vaultDomainTag seeds the module vault address. The trailing 20 bytes of its
// keccak digest form an account no key can sign for.
const vaultDomainTag = "jobmarket/escrow/vault"

// Manager persists engine records as JSON documents in a key-value store. It
// implements the narrow state interfaces consumed by the escrow ledger, the
// job engine and the dispute engine.
type Manager struct {
	db storage.Database
}

// NewManager wraps the supplied database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func (m *Manager) kvGet(key []byte, out interface{}) (bool, error) {
	if m == nil || m.db == nil {
		return false, errors.New("state: database not configured")
	}
	raw, err := m.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

func (m *Manager) kvPut(key []byte, value interface{}) error {
	if m == nil || m.db == nil {
		return errors.New("state: database not configured")
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	return m.db.Put(key, raw)
}

func (m *Manager) nextID(counterKey []byte) (uint64, error) {
	if m == nil || m.db == nil {
		return 0, errors.New("state: database not configured")
	}
	var count uint64
	raw, err := m.db.Get(counterKey)
	switch {
	case errors.Is(err, storage.ErrKeyNotFound):
	case err != nil:
		return 0, err
	case len(raw) == 8:
		count = binary.BigEndian.Uint64(raw)
	default:
		return 0, fmt.Errorf("state: malformed counter %q", counterKey)
	}
	count++
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, count)
	if err := m.db.Put(counterKey, buf); err != nil {
		return 0, err
	}
	return count, nil
}

// --- Accounts ---

func accountKey(addr []byte) []byte {
	return append(append([]byte(nil), accountPrefix...), []byte(hex.EncodeToString(addr))...)
}

// GetAccount returns a copy of the stored account, or a zero-balance account
// for unknown addresses.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	account := &types.Account{}
	ok, err := m.kvGet(accountKey(addr), account)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &types.Account{Balance: big.NewInt(0)}, nil
	}
	return account.EnsureBalances(), nil
}

// PutAccount persists the account record.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if account == nil {
		return errors.New("state: account must not be nil")
	}
	return m.kvPut(accountKey(addr), account.EnsureBalances())
}

// --- Escrow vault ---

// EscrowVaultAddress derives the module vault account from the domain tag.
func (m *Manager) EscrowVaultAddress() [20]byte {
	digest := ethcrypto.Keccak256([]byte(vaultDomainTag))
	var addr [20]byte
	copy(addr[:], digest[len(digest)-20:])
	return addr
}

func vaultBalanceKey(jobID uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", vaultBalancePrefix, jobID))
}

// EscrowBalance reports the locked balance attributed to the job.
func (m *Manager) EscrowBalance(jobID uint64) (*big.Int, error) {
	balance := new(big.Int)
	ok, err := m.kvGet(vaultBalanceKey(jobID), balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

// EscrowCredit increases the job's locked balance.
func (m *Manager) EscrowCredit(jobID uint64, amt *big.Int) error {
	if amt == nil || amt.Sign() < 0 {
		return errors.New("state: credit amount must be non-negative")
	}
	balance, err := m.EscrowBalance(jobID)
	if err != nil {
		return err
	}
	return m.kvPut(vaultBalanceKey(jobID), new(big.Int).Add(balance, amt))
}

// EscrowDebit decreases the job's locked balance, rejecting underflows.
func (m *Manager) EscrowDebit(jobID uint64, amt *big.Int) error {
	if amt == nil || amt.Sign() < 0 {
		return errors.New("state: debit amount must be non-negative")
	}
	balance, err := m.EscrowBalance(jobID)
	if err != nil {
		return err
	}
	if balance.Cmp(amt) < 0 {
		return fmt.Errorf("state: escrow balance underflow for job %d", jobID)
	}
	return m.kvPut(vaultBalanceKey(jobID), new(big.Int).Sub(balance, amt))
}

// --- Jobs ---

func jobKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", jobPrefix, id))
}

// JobNextID assigns the next monotonic job identifier.
func (m *Manager) JobNextID() (uint64, error) {
	return m.nextID(jobCounterKey)
}

// JobPut persists the sanitized job record.
func (m *Manager) JobPut(job *jobs.Job) error {
	sanitized, err := jobs.SanitizeJob(job)
	if err != nil {
		return err
	}
	return m.kvPut(jobKey(sanitized.ID), sanitized)
}

// JobGet returns a copy of the stored job.
func (m *Manager) JobGet(id uint64) (*jobs.Job, bool, error) {
	job := &jobs.Job{}
	ok, err := m.kvGet(jobKey(id), job)
	if err != nil || !ok {
		return nil, false, err
	}
	return job, true, nil
}

// --- Disputes ---

func disputeKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", disputePrefix, id))
}

func disputeHeadKey(jobID uint64, milestoneIdx *uint32) []byte {
	target := "job"
	if milestoneIdx != nil {
		target = fmt.Sprintf("m%d", *milestoneIdx)
	}
	return []byte(fmt.Sprintf("%s%d/%s", disputeHeadPrefix, jobID, target))
}

// DisputeNextID assigns the next monotonic dispute identifier.
func (m *Manager) DisputeNextID() (uint64, error) {
	return m.nextID(disputeCounterKey)
}

// DisputePut persists the dispute record. Historical disputes are never
// deleted; the audit trail is intentional.
func (m *Manager) DisputePut(dispute *arbitration.Dispute) error {
	if dispute == nil {
		return errors.New("state: dispute must not be nil")
	}
	if err := dispute.Validate(); err != nil {
		return err
	}
	return m.kvPut(disputeKey(dispute.ID), dispute.Clone())
}

// DisputeGet returns a copy of the stored dispute.
func (m *Manager) DisputeGet(id uint64) (*arbitration.Dispute, bool, error) {
	dispute := &arbitration.Dispute{}
	ok, err := m.kvGet(disputeKey(id), dispute)
	if err != nil || !ok {
		return nil, false, err
	}
	return dispute, true, nil
}

// DisputeHeadGet returns the latest dispute id recorded for the target.
func (m *Manager) DisputeHeadGet(jobID uint64, milestoneIdx *uint32) (uint64, bool, error) {
	var id uint64
	ok, err := m.kvGet(disputeHeadKey(jobID, milestoneIdx), &id)
	if err != nil || !ok {
		return 0, false, err
	}
	return id, true, nil
}

// DisputeHeadSet records the latest dispute id for the target.
func (m *Manager) DisputeHeadSet(jobID uint64, milestoneIdx *uint32, disputeID uint64) error {
	return m.kvPut(disputeHeadKey(jobID, milestoneIdx), disputeID)
}

// --- Arbitrator registry ---

func arbitratorKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", arbitratorPrefix, addr))
}

// ArbitratorPut persists the registry entry and maintains the address index.
func (m *Manager) ArbitratorPut(entry *arbitration.Arbitrator) error {
	if entry == nil {
		return errors.New("state: arbitrator must not be nil")
	}
	var index []string
	if _, err := m.kvGetIndex(&index); err != nil {
		return err
	}
	encoded := hex.EncodeToString(entry.Address[:])
	found := false
	for _, existing := range index {
		if existing == encoded {
			found = true
			break
		}
	}
	if !found {
		index = append(index, encoded)
		sort.Strings(index)
		if err := m.kvPut(arbitratorIndexKey, index); err != nil {
			return err
		}
	}
	return m.kvPut(arbitratorKey(entry.Address), entry.Clone())
}

// ArbitratorGet returns a copy of the registry entry.
func (m *Manager) ArbitratorGet(addr [20]byte) (*arbitration.Arbitrator, bool, error) {
	entry := &arbitration.Arbitrator{}
	ok, err := m.kvGet(arbitratorKey(addr), entry)
	if err != nil || !ok {
		return nil, false, err
	}
	return entry, true, nil
}

// ArbitratorList returns every registry entry ordered by address.
func (m *Manager) ArbitratorList() ([]*arbitration.Arbitrator, error) {
	var index []string
	if _, err := m.kvGetIndex(&index); err != nil {
		return nil, err
	}
	entries := make([]*arbitration.Arbitrator, 0, len(index))
	for _, encoded := range index {
		raw, err := hex.DecodeString(encoded)
		if err != nil || len(raw) != 20 {
			return nil, fmt.Errorf("state: malformed arbitrator index entry %q", encoded)
		}
		var addr [20]byte
		copy(addr[:], raw)
		entry, ok, err := m.ArbitratorGet(addr)
		if err != nil {
			return nil, err
		}
		if ok {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (m *Manager) kvGetIndex(out *[]string) (bool, error) {
	return m.kvGet(arbitratorIndexKey, out)
}
