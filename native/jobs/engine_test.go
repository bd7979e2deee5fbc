package jobs

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"jobmarket/core/events"
	"jobmarket/native/escrow"
)

type mockState struct {
	jobs    map[uint64]*Job
	counter uint64
}

func newMockState() *mockState {
	return &mockState{jobs: make(map[uint64]*Job)}
}

func (m *mockState) JobPut(j *Job) error {
	sanitized, err := SanitizeJob(j)
	if err != nil {
		return err
	}
	m.jobs[sanitized.ID] = sanitized
	return nil
}

func (m *mockState) JobGet(id uint64) (*Job, bool, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, false, nil
	}
	return job.Clone(), true, nil
}

func (m *mockState) JobNextID() (uint64, error) {
	m.counter++
	return m.counter, nil
}

type mockLedger struct {
	locked   map[uint64]*big.Int
	balances map[[20]byte]*big.Int
	failNext bool
	deposits int
	releases int
}

func newMockLedger() *mockLedger {
	return &mockLedger{
		locked:   make(map[uint64]*big.Int),
		balances: make(map[[20]byte]*big.Int),
	}
}

func (m *mockLedger) Deposit(jobID uint64, from [20]byte, amount *big.Int) error {
	if m.failNext {
		m.failNext = false
		return fmt.Errorf("transfer rejected")
	}
	m.deposits++
	bal, ok := m.locked[jobID]
	if !ok {
		bal = big.NewInt(0)
	}
	m.locked[jobID] = new(big.Int).Add(bal, amount)
	return nil
}

func (m *mockLedger) Release(jobID uint64, to [20]byte, amount *big.Int) error {
	if m.failNext {
		m.failNext = false
		return fmt.Errorf("transfer rejected")
	}
	bal, ok := m.locked[jobID]
	if !ok || bal.Cmp(amount) < 0 {
		return fmt.Errorf("vault underflow")
	}
	m.releases++
	m.locked[jobID] = new(big.Int).Sub(bal, amount)
	credit, ok := m.balances[to]
	if !ok {
		credit = big.NewInt(0)
	}
	m.balances[to] = new(big.Int).Add(credit, amount)
	return nil
}

func (m *mockLedger) ReleaseMany(jobID uint64, legs []escrow.Leg) error {
	if m.failNext {
		m.failNext = false
		return fmt.Errorf("transfer rejected")
	}
	total := big.NewInt(0)
	for _, leg := range legs {
		total.Add(total, leg.Amount)
	}
	bal, ok := m.locked[jobID]
	if !ok || bal.Cmp(total) < 0 {
		return fmt.Errorf("vault underflow")
	}
	m.releases++
	m.locked[jobID] = new(big.Int).Sub(bal, total)
	for _, leg := range legs {
		credit, ok := m.balances[leg.To]
		if !ok {
			credit = big.NewInt(0)
		}
		m.balances[leg.To] = new(big.Int).Add(credit, leg.Amount)
	}
	return nil
}

func (m *mockLedger) balanceOf(addr [20]byte) *big.Int {
	bal, ok := m.balances[addr]
	if !ok {
		return big.NewInt(0)
	}
	return bal
}

type recordingEmitter struct {
	types []string
}

func (r *recordingEmitter) Emit(evt events.Event) {
	r.types = append(r.types, evt.EventType())
}

type denyAuth struct {
	denied map[[20]byte]bool
}

func (d denyAuth) Authenticate(addr [20]byte) bool { return !d.denied[addr] }

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

const baseTime = int64(1_000_000)

func newTestEngine(t *testing.T) (*Engine, *mockState, *mockLedger, *recordingEmitter) {
	t.Helper()
	state := newMockState()
	ledger := newMockLedger()
	emitter := &recordingEmitter{}
	engine := NewEngine()
	engine.SetState(state)
	engine.SetLedger(ledger)
	engine.SetCancellationFeeBps(1000)
	engine.SetNowFunc(func() int64 { return baseTime })
	engine.SetEmitter(emitter)
	return engine, state, ledger, emitter
}

func mustCreateJob(t *testing.T, engine *Engine, client [20]byte) uint64 {
	t.Helper()
	id, err := engine.CreateJob(client, "Logo",
		[]string{"design", "revision"},
		[]*big.Int{big.NewInt(100), big.NewInt(50)},
		[]int64{baseTime + 100, baseTime + 200})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	return id
}

func mustStartJob(t *testing.T, engine *Engine, client, talent [20]byte) uint64 {
	t.Helper()
	id := mustCreateJob(t, engine, client)
	if err := engine.FundJob(client, id); err != nil {
		t.Fatalf("fund job: %v", err)
	}
	if err := engine.SelectTalent(client, id, talent); err != nil {
		t.Fatalf("select talent: %v", err)
	}
	return id
}

func TestCreateJobValidatesInput(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	client := testAddr(0x01)

	cases := []struct {
		name         string
		descriptions []string
		amounts      []*big.Int
		deadlines    []int64
	}{
		{"empty", nil, nil, nil},
		{"length mismatch", []string{"a", "b"}, []*big.Int{big.NewInt(1)}, []int64{baseTime + 1, baseTime + 2}},
		{"zero amount", []string{"a"}, []*big.Int{big.NewInt(0)}, []int64{baseTime + 1}},
		{"negative amount", []string{"a"}, []*big.Int{big.NewInt(-5)}, []int64{baseTime + 1}},
		{"past deadline", []string{"a"}, []*big.Int{big.NewInt(1)}, []int64{baseTime - 1}},
		{"decreasing deadlines", []string{"a", "b"}, []*big.Int{big.NewInt(1), big.NewInt(1)}, []int64{baseTime + 10, baseTime + 5}},
		{"blank description", []string{"  "}, []*big.Int{big.NewInt(1)}, []int64{baseTime + 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := engine.CreateJob(client, "Job", tc.descriptions, tc.amounts, tc.deadlines); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestCreateJobAssignsMonotonicIDs(t *testing.T) {
	engine, state, _, emitter := newTestEngine(t)
	client := testAddr(0x01)

	first := mustCreateJob(t, engine, client)
	second := mustCreateJob(t, engine, client)
	if second != first+1 {
		t.Fatalf("ids not monotonic: %d then %d", first, second)
	}
	job, ok, err := state.JobGet(first)
	if err != nil || !ok {
		t.Fatalf("job not persisted: %v", err)
	}
	if job.Status != JobStatusCreated {
		t.Fatalf("status = %s, want created", job.Status)
	}
	if job.TotalAmount.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("total = %s, want 150", job.TotalAmount)
	}
	if len(emitter.types) != 2 || emitter.types[0] != EventTypeJobCreated {
		t.Fatalf("unexpected events %v", emitter.types)
	}
}

func TestFundJobLocksTotalAmount(t *testing.T) {
	engine, state, ledger, emitter := newTestEngine(t)
	client := testAddr(0x01)
	id := mustCreateJob(t, engine, client)

	if err := engine.FundJob(client, id); err != nil {
		t.Fatalf("fund: %v", err)
	}
	job, _, _ := state.JobGet(id)
	if job.Status != JobStatusFunded {
		t.Fatalf("status = %s, want funded", job.Status)
	}
	if job.FundedBalance.Cmp(job.TotalAmount) != 0 {
		t.Fatalf("funded balance %s != total %s", job.FundedBalance, job.TotalAmount)
	}
	if ledger.deposits != 1 {
		t.Fatalf("deposits = %d, want 1", ledger.deposits)
	}
	if emitter.types[len(emitter.types)-1] != EventTypeJobFunded {
		t.Fatalf("unexpected events %v", emitter.types)
	}
}

func TestFundJobTransferFailureLeavesJobCreated(t *testing.T) {
	engine, state, ledger, _ := newTestEngine(t)
	client := testAddr(0x01)
	id := mustCreateJob(t, engine, client)

	ledger.failNext = true
	if err := engine.FundJob(client, id); !errors.Is(err, ErrEscrowTransferFailed) {
		t.Fatalf("expected ErrEscrowTransferFailed, got %v", err)
	}
	job, _, _ := state.JobGet(id)
	if job.Status != JobStatusCreated {
		t.Fatalf("status = %s, want created after failed transfer", job.Status)
	}
	if job.FundedBalance.Sign() != 0 {
		t.Fatalf("funded balance mutated: %s", job.FundedBalance)
	}
	// Retry succeeds.
	if err := engine.FundJob(client, id); err != nil {
		t.Fatalf("retry fund: %v", err)
	}
}

func TestFundJobAuthorization(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	client := testAddr(0x01)
	id := mustCreateJob(t, engine, client)

	if err := engine.FundJob(testAddr(0x09), id); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := engine.FundJob(client, 999); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if err := engine.FundJob(client, id); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if err := engine.FundJob(client, id); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on double fund, got %v", err)
	}
}

func TestAuthenticatorRejectionSurfacesUnauthorized(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	client := testAddr(0x01)
	engine.SetAuthenticator(denyAuth{denied: map[[20]byte]bool{client: true}})

	if _, err := engine.CreateJob(client, "Job", []string{"a"}, []*big.Int{big.NewInt(1)}, []int64{baseTime + 1}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestSelectTalentTransitionsToInProgress(t *testing.T) {
	engine, state, _, emitter := newTestEngine(t)
	client := testAddr(0x01)
	talent := testAddr(0x02)
	id := mustCreateJob(t, engine, client)

	if err := engine.SelectTalent(client, id, talent); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState before funding, got %v", err)
	}
	if err := engine.FundJob(client, id); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if err := engine.SelectTalent(testAddr(0x09), id, talent); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := engine.SelectTalent(client, id, client); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for self-selection, got %v", err)
	}
	if err := engine.SelectTalent(client, id, talent); err != nil {
		t.Fatalf("select: %v", err)
	}
	job, _, _ := state.JobGet(id)
	if job.Status != JobStatusInProgress {
		t.Fatalf("status = %s, want in_progress", job.Status)
	}
	if job.Talent != talent {
		t.Fatalf("talent not bound")
	}
	if emitter.types[len(emitter.types)-1] != EventTypeTalentSelected {
		t.Fatalf("unexpected events %v", emitter.types)
	}
}

func TestSubmitMilestone(t *testing.T) {
	engine, state, _, emitter := newTestEngine(t)
	client := testAddr(0x01)
	talent := testAddr(0x02)
	id := mustStartJob(t, engine, client, talent)

	if err := engine.SubmitMilestone(client, id, 0, []byte("work")); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for client submit, got %v", err)
	}
	if err := engine.SubmitMilestone(talent, id, 9, []byte("work")); !errors.Is(err, ErrMilestoneNotFound) {
		t.Fatalf("expected ErrMilestoneNotFound, got %v", err)
	}
	if err := engine.SubmitMilestone(talent, id, 0, []byte("work")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	job, _, _ := state.JobGet(id)
	milestone, _ := job.Milestone(0)
	if milestone.Status != MilestoneSubmitted {
		t.Fatalf("milestone = %s, want submitted", milestone.Status)
	}
	if string(milestone.SubmissionData) != "work" {
		t.Fatalf("submission data not stored")
	}
	if milestone.SubmittedAt != baseTime {
		t.Fatalf("submittedAt = %d, want %d", milestone.SubmittedAt, baseTime)
	}
	if err := engine.SubmitMilestone(talent, id, 0, []byte("again")); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on resubmit, got %v", err)
	}
	if emitter.types[len(emitter.types)-1] != EventTypeMilestoneSubmitted {
		t.Fatalf("unexpected events %v", emitter.types)
	}
}

func TestSubmitMilestoneDeadlineMissRejectsTerminally(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	client := testAddr(0x01)
	talent := testAddr(0x02)
	id := mustStartJob(t, engine, client, talent)

	now := baseTime
	engine.SetNowFunc(func() int64 { return now })
	now = baseTime + 101 // past milestone 0's deadline
	if err := engine.SubmitMilestone(talent, id, 0, []byte("late")); !errors.Is(err, ErrDeadlineMissed) {
		t.Fatalf("expected ErrDeadlineMissed, got %v", err)
	}
	job, _, _ := state.JobGet(id)
	milestone, _ := job.Milestone(0)
	if milestone.Status != MilestoneRejected {
		t.Fatalf("milestone = %s, want rejected after deadline miss", milestone.Status)
	}
	// Terminal: no retry.
	if err := engine.SubmitMilestone(talent, id, 0, []byte("retry")); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on retry, got %v", err)
	}
	// Milestone 1 is still submittable before its own deadline.
	if err := engine.SubmitMilestone(talent, id, 1, []byte("ok")); err != nil {
		t.Fatalf("submit milestone 1: %v", err)
	}
}

func TestApproveMilestoneReleasesPayment(t *testing.T) {
	engine, state, ledger, emitter := newTestEngine(t)
	client := testAddr(0x01)
	talent := testAddr(0x02)
	id := mustStartJob(t, engine, client, talent)

	if err := engine.SubmitMilestone(talent, id, 0, []byte("work")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := engine.ApproveMilestone(talent, id, 0); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for talent approve, got %v", err)
	}
	if err := engine.ApproveMilestone(client, id, 1); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for pending milestone, got %v", err)
	}
	if err := engine.ApproveMilestone(client, id, 0); err != nil {
		t.Fatalf("approve: %v", err)
	}
	job, _, _ := state.JobGet(id)
	milestone, _ := job.Milestone(0)
	if milestone.Status != MilestonePaid {
		t.Fatalf("milestone = %s, want paid", milestone.Status)
	}
	if job.FundedBalance.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("funded balance = %s, want 50", job.FundedBalance)
	}
	if got := ledger.balanceOf(talent); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("talent received %s, want 100", got)
	}
	// Paid is terminal: approving again fails.
	if err := engine.ApproveMilestone(client, id, 0); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on double approve, got %v", err)
	}
	last := emitter.types[len(emitter.types)-2:]
	if last[0] != EventTypeMilestoneApproved || last[1] != EventTypeMilestonePaid {
		t.Fatalf("unexpected events %v", emitter.types)
	}
}

func TestApproveMilestoneTransferFailureIsRetryable(t *testing.T) {
	engine, state, ledger, _ := newTestEngine(t)
	client := testAddr(0x01)
	talent := testAddr(0x02)
	id := mustStartJob(t, engine, client, talent)
	if err := engine.SubmitMilestone(talent, id, 0, []byte("work")); err != nil {
		t.Fatalf("submit: %v", err)
	}

	ledger.failNext = true
	if err := engine.ApproveMilestone(client, id, 0); !errors.Is(err, ErrEscrowTransferFailed) {
		t.Fatalf("expected ErrEscrowTransferFailed, got %v", err)
	}
	job, _, _ := state.JobGet(id)
	milestone, _ := job.Milestone(0)
	if milestone.Status != MilestoneSubmitted {
		t.Fatalf("milestone = %s, want submitted after failed transfer", milestone.Status)
	}
	if job.FundedBalance.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("funded balance mutated: %s", job.FundedBalance)
	}
	if err := engine.ApproveMilestone(client, id, 0); err != nil {
		t.Fatalf("retry approve: %v", err)
	}
}

func TestApprovingEveryMilestoneCompletesJob(t *testing.T) {
	engine, state, ledger, _ := newTestEngine(t)
	client := testAddr(0x01)
	talent := testAddr(0x02)
	id := mustStartJob(t, engine, client, talent)

	for idx := uint32(0); idx < 2; idx++ {
		if err := engine.SubmitMilestone(talent, id, idx, []byte("work")); err != nil {
			t.Fatalf("submit %d: %v", idx, err)
		}
		if err := engine.ApproveMilestone(client, id, idx); err != nil {
			t.Fatalf("approve %d: %v", idx, err)
		}
	}
	job, _, _ := state.JobGet(id)
	if job.Status != JobStatusCompleted {
		t.Fatalf("status = %s, want completed", job.Status)
	}
	if job.FundedBalance.Sign() != 0 {
		t.Fatalf("funded balance = %s, want 0", job.FundedBalance)
	}
	if got := ledger.balanceOf(talent); got.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("talent received %s, want 150", got)
	}
}

func TestCancelJobByClientPaysTalentPenalty(t *testing.T) {
	engine, state, ledger, emitter := newTestEngine(t)
	client := testAddr(0x01)
	talent := testAddr(0x02)
	id := mustStartJob(t, engine, client, talent)
	if err := engine.SubmitMilestone(talent, id, 0, []byte("work")); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := engine.CancelJob(client, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	job, _, _ := state.JobGet(id)
	if job.Status != JobStatusCancelled {
		t.Fatalf("status = %s, want cancelled", job.Status)
	}
	if job.FundedBalance.Sign() != 0 {
		t.Fatalf("funded balance = %s, want 0", job.FundedBalance)
	}
	// 10% of the 150 unpaid remainder compensates the talent.
	if got := ledger.balanceOf(talent); got.Cmp(big.NewInt(15)) != 0 {
		t.Fatalf("talent penalty = %s, want 15", got)
	}
	if got := ledger.balanceOf(client); got.Cmp(big.NewInt(135)) != 0 {
		t.Fatalf("client refund = %s, want 135", got)
	}
	if emitter.types[len(emitter.types)-1] != EventTypeJobCancelled {
		t.Fatalf("unexpected events %v", emitter.types)
	}
}

func TestCancelJobTransferFailureIsRetryable(t *testing.T) {
	engine, state, ledger, _ := newTestEngine(t)
	client := testAddr(0x01)
	talent := testAddr(0x02)
	id := mustStartJob(t, engine, client, talent)

	ledger.failNext = true
	if err := engine.CancelJob(client, id); !errors.Is(err, ErrEscrowTransferFailed) {
		t.Fatalf("expected ErrEscrowTransferFailed, got %v", err)
	}
	// A failed settlement pays nobody and mutates nothing.
	job, _, _ := state.JobGet(id)
	if job.Status != JobStatusInProgress {
		t.Fatalf("status = %s, want in_progress after failed cancel", job.Status)
	}
	if job.FundedBalance.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("funded balance mutated: %s", job.FundedBalance)
	}
	if got := ledger.balanceOf(talent); got.Sign() != 0 {
		t.Fatalf("talent received %s after failed cancel, want 0", got)
	}
	// The retry settles both legs exactly once.
	if err := engine.CancelJob(client, id); err != nil {
		t.Fatalf("retry cancel: %v", err)
	}
	if got := ledger.balanceOf(talent); got.Cmp(big.NewInt(15)) != 0 {
		t.Fatalf("talent penalty = %s, want 15", got)
	}
	if got := ledger.balanceOf(client); got.Cmp(big.NewInt(135)) != 0 {
		t.Fatalf("client refund = %s, want 135", got)
	}
	if ledger.releases != 1 {
		t.Fatalf("releases = %d, want one batched settlement", ledger.releases)
	}
}

func TestCancelJobByTalentForfeitsToClient(t *testing.T) {
	engine, _, ledger, _ := newTestEngine(t)
	client := testAddr(0x01)
	talent := testAddr(0x02)
	id := mustStartJob(t, engine, client, talent)

	if err := engine.CancelJob(talent, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := ledger.balanceOf(client); got.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("client refund = %s, want 150", got)
	}
	if got := ledger.balanceOf(talent); got.Sign() != 0 {
		t.Fatalf("talent received %s, want 0", got)
	}
}

func TestCancelJobBeforeTalentRefundsInFull(t *testing.T) {
	engine, _, ledger, _ := newTestEngine(t)
	client := testAddr(0x01)
	id := mustCreateJob(t, engine, client)
	if err := engine.FundJob(client, id); err != nil {
		t.Fatalf("fund: %v", err)
	}

	if err := engine.CancelJob(client, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := ledger.balanceOf(client); got.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("client refund = %s, want 150", got)
	}
}

func TestCancelJobStateChecks(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	client := testAddr(0x01)
	talent := testAddr(0x02)

	created := mustCreateJob(t, engine, client)
	if err := engine.CancelJob(client, created); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for unfunded job, got %v", err)
	}

	id := mustStartJob(t, engine, client, talent)
	if err := engine.CancelJob(testAddr(0x09), id); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := engine.CancelJob(client, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := engine.CancelJob(client, id); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for terminal job, got %v", err)
	}
}

func TestReentrantCallOnSameJobFails(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	client := testAddr(0x01)
	id := mustCreateJob(t, engine, client)
	other := mustCreateJob(t, engine, client)

	release, ok := engine.Locks().Acquire(id)
	if !ok {
		t.Fatal("acquire failed")
	}
	defer release()

	if err := engine.FundJob(client, id); !errors.Is(err, ErrReentrancyDetected) {
		t.Fatalf("expected ErrReentrancyDetected, got %v", err)
	}
	// A different job proceeds while the first lock is held.
	if err := engine.FundJob(client, other); err != nil {
		t.Fatalf("fund other job: %v", err)
	}
}

func TestTotalAmountInvariantHolds(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	client := testAddr(0x01)
	talent := testAddr(0x02)
	id := mustStartJob(t, engine, client, talent)

	check := func(stage string) {
		job, _, _ := state.JobGet(id)
		sum := big.NewInt(0)
		for _, m := range job.Milestones {
			sum.Add(sum, m.Amount)
		}
		if job.TotalAmount.Cmp(sum) != 0 {
			t.Fatalf("%s: total %s != milestone sum %s", stage, job.TotalAmount, sum)
		}
	}
	check("started")
	if err := engine.SubmitMilestone(talent, id, 0, []byte("work")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	check("submitted")
	if err := engine.ApproveMilestone(client, id, 0); err != nil {
		t.Fatalf("approve: %v", err)
	}
	check("approved")
	if err := engine.CancelJob(client, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	check("cancelled")
}
