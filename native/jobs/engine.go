package jobs

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"jobmarket/core/events"
	"jobmarket/core/types"
	"jobmarket/native/common"
	"jobmarket/native/escrow"
)

const feeDenominator = 10_000

var (
	errNilState  = errors.New("jobs engine: state not configured")
	errNilLedger = errors.New("jobs engine: escrow ledger not configured")
)

type engineState interface {
	JobPut(*Job) error
	JobGet(id uint64) (*Job, bool, error)
	JobNextID() (uint64, error)
}

// Ledger is the escrow collaborator moving funds between the client, the
// module vault and the talent. Failures leave balances untouched.
type Ledger interface {
	Deposit(jobID uint64, from [20]byte, amount *big.Int) error
	Release(jobID uint64, to [20]byte, amount *big.Int) error
	ReleaseMany(jobID uint64, legs []escrow.Leg) error
}

// Authenticator proves a caller controls the claimed account. The host
// environment supplies the implementation; the engine only consumes the
// verdict.
type Authenticator interface {
	Authenticate(addr [20]byte) bool
}

type jobEvent struct {
	evt *types.Event
}

func (e jobEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e jobEvent) Event() *types.Event { return e.evt }

// Engine wires the job and milestone state machines with the escrow ledger,
// persistent state and event emitter.
type Engine struct {
	state              engineState
	ledger             Ledger
	auth               Authenticator
	locks              *common.JobLocks
	emitter            events.Emitter
	nowFn              func() int64
	cancellationFeeBps uint32
}

// NewEngine creates a job engine with a no-op emitter and an allow-all
// authenticator. Callers override collaborators via the setters.
func NewEngine() *Engine {
	return &Engine{
		locks:   common.NewJobLocks(),
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger configures the escrow ledger collaborator.
func (e *Engine) SetLedger(ledger Ledger) { e.ledger = ledger }

// SetAuthenticator configures the identity collaborator. A nil authenticator
// accepts every caller.
func (e *Engine) SetAuthenticator(auth Authenticator) { e.auth = auth }

// SetLocks overrides the per-job lock table. Engines sharing jobs with the
// dispute engine must share one table so cross-engine reentrancy is caught.
func (e *Engine) SetLocks(locks *common.JobLocks) {
	if locks != nil {
		e.locks = locks
	}
}

// Locks exposes the lock table for collaborators guarding the same jobs.
func (e *Engine) Locks() *common.JobLocks { return e.locks }

// SetCancellationFeeBps configures the penalty charged against a cancelling
// party, in basis points of the unpaid remainder.
func (e *Engine) SetCancellationFeeBps(bps uint32) { e.cancellationFeeBps = bps }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(jobEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) authenticate(caller [20]byte) error {
	if e.auth != nil && !e.auth.Authenticate(caller) {
		return fmt.Errorf("%w: identity verification failed", ErrUnauthorized)
	}
	return nil
}

// guard runs the access-control checks shared by every mutating entry point:
// identity verification followed by the per-job reentrancy lock. The returned
// release must run on every exit path.
func (e *Engine) guard(caller [20]byte, jobID uint64) (func(), error) {
	if err := e.authenticate(caller); err != nil {
		return nil, err
	}
	release, ok := e.locks.Acquire(jobID)
	if !ok {
		return nil, fmt.Errorf("%w: job %d", ErrReentrancyDetected, jobID)
	}
	return release, nil
}

func (e *Engine) loadJob(id uint64) (*Job, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	job, ok, err := e.state.JobGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrJobNotFound, id)
	}
	return job, nil
}

func (e *Engine) storeJob(job *Job) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	sanitized, err := SanitizeJob(job)
	if err != nil {
		return err
	}
	return e.state.JobPut(sanitized)
}

// CreateJob validates the parallel milestone arrays and persists a new job in
// the Created state. Deadlines must be non-decreasing and at or after the
// current time.
func (e *Engine) CreateJob(client [20]byte, title string, descriptions []string, amounts []*big.Int, deadlines []int64) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	if err := e.authenticate(client); err != nil {
		return 0, err
	}
	if len(descriptions) == 0 || len(descriptions) != len(amounts) || len(amounts) != len(deadlines) {
		return 0, fmt.Errorf("%w: milestone arrays must be non-empty and equal length", ErrInvalidInput)
	}
	now := e.now()
	milestones := make([]*Milestone, len(descriptions))
	total := big.NewInt(0)
	var prevDeadline int64
	for i := range descriptions {
		if deadlines[i] < now {
			return 0, fmt.Errorf("%w: milestone %d deadline before current time", ErrInvalidInput, i)
		}
		if deadlines[i] < prevDeadline {
			return 0, fmt.Errorf("%w: milestone %d deadline precedes milestone %d", ErrInvalidInput, i, i-1)
		}
		prevDeadline = deadlines[i]
		m := &Milestone{
			Index:       uint32(i),
			Description: descriptions[i],
			Amount:      cloneAmount(amounts[i]),
			Deadline:    deadlines[i],
			Status:      MilestonePending,
		}
		if err := m.Validate(); err != nil {
			return 0, err
		}
		milestones[i] = m
		total.Add(total, m.Amount)
	}
	id, err := e.state.JobNextID()
	if err != nil {
		return 0, err
	}
	job := &Job{
		ID:            id,
		Client:        client,
		Title:         title,
		Milestones:    milestones,
		Status:        JobStatusCreated,
		TotalAmount:   total,
		FundedBalance: big.NewInt(0),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.storeJob(job); err != nil {
		return 0, err
	}
	e.emit(NewCreatedEvent(job))
	return id, nil
}

// FundJob moves the job's total amount from the client into escrow. The job
// stays Created when the transfer fails; nothing is partially applied.
func (e *Engine) FundJob(client [20]byte, jobID uint64) error {
	release, err := e.guard(client, jobID)
	if err != nil {
		return err
	}
	defer release()
	if e.ledger == nil {
		return errNilLedger
	}
	job, err := e.loadJob(jobID)
	if err != nil {
		return err
	}
	if job.Client != client {
		return fmt.Errorf("%w: only the client may fund job %d", ErrUnauthorized, jobID)
	}
	if job.Status != JobStatusCreated {
		return fmt.Errorf("%w: cannot fund job in status %s", ErrInvalidState, job.Status)
	}
	if err := e.ledger.Deposit(jobID, client, job.TotalAmount); err != nil {
		return fmt.Errorf("%w: %v", ErrEscrowTransferFailed, err)
	}
	job.FundedBalance = new(big.Int).Set(job.TotalAmount)
	job.Status = JobStatusFunded
	job.UpdatedAt = e.now()
	if err := e.storeJob(job); err != nil {
		return err
	}
	e.emit(NewFundedEvent(job))
	return nil
}

// SelectTalent binds the talent to a funded job. Selection and work start are
// the same transition, so the job lands directly in InProgress.
func (e *Engine) SelectTalent(client [20]byte, jobID uint64, talent [20]byte) error {
	release, err := e.guard(client, jobID)
	if err != nil {
		return err
	}
	defer release()
	job, err := e.loadJob(jobID)
	if err != nil {
		return err
	}
	if job.Client != client {
		return fmt.Errorf("%w: only the client may select talent for job %d", ErrUnauthorized, jobID)
	}
	if job.Status != JobStatusFunded {
		return fmt.Errorf("%w: cannot select talent in status %s", ErrInvalidState, job.Status)
	}
	if talent == ([20]byte{}) || talent == job.Client {
		return fmt.Errorf("%w: talent address invalid", ErrInvalidInput)
	}
	job.Talent = talent
	job.Status = JobStatusInProgress
	job.UpdatedAt = e.now()
	if err := e.storeJob(job); err != nil {
		return err
	}
	e.emit(NewTalentSelectedEvent(job))
	return nil
}

// SubmitMilestone records the talent's work delivery. Submitting past the
// deadline terminally rejects the milestone and reports DeadlineMissed; the
// rejection is the one state change that survives a failed operation.
func (e *Engine) SubmitMilestone(talent [20]byte, jobID uint64, idx uint32, data []byte) error {
	release, err := e.guard(talent, jobID)
	if err != nil {
		return err
	}
	defer release()
	job, err := e.loadJob(jobID)
	if err != nil {
		return err
	}
	if job.Status != JobStatusInProgress {
		return fmt.Errorf("%w: cannot submit in status %s", ErrInvalidState, job.Status)
	}
	if job.Talent != talent {
		return fmt.Errorf("%w: only the talent may submit work for job %d", ErrUnauthorized, jobID)
	}
	milestone, ok := job.Milestone(idx)
	if !ok {
		return fmt.Errorf("%w: job %d index %d", ErrMilestoneNotFound, jobID, idx)
	}
	if milestone.Status != MilestonePending {
		return fmt.Errorf("%w: milestone %d is %s", ErrInvalidState, idx, milestone.Status)
	}
	now := e.now()
	if now > milestone.Deadline {
		milestone.Status = MilestoneRejected
		job.UpdatedAt = now
		if err := e.storeJob(job); err != nil {
			return err
		}
		return fmt.Errorf("%w: milestone %d deadline %d", ErrDeadlineMissed, idx, milestone.Deadline)
	}
	milestone.Status = MilestoneSubmitted
	milestone.SubmissionData = append([]byte(nil), data...)
	milestone.SubmittedAt = now
	job.UpdatedAt = now
	if err := e.storeJob(job); err != nil {
		return err
	}
	e.emit(NewMilestoneSubmittedEvent(job, idx))
	return nil
}

// ApproveMilestone releases exactly the milestone's amount from escrow to the
// talent. A transfer failure leaves the milestone Submitted and is retryable.
func (e *Engine) ApproveMilestone(client [20]byte, jobID uint64, idx uint32) error {
	release, err := e.guard(client, jobID)
	if err != nil {
		return err
	}
	defer release()
	if e.ledger == nil {
		return errNilLedger
	}
	job, err := e.loadJob(jobID)
	if err != nil {
		return err
	}
	if job.Client != client {
		return fmt.Errorf("%w: only the client may approve milestones for job %d", ErrUnauthorized, jobID)
	}
	if job.Status != JobStatusInProgress {
		return fmt.Errorf("%w: cannot approve in status %s", ErrInvalidState, job.Status)
	}
	milestone, ok := job.Milestone(idx)
	if !ok {
		return fmt.Errorf("%w: job %d index %d", ErrMilestoneNotFound, jobID, idx)
	}
	if milestone.Status != MilestoneSubmitted {
		return fmt.Errorf("%w: milestone %d is %s", ErrInvalidState, idx, milestone.Status)
	}
	if err := e.ledger.Release(jobID, job.Talent, milestone.Amount); err != nil {
		return fmt.Errorf("%w: %v", ErrEscrowTransferFailed, err)
	}
	milestone.Status = MilestonePaid
	job.FundedBalance = new(big.Int).Sub(job.FundedBalance, milestone.Amount)
	if job.AllMilestonesPaid() {
		job.Status = JobStatusCompleted
	}
	job.UpdatedAt = e.now()
	if err := e.storeJob(job); err != nil {
		return err
	}
	e.emit(NewMilestoneApprovedEvent(job, idx))
	e.emit(NewMilestonePaidEvent(job, idx, milestone.Amount))
	return nil
}

// CancelJob terminates a non-terminal job and settles the remaining escrow.
// The penalty is charged against the cancelling party: a cancelling client
// compensates the talent, a cancelling talent forfeits the unpaid remainder
// back to the client.
func (e *Engine) CancelJob(caller [20]byte, jobID uint64) error {
	release, err := e.guard(caller, jobID)
	if err != nil {
		return err
	}
	defer release()
	if e.ledger == nil {
		return errNilLedger
	}
	job, err := e.loadJob(jobID)
	if err != nil {
		return err
	}
	isClient := job.Client == caller
	isTalent := job.HasTalent() && job.Talent == caller
	if !isClient && !isTalent {
		return fmt.Errorf("%w: only the client or talent may cancel job %d", ErrUnauthorized, jobID)
	}
	switch job.Status {
	case JobStatusFunded, JobStatusTalentSelected, JobStatusInProgress:
	default:
		return fmt.Errorf("%w: cannot cancel job in status %s", ErrInvalidState, job.Status)
	}
	remaining := cloneAmount(job.FundedBalance)
	refund := new(big.Int).Set(remaining)
	penalty := big.NewInt(0)
	if isClient && job.HasTalent() {
		penalty = feeAmount(remaining, e.cancellationFeeBps)
		refund.Sub(refund, penalty)
	}
	legs := make([]escrow.Leg, 0, 2)
	if isClient {
		if penalty.Sign() > 0 {
			legs = append(legs, escrow.Leg{To: job.Talent, Amount: penalty})
		}
		if refund.Sign() > 0 {
			legs = append(legs, escrow.Leg{To: job.Client, Amount: refund})
		}
	} else {
		// Talent cancellation forfeits every unpaid amount to the client.
		if remaining.Sign() > 0 {
			legs = append(legs, escrow.Leg{To: job.Client, Amount: remaining})
		}
		refund = remaining
		penalty = big.NewInt(0)
	}
	// Both legs settle in one batch so a failure leaves nothing paid out and
	// the cancellation stays retryable.
	if len(legs) > 0 {
		if err := e.ledger.ReleaseMany(jobID, legs); err != nil {
			return fmt.Errorf("%w: %v", ErrEscrowTransferFailed, err)
		}
	}
	job.FundedBalance = big.NewInt(0)
	job.Status = JobStatusCancelled
	job.UpdatedAt = e.now()
	if err := e.storeJob(job); err != nil {
		return err
	}
	e.emit(NewCancelledEvent(job, caller, refund, penalty))
	return nil
}

// GetJob returns a copy of the stored job.
func (e *Engine) GetJob(jobID uint64) (*Job, error) {
	job, err := e.loadJob(jobID)
	if err != nil {
		return nil, err
	}
	return job.Clone(), nil
}

func cloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// feeAmount computes bps of amount, rounding down.
func feeAmount(amount *big.Int, bps uint32) *big.Int {
	if amount == nil || amount.Sign() <= 0 || bps == 0 {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(amount, new(big.Int).SetUint64(uint64(bps)))
	return fee.Div(fee, big.NewInt(feeDenominator))
}
