package arbitration

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"jobmarket/core/events"
	"jobmarket/core/types"
	"jobmarket/native/common"
	"jobmarket/native/escrow"
	"jobmarket/native/jobs"
)

const feeDenominator = 10_000

var (
	errNilState  = errors.New("arbitration engine: state not configured")
	errNilLedger = errors.New("arbitration engine: escrow ledger not configured")
)

type engineState interface {
	JobPut(*jobs.Job) error
	JobGet(id uint64) (*jobs.Job, bool, error)
	DisputeNextID() (uint64, error)
	DisputePut(*Dispute) error
	DisputeGet(id uint64) (*Dispute, bool, error)
	DisputeHeadGet(jobID uint64, milestoneIdx *uint32) (uint64, bool, error)
	DisputeHeadSet(jobID uint64, milestoneIdx *uint32, disputeID uint64) error
	ArbitratorPut(*Arbitrator) error
	ArbitratorGet(addr [20]byte) (*Arbitrator, bool, error)
	ArbitratorList() ([]*Arbitrator, error)
}

type arbitrationEvent struct {
	evt *types.Event
}

func (e arbitrationEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e arbitrationEvent) Event() *types.Event { return e.evt }

// Engine raises, tracks and resolves disputes bound to jobs and milestones,
// settling the disputed escrow according to the arbitrator's decision.
type Engine struct {
	state             engineState
	ledger            jobs.Ledger
	auth              jobs.Authenticator
	locks             *common.JobLocks
	emitter           events.Emitter
	nowFn             func() int64
	arbitrationFeeBps uint32
}

// NewEngine creates a dispute engine with a no-op emitter. The lock table
// must be shared with the job engine via SetLocks so mutations of the same
// job are serialized across both engines.
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
func (e *Engine) SetLedger(ledger jobs.Ledger) { e.ledger = ledger }

// SetAuthenticator configures the identity collaborator.
func (e *Engine) SetAuthenticator(auth jobs.Authenticator) { e.auth = auth }

// SetLocks shares the per-job lock table with the job engine.
func (e *Engine) SetLocks(locks *common.JobLocks) {
	if locks != nil {
		e.locks = locks
	}
}

// SetArbitrationFeeBps configures the fee withheld from disputed amounts and
// routed to the resolving arbitrator, in basis points.
func (e *Engine) SetArbitrationFeeBps(bps uint32) { e.arbitrationFeeBps = bps }

// SetNowFunc overrides the time source. Primarily intended for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter. Passing nil resets to no-op.
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
	e.emitter.Emit(arbitrationEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) guard(caller [20]byte, jobID uint64) (func(), error) {
	if e.auth != nil && !e.auth.Authenticate(caller) {
		return nil, fmt.Errorf("%w: identity verification failed", jobs.ErrUnauthorized)
	}
	release, ok := e.locks.Acquire(jobID)
	if !ok {
		return nil, fmt.Errorf("%w: job %d", jobs.ErrReentrancyDetected, jobID)
	}
	return release, nil
}

func (e *Engine) loadJob(id uint64) (*jobs.Job, error) {
	job, ok, err := e.state.JobGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: id %d", jobs.ErrJobNotFound, id)
	}
	return job, nil
}

// RegisterArbitrator adds an account to the arbitrator registry. Registration
// is a privileged operation; the transport layer gates it behind operator
// auth. Re-registration fails.
func (e *Engine) RegisterArbitrator(addr [20]byte, specialization string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if addr == ([20]byte{}) {
		return fmt.Errorf("%w: arbitrator address required", jobs.ErrInvalidInput)
	}
	if _, exists, err := e.state.ArbitratorGet(addr); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("%w: arbitrator already registered", jobs.ErrInvalidState)
	}
	entry := &Arbitrator{
		Address:        addr,
		Specialization: specialization,
		RegisteredAt:   e.now(),
	}
	if err := e.state.ArbitratorPut(entry); err != nil {
		return err
	}
	e.emit(NewArbitratorRegisteredEvent(entry))
	return nil
}

// Arbitrators lists the registry.
func (e *Engine) Arbitrators() ([]*Arbitrator, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.ArbitratorList()
}

// GetDispute returns a copy of the stored dispute.
func (e *Engine) GetDispute(id uint64) (*Dispute, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	dispute, ok, err := e.state.DisputeGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: id %d", jobs.ErrDisputeNotFound, id)
	}
	return dispute.Clone(), nil
}

// RaiseDispute opens an arbitration case against a milestone or a whole job.
// The milestone target transitions to Disputed, freezing its approval path
// until resolution.
func (e *Engine) RaiseDispute(caller [20]byte, jobID uint64, milestoneIdx *uint32, arbitrator [20]byte) (uint64, error) {
	release, err := e.guard(caller, jobID)
	if err != nil {
		return 0, err
	}
	defer release()
	if e.state == nil {
		return 0, errNilState
	}
	job, err := e.loadJob(jobID)
	if err != nil {
		return 0, err
	}
	isClient := job.Client == caller
	isTalent := job.HasTalent() && job.Talent == caller
	if !isClient && !isTalent {
		return 0, fmt.Errorf("%w: only the client or talent may raise a dispute for job %d", jobs.ErrUnauthorized, jobID)
	}
	if job.Status != jobs.JobStatusInProgress {
		return 0, fmt.Errorf("%w: cannot dispute job in status %s", jobs.ErrInvalidState, job.Status)
	}
	if _, registered, err := e.state.ArbitratorGet(arbitrator); err != nil {
		return 0, err
	} else if !registered {
		return 0, fmt.Errorf("%w: %x", jobs.ErrNotArbitrator, arbitrator)
	}
	var milestone *jobs.Milestone
	if milestoneIdx != nil {
		var ok bool
		milestone, ok = job.Milestone(*milestoneIdx)
		if !ok {
			return 0, fmt.Errorf("%w: job %d index %d", jobs.ErrMilestoneNotFound, jobID, *milestoneIdx)
		}
		switch milestone.Status {
		case jobs.MilestoneSubmitted, jobs.MilestoneApproved:
		default:
			return 0, fmt.Errorf("%w: milestone %d is %s", jobs.ErrInvalidState, *milestoneIdx, milestone.Status)
		}
	}
	if headID, ok, err := e.state.DisputeHeadGet(jobID, milestoneIdx); err != nil {
		return 0, err
	} else if ok {
		head, found, err := e.state.DisputeGet(headID)
		if err != nil {
			return 0, err
		}
		if found && head.Status == DisputeRaised {
			return 0, fmt.Errorf("%w: dispute %d already raised", jobs.ErrNoOpenDisputeAllowed, headID)
		}
	}
	id, err := e.state.DisputeNextID()
	if err != nil {
		return 0, err
	}
	dispute := &Dispute{
		ID:         id,
		JobID:      jobID,
		Arbitrator: arbitrator,
		RaisedBy:   caller,
		Status:     DisputeRaised,
		RaisedAt:   e.now(),
	}
	if milestoneIdx != nil {
		idx := *milestoneIdx
		dispute.MilestoneIdx = &idx
	}
	if err := e.state.DisputePut(dispute); err != nil {
		return 0, err
	}
	if err := e.state.DisputeHeadSet(jobID, milestoneIdx, id); err != nil {
		return 0, err
	}
	if milestone != nil {
		milestone.Status = jobs.MilestoneDisputed
		job.UpdatedAt = e.now()
		if err := e.state.JobPut(job); err != nil {
			return 0, err
		}
	}
	e.emit(NewDisputeRaisedEvent(dispute))
	return id, nil
}

// ResolveDispute settles an open dispute. The arbitration fee is always
// deducted from the disputed amount and routed to the arbitrator; the two
// released fractions plus the fee equal the disputed amount exactly.
func (e *Engine) ResolveDispute(caller [20]byte, jobID uint64, milestoneIdx *uint32, decision Decision) error {
	release, err := e.guard(caller, jobID)
	if err != nil {
		return err
	}
	defer release()
	if e.state == nil {
		return errNilState
	}
	if e.ledger == nil {
		return errNilLedger
	}
	if err := decision.Validate(); err != nil {
		return err
	}
	headID, ok, err := e.state.DisputeHeadGet(jobID, milestoneIdx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: job %d", jobs.ErrDisputeNotFound, jobID)
	}
	dispute, found, err := e.state.DisputeGet(headID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: id %d", jobs.ErrDisputeNotFound, headID)
	}
	if dispute.Status == DisputeResolved {
		return fmt.Errorf("%w: dispute %d", jobs.ErrAlreadyResolved, headID)
	}
	if dispute.Arbitrator != caller {
		return fmt.Errorf("%w: dispute %d names a different arbitrator", jobs.ErrNotArbitrator, headID)
	}
	job, err := e.loadJob(jobID)
	if err != nil {
		return err
	}
	// A cancelled or completed job has already settled its escrow; the
	// dispute can no longer move funds.
	if job.Status.Terminal() {
		return fmt.Errorf("%w: job %d is %s", jobs.ErrInvalidState, jobID, job.Status)
	}
	if dispute.MilestoneIdx != nil {
		if err := e.settleMilestone(job, *dispute.MilestoneIdx, dispute.Arbitrator, decision); err != nil {
			return err
		}
	} else {
		if err := e.settleJob(job, dispute.Arbitrator, decision); err != nil {
			return err
		}
	}
	if job.AllMilestonesPaid() {
		job.Status = jobs.JobStatusCompleted
	}
	now := e.now()
	job.UpdatedAt = now
	if err := e.state.JobPut(job); err != nil {
		return err
	}
	dispute.Status = DisputeResolved
	recorded := decision
	dispute.Decision = &recorded
	dispute.ResolvedAt = now
	if err := e.state.DisputePut(dispute); err != nil {
		return err
	}
	if entry, exists, err := e.state.ArbitratorGet(caller); err == nil && exists {
		entry.CasesHandled++
		if err := e.state.ArbitratorPut(entry); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}
	e.emit(NewDisputeResolvedEvent(dispute))
	return nil
}

// settleMilestone moves a single disputed milestone's funds per the decision.
func (e *Engine) settleMilestone(job *jobs.Job, idx uint32, arbitrator [20]byte, decision Decision) error {
	milestone, ok := job.Milestone(idx)
	if !ok {
		return fmt.Errorf("%w: job %d index %d", jobs.ErrMilestoneNotFound, job.ID, idx)
	}
	if milestone.Status != jobs.MilestoneDisputed {
		return fmt.Errorf("%w: milestone %d is %s", jobs.ErrInvalidState, idx, milestone.Status)
	}
	talentShare, clientShare, fee := splitAmount(milestone.Amount, decision, e.arbitrationFeeBps)
	if err := e.payout(job, arbitrator, talentShare, clientShare, fee); err != nil {
		return err
	}
	if decision.Outcome == OutcomeReject {
		milestone.Status = jobs.MilestoneRejected
	} else {
		milestone.Status = jobs.MilestonePaid
	}
	job.FundedBalance = new(big.Int).Sub(job.FundedBalance, milestone.Amount)
	return nil
}

// settleJob applies the decision to every submitted milestone, charging the
// fee once on the affected total.
func (e *Engine) settleJob(job *jobs.Job, arbitrator [20]byte, decision Decision) error {
	total := big.NewInt(0)
	affected := make([]*jobs.Milestone, 0, len(job.Milestones))
	for _, m := range job.Milestones {
		if m == nil || m.Status != jobs.MilestoneSubmitted {
			continue
		}
		affected = append(affected, m)
		total.Add(total, m.Amount)
	}
	if len(affected) == 0 {
		return nil
	}
	talentShare, clientShare, fee := splitAmount(total, decision, e.arbitrationFeeBps)
	if err := e.payout(job, arbitrator, talentShare, clientShare, fee); err != nil {
		return err
	}
	for _, m := range affected {
		if decision.Outcome == OutcomeReject {
			m.Status = jobs.MilestoneRejected
		} else {
			m.Status = jobs.MilestonePaid
		}
	}
	job.FundedBalance = new(big.Int).Sub(job.FundedBalance, total)
	return nil
}

// payout settles the three decision legs in one batch so a failure leaves no
// partial payment behind.
func (e *Engine) payout(job *jobs.Job, arbitrator [20]byte, talentShare, clientShare, fee *big.Int) error {
	legs := make([]escrow.Leg, 0, 3)
	if talentShare.Sign() > 0 {
		legs = append(legs, escrow.Leg{To: job.Talent, Amount: talentShare})
	}
	if clientShare.Sign() > 0 {
		legs = append(legs, escrow.Leg{To: job.Client, Amount: clientShare})
	}
	if fee.Sign() > 0 {
		legs = append(legs, escrow.Leg{To: arbitrator, Amount: fee})
	}
	if len(legs) == 0 {
		return nil
	}
	if err := e.ledger.ReleaseMany(job.ID, legs); err != nil {
		return fmt.Errorf("%w: %v", jobs.ErrEscrowTransferFailed, err)
	}
	return nil
}

// splitAmount divides the disputed amount into talent, client and fee legs.
// The three legs always sum to the amount exactly; rounding remainders land
// on the client leg for approve/reject and on the client side of a split.
func splitAmount(amount *big.Int, decision Decision, feeBps uint32) (talent, client, fee *big.Int) {
	total := new(big.Int)
	if amount != nil {
		total.Set(amount)
	}
	fee = new(big.Int).Mul(total, new(big.Int).SetUint64(uint64(feeBps)))
	fee.Div(fee, big.NewInt(feeDenominator))
	remainder := new(big.Int).Sub(total, fee)
	switch decision.Outcome {
	case OutcomeApprove:
		return remainder, big.NewInt(0), fee
	case OutcomeReject:
		return big.NewInt(0), remainder, fee
	case OutcomeSplit:
		talent = new(big.Int).Mul(remainder, new(big.Int).SetUint64(uint64(decision.TalentBps)))
		talent.Div(talent, big.NewInt(feeDenominator))
		client = new(big.Int).Sub(remainder, talent)
		return talent, client, fee
	default:
		return big.NewInt(0), remainder, fee
	}
}
