package arbitration

import (
	"fmt"
	"strings"

	"jobmarket/native/jobs"
)

// DisputeStatus represents the lifecycle of a dispute.
type DisputeStatus uint8

const (
	// DisputeRaised marks disputes awaiting an arbitrator decision.
	DisputeRaised DisputeStatus = iota
	// DisputeResolved marks settled disputes. Resolution is final.
	DisputeResolved
)

// Valid reports whether the status value is within the supported range.
func (s DisputeStatus) Valid() bool {
	return s == DisputeRaised || s == DisputeResolved
}

func (s DisputeStatus) String() string {
	switch s {
	case DisputeRaised:
		return "raised"
	case DisputeResolved:
		return "resolved"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Outcome is the arbitrator's binding decision class.
type Outcome uint8

const (
	// OutcomeUnspecified prevents zero-value decisions from being persisted
	// unintentionally.
	OutcomeUnspecified Outcome = iota
	// OutcomeApprove releases the disputed amount to the talent, less the
	// arbitration fee.
	OutcomeApprove
	// OutcomeReject returns the disputed amount to the client, less the
	// arbitration fee.
	OutcomeReject
	// OutcomeSplit divides the disputed amount between both parties per the
	// decision's talent share, less the arbitration fee.
	OutcomeSplit
)

// Valid reports whether the outcome is a settled decision class.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeApprove, OutcomeReject, OutcomeSplit:
		return true
	default:
		return false
	}
}

func (o Outcome) String() string {
	switch o {
	case OutcomeApprove:
		return "approve"
	case OutcomeReject:
		return "reject"
	case OutcomeSplit:
		return "split"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(o))
	}
}

// ParseOutcome maps transport-level outcome strings onto the enum.
func ParseOutcome(raw string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "approve":
		return OutcomeApprove, nil
	case "reject":
		return OutcomeReject, nil
	case "split":
		return OutcomeSplit, nil
	default:
		return OutcomeUnspecified, fmt.Errorf("%w: unknown outcome %q", jobs.ErrInvalidInput, raw)
	}
}

// Decision is the payload recorded exactly once on resolution. TalentBps only
// applies to split outcomes and is the talent's share of the disputed amount
// after the arbitration fee, in basis points.
type Decision struct {
	Outcome   Outcome `json:"outcome"`
	TalentBps uint32  `json:"talentBps,omitempty"`
}

// Validate rejects malformed decisions before any funds move.
func (d Decision) Validate() error {
	if !d.Outcome.Valid() {
		return fmt.Errorf("%w: decision outcome required", jobs.ErrInvalidInput)
	}
	if d.Outcome == OutcomeSplit {
		if d.TalentBps > 10_000 {
			return fmt.Errorf("%w: talent share %d bps out of range", jobs.ErrInvalidInput, d.TalentBps)
		}
	} else if d.TalentBps != 0 {
		return fmt.Errorf("%w: talent share only valid for split decisions", jobs.ErrInvalidInput)
	}
	return nil
}

// Dispute binds an arbitration case to a job or a single milestone. A nil
// MilestoneIdx targets the whole job.
type Dispute struct {
	ID           uint64        `json:"id"`
	JobID        uint64        `json:"jobId"`
	MilestoneIdx *uint32       `json:"milestoneIdx,omitempty"`
	Arbitrator   [20]byte      `json:"arbitrator"`
	RaisedBy     [20]byte      `json:"raisedBy"`
	Status       DisputeStatus `json:"status"`
	Decision     *Decision     `json:"decision,omitempty"`
	RaisedAt     int64         `json:"raisedAt"`
	ResolvedAt   int64         `json:"resolvedAt,omitempty"`
}

// Clone returns a deep copy of the dispute.
func (d *Dispute) Clone() *Dispute {
	if d == nil {
		return nil
	}
	clone := *d
	if d.MilestoneIdx != nil {
		idx := *d.MilestoneIdx
		clone.MilestoneIdx = &idx
	}
	if d.Decision != nil {
		decision := *d.Decision
		clone.Decision = &decision
	}
	return &clone
}

// Validate checks structural invariants prior to persistence.
func (d *Dispute) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: dispute must not be nil", jobs.ErrInvalidInput)
	}
	if !d.Status.Valid() {
		return fmt.Errorf("%w: dispute status out of range", jobs.ErrInvalidInput)
	}
	if d.Arbitrator == ([20]byte{}) {
		return fmt.Errorf("%w: arbitrator required", jobs.ErrInvalidInput)
	}
	if d.Status == DisputeResolved {
		if d.Decision == nil {
			return fmt.Errorf("%w: resolved dispute requires a decision", jobs.ErrInvalidInput)
		}
		if err := d.Decision.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Arbitrator is a registry entry for an account empowered to make binding
// dispute decisions.
type Arbitrator struct {
	Address        [20]byte `json:"address"`
	Specialization string   `json:"specialization,omitempty"`
	CasesHandled   uint64   `json:"casesHandled"`
	RegisteredAt   int64    `json:"registeredAt"`
}

// Clone returns a copy safe for modification.
func (a *Arbitrator) Clone() *Arbitrator {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}
