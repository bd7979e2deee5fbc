package jobs

import (
	"fmt"
	"math/big"
	"strings"
)

// JobStatus represents the lifecycle of a job agreement.
type JobStatus uint8

const (
	// JobStatusCreated marks jobs that have been defined but not escrowed yet.
	JobStatusCreated JobStatus = iota
	// JobStatusFunded marks jobs whose full budget is locked in escrow.
	JobStatusFunded
	// JobStatusTalentSelected marks the instant a talent is bound. Selection
	// and work start are the same transition, so persisted jobs never rest in
	// this state; it exists to keep the transition table exhaustive.
	JobStatusTalentSelected
	// JobStatusInProgress marks jobs with an active talent working milestones.
	JobStatusInProgress
	// JobStatusCompleted marks jobs whose milestones have all been paid.
	// Terminal.
	JobStatusCompleted
	// JobStatusCancelled marks jobs terminated before completion. Cancelled
	// jobs retain their milestone history for auditability. Terminal.
	JobStatusCancelled
)

// Valid reports whether the status value is within the supported range.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusCreated, JobStatusFunded, JobStatusTalentSelected,
		JobStatusInProgress, JobStatusCompleted, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether the job accepts no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusCancelled
}

func (s JobStatus) String() string {
	switch s {
	case JobStatusCreated:
		return "created"
	case JobStatusFunded:
		return "funded"
	case JobStatusTalentSelected:
		return "talent_selected"
	case JobStatusInProgress:
		return "in_progress"
	case JobStatusCompleted:
		return "completed"
	case JobStatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// MilestoneStatus represents the state of an individual milestone.
type MilestoneStatus uint8

const (
	// MilestonePending indicates work has not been submitted yet.
	MilestonePending MilestoneStatus = iota
	// MilestoneSubmitted indicates the talent delivered work before the
	// deadline and the milestone awaits client review.
	MilestoneSubmitted
	// MilestoneApproved indicates the client accepted the work but funds have
	// not left escrow yet.
	MilestoneApproved
	// MilestoneDisputed indicates an open dispute froze the approval path.
	MilestoneDisputed
	// MilestonePaid indicates funds were released to the talent. Terminal; a
	// milestone is paid at most once.
	MilestonePaid
	// MilestoneRejected indicates the milestone failed terminally, either by
	// missing its deadline or by arbitration. Terminal.
	MilestoneRejected
)

// Valid reports whether the status value is within the supported range.
func (s MilestoneStatus) Valid() bool {
	switch s {
	case MilestonePending, MilestoneSubmitted, MilestoneApproved,
		MilestoneDisputed, MilestonePaid, MilestoneRejected:
		return true
	default:
		return false
	}
}

func (s MilestoneStatus) String() string {
	switch s {
	case MilestonePending:
		return "pending"
	case MilestoneSubmitted:
		return "submitted"
	case MilestoneApproved:
		return "approved"
	case MilestoneDisputed:
		return "disputed"
	case MilestonePaid:
		return "paid"
	case MilestoneRejected:
		return "rejected"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Milestone captures a single separately payable unit of work within a job.
type Milestone struct {
	Index          uint32          `json:"index"`
	Description    string          `json:"description"`
	Amount         *big.Int        `json:"amount"`
	Deadline       int64           `json:"deadline"`
	Status         MilestoneStatus `json:"status"`
	SubmissionData []byte          `json:"submissionData,omitempty"`
	SubmittedAt    int64           `json:"submittedAt,omitempty"`
}

// Clone returns a deep copy of the milestone to avoid callers mutating shared
// state.
func (m *Milestone) Clone() *Milestone {
	if m == nil {
		return nil
	}
	clone := *m
	if m.Amount != nil {
		clone.Amount = new(big.Int).Set(m.Amount)
	}
	if len(m.SubmissionData) > 0 {
		clone.SubmissionData = make([]byte, len(m.SubmissionData))
		copy(clone.SubmissionData, m.SubmissionData)
	}
	return &clone
}

// Validate ensures the milestone fields are sane prior to persistence.
func (m *Milestone) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: milestone must not be nil", ErrInvalidInput)
	}
	if strings.TrimSpace(m.Description) == "" {
		return fmt.Errorf("%w: milestone %d description required", ErrInvalidInput, m.Index)
	}
	if m.Amount == nil || m.Amount.Sign() <= 0 {
		return fmt.Errorf("%w: milestone %d amount must be positive", ErrInvalidInput, m.Index)
	}
	if m.Deadline <= 0 {
		return fmt.Errorf("%w: milestone %d deadline must be positive", ErrInvalidInput, m.Index)
	}
	if !m.Status.Valid() {
		return fmt.Errorf("%w: milestone %d status out of range", ErrInvalidInput, m.Index)
	}
	return nil
}

// Job aggregates the milestone schedule and escrow accounting for a single
// work agreement.
type Job struct {
	ID            uint64       `json:"id"`
	Client        [20]byte     `json:"client"`
	Talent        [20]byte     `json:"talent"`
	Title         string       `json:"title"`
	Milestones    []*Milestone `json:"milestones"`
	Status        JobStatus    `json:"status"`
	TotalAmount   *big.Int     `json:"totalAmount"`
	FundedBalance *big.Int     `json:"fundedBalance"`
	CreatedAt     int64        `json:"createdAt"`
	UpdatedAt     int64        `json:"updatedAt"`
}

// HasTalent reports whether a talent has been bound to the job.
func (j *Job) HasTalent() bool {
	return j != nil && j.Talent != ([20]byte{})
}

// Clone returns a deep copy of the job.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	clone := *j
	if j.TotalAmount != nil {
		clone.TotalAmount = new(big.Int).Set(j.TotalAmount)
	}
	if j.FundedBalance != nil {
		clone.FundedBalance = new(big.Int).Set(j.FundedBalance)
	}
	if len(j.Milestones) > 0 {
		clone.Milestones = make([]*Milestone, len(j.Milestones))
		for i, m := range j.Milestones {
			clone.Milestones[i] = m.Clone()
		}
	}
	return &clone
}

// Milestone returns the milestone at the supplied index.
func (j *Job) Milestone(idx uint32) (*Milestone, bool) {
	if j == nil || int(idx) >= len(j.Milestones) {
		return nil, false
	}
	m := j.Milestones[idx]
	if m == nil {
		return nil, false
	}
	return m, true
}

// AllMilestonesPaid reports whether every milestone has been released.
func (j *Job) AllMilestonesPaid() bool {
	if j == nil || len(j.Milestones) == 0 {
		return false
	}
	for _, m := range j.Milestones {
		if m == nil || m.Status != MilestonePaid {
			return false
		}
	}
	return true
}

// Validate checks structural invariants prior to persistence, including the
// total-equals-sum-of-milestones property.
func (j *Job) Validate() error {
	if j == nil {
		return fmt.Errorf("%w: job must not be nil", ErrInvalidInput)
	}
	if !j.Status.Valid() {
		return fmt.Errorf("%w: job status out of range", ErrInvalidInput)
	}
	if len(j.Milestones) == 0 {
		return fmt.Errorf("%w: at least one milestone required", ErrInvalidInput)
	}
	sum := big.NewInt(0)
	for _, m := range j.Milestones {
		if err := m.Validate(); err != nil {
			return err
		}
		sum.Add(sum, m.Amount)
	}
	if j.TotalAmount == nil || j.TotalAmount.Cmp(sum) != 0 {
		return fmt.Errorf("%w: total amount must equal milestone sum", ErrInvalidInput)
	}
	if j.FundedBalance != nil && j.FundedBalance.Sign() < 0 {
		return fmt.Errorf("%w: funded balance must not be negative", ErrInvalidInput)
	}
	return nil
}

// SanitizeJob clones and validates the supplied job so persisted records and
// event payloads stay deterministic.
func SanitizeJob(j *Job) (*Job, error) {
	if j == nil {
		return nil, fmt.Errorf("%w: job must not be nil", ErrInvalidInput)
	}
	clone := j.Clone()
	if clone.FundedBalance == nil {
		clone.FundedBalance = big.NewInt(0)
	}
	if err := clone.Validate(); err != nil {
		return nil, err
	}
	return clone, nil
}
