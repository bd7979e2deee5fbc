package jobs

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"jobmarket/core/types"
)

const (
	EventTypeJobCreated         = "jobs.created"
	EventTypeJobFunded          = "jobs.funded"
	EventTypeTalentSelected     = "jobs.talent_selected"
	EventTypeMilestoneSubmitted = "jobs.milestone_submitted"
	EventTypeMilestoneApproved  = "jobs.milestone_approved"
	EventTypeMilestonePaid      = "jobs.milestone_paid"
	EventTypeJobCancelled       = "jobs.cancelled"
)

// NewCreatedEvent returns the canonical payload for a newly created job.
func NewCreatedEvent(j *Job) *types.Event {
	attrs := baseJobAttrs(j)
	if j != nil {
		attrs["title"] = j.Title
		attrs["milestones"] = strconv.Itoa(len(j.Milestones))
	}
	return &types.Event{Type: EventTypeJobCreated, Attributes: attrs}
}

// NewFundedEvent returns the canonical payload emitted when the job's full
// budget is locked in escrow.
func NewFundedEvent(j *Job) *types.Event {
	return &types.Event{Type: EventTypeJobFunded, Attributes: baseJobAttrs(j)}
}

// NewTalentSelectedEvent returns the canonical payload emitted when a talent
// is bound and work starts.
func NewTalentSelectedEvent(j *Job) *types.Event {
	return &types.Event{Type: EventTypeTalentSelected, Attributes: baseJobAttrs(j)}
}

// NewMilestoneSubmittedEvent returns the canonical payload for a work
// submission.
func NewMilestoneSubmittedEvent(j *Job, idx uint32) *types.Event {
	attrs := baseJobAttrs(j)
	attrs["milestoneIndex"] = strconv.FormatUint(uint64(idx), 10)
	return &types.Event{Type: EventTypeMilestoneSubmitted, Attributes: attrs}
}

// NewMilestoneApprovedEvent returns the canonical payload emitted when the
// client accepts a submission.
func NewMilestoneApprovedEvent(j *Job, idx uint32) *types.Event {
	attrs := baseJobAttrs(j)
	attrs["milestoneIndex"] = strconv.FormatUint(uint64(idx), 10)
	return &types.Event{Type: EventTypeMilestoneApproved, Attributes: attrs}
}

// NewMilestonePaidEvent returns the canonical payload for a milestone payout.
func NewMilestonePaidEvent(j *Job, idx uint32, amount *big.Int) *types.Event {
	attrs := baseJobAttrs(j)
	attrs["milestoneIndex"] = strconv.FormatUint(uint64(idx), 10)
	if amount != nil {
		attrs["amount"] = amount.String()
	}
	return &types.Event{Type: EventTypeMilestonePaid, Attributes: attrs}
}

// NewCancelledEvent returns the canonical payload for a cancellation,
// including the refund and penalty legs.
func NewCancelledEvent(j *Job, cancelledBy [20]byte, refund, penalty *big.Int) *types.Event {
	attrs := baseJobAttrs(j)
	attrs["cancelledBy"] = hex.EncodeToString(cancelledBy[:])
	if refund != nil {
		attrs["refund"] = refund.String()
	}
	if penalty != nil {
		attrs["penalty"] = penalty.String()
	}
	return &types.Event{Type: EventTypeJobCancelled, Attributes: attrs}
}

func baseJobAttrs(j *Job) map[string]string {
	attrs := make(map[string]string)
	if j == nil {
		return attrs
	}
	attrs["jobId"] = strconv.FormatUint(j.ID, 10)
	attrs["client"] = hex.EncodeToString(j.Client[:])
	if j.HasTalent() {
		attrs["talent"] = hex.EncodeToString(j.Talent[:])
	}
	attrs["status"] = j.Status.String()
	if j.TotalAmount != nil {
		attrs["totalAmount"] = j.TotalAmount.String()
	}
	if j.FundedBalance != nil {
		attrs["fundedBalance"] = j.FundedBalance.String()
	}
	return attrs
}
