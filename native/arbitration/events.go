package arbitration

import (
	"encoding/hex"
	"strconv"

	"jobmarket/core/types"
)

const (
	EventTypeDisputeRaised        = "jobs.dispute_raised"
	EventTypeDisputeResolved      = "jobs.dispute_resolved"
	EventTypeArbitratorRegistered = "arbitration.registered"
)

// NewDisputeRaisedEvent returns the canonical payload for a newly opened
// dispute.
func NewDisputeRaisedEvent(d *Dispute) *types.Event {
	return &types.Event{Type: EventTypeDisputeRaised, Attributes: disputeAttrs(d)}
}

// NewDisputeResolvedEvent returns the canonical payload for a settled
// dispute, including the recorded decision.
func NewDisputeResolvedEvent(d *Dispute) *types.Event {
	attrs := disputeAttrs(d)
	if d != nil && d.Decision != nil {
		attrs["outcome"] = d.Decision.Outcome.String()
		if d.Decision.Outcome == OutcomeSplit {
			attrs["talentBps"] = strconv.FormatUint(uint64(d.Decision.TalentBps), 10)
		}
	}
	return &types.Event{Type: EventTypeDisputeResolved, Attributes: attrs}
}

// NewArbitratorRegisteredEvent returns the canonical payload for a registry
// addition.
func NewArbitratorRegisteredEvent(a *Arbitrator) *types.Event {
	attrs := make(map[string]string)
	if a != nil {
		attrs["arbitrator"] = hex.EncodeToString(a.Address[:])
		if a.Specialization != "" {
			attrs["specialization"] = a.Specialization
		}
		attrs["registeredAt"] = strconv.FormatInt(a.RegisteredAt, 10)
	}
	return &types.Event{Type: EventTypeArbitratorRegistered, Attributes: attrs}
}

func disputeAttrs(d *Dispute) map[string]string {
	attrs := make(map[string]string)
	if d == nil {
		return attrs
	}
	attrs["disputeId"] = strconv.FormatUint(d.ID, 10)
	attrs["jobId"] = strconv.FormatUint(d.JobID, 10)
	if d.MilestoneIdx != nil {
		attrs["milestoneIndex"] = strconv.FormatUint(uint64(*d.MilestoneIdx), 10)
	}
	attrs["arbitrator"] = hex.EncodeToString(d.Arbitrator[:])
	attrs["raisedBy"] = hex.EncodeToString(d.RaisedBy[:])
	attrs["status"] = d.Status.String()
	return attrs
}
