package jobs

import "errors"

var (
	// ErrUnauthorized marks calls whose identity check failed or whose caller
	// does not hold the role the operation requires.
	ErrUnauthorized = errors.New("jobs: unauthorized")
	// ErrInvalidState marks operations attempted outside the state machine's
	// legal transitions.
	ErrInvalidState = errors.New("jobs: invalid state")
	// ErrInvalidInput marks malformed or inconsistent parameters.
	ErrInvalidInput = errors.New("jobs: invalid input")
	// ErrDeadlineMissed marks submissions past the milestone deadline. The
	// milestone is terminally rejected; the failure is not retryable.
	ErrDeadlineMissed = errors.New("jobs: deadline missed")
	// ErrEscrowTransferFailed marks token movement failures. No state is
	// mutated and the operation may be retried.
	ErrEscrowTransferFailed = errors.New("jobs: escrow transfer failed")
	// ErrReentrancyDetected marks nested mutating calls on a job whose lock is
	// already held.
	ErrReentrancyDetected = errors.New("jobs: reentrancy detected")
	// ErrNoOpenDisputeAllowed marks attempts to raise a second dispute against
	// a target that already has one open.
	ErrNoOpenDisputeAllowed = errors.New("jobs: open dispute exists")
	// ErrAlreadyResolved marks resolution retries against a settled dispute.
	ErrAlreadyResolved = errors.New("jobs: dispute already resolved")
	// ErrJobNotFound marks lookups for unknown job identifiers.
	ErrJobNotFound = errors.New("jobs: job not found")
	// ErrMilestoneNotFound marks milestone indices outside the job's schedule.
	ErrMilestoneNotFound = errors.New("jobs: milestone not found")
	// ErrNotArbitrator marks arbitrators missing from the registry or callers
	// who are not the dispute's named arbitrator.
	ErrNotArbitrator = errors.New("jobs: not a registered arbitrator")
	// ErrDisputeNotFound marks lookups for unknown dispute identifiers.
	ErrDisputeNotFound = errors.New("jobs: dispute not found")
)
