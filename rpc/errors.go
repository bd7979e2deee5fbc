package rpc

import (
	"errors"
	"net/http"

	"jobmarket/native/jobs"
)

// writeEngineError maps the engines' sentinel errors onto JSON-RPC error codes.
// The wrapped message travels in the error data so callers keep the context.
func writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	status := http.StatusBadRequest
	code := codeServerError
	message := "operation failed"

	switch {
	case errors.Is(err, jobs.ErrInvalidInput):
		code, message = codeInvalidParams, "invalid_input"
	case errors.Is(err, jobs.ErrUnauthorized):
		status, code, message = http.StatusForbidden, codeUnauthorizedCaller, "unauthorized"
	case errors.Is(err, jobs.ErrNotArbitrator):
		status, code, message = http.StatusForbidden, codeNotArbitrator, "not_arbitrator"
	case errors.Is(err, jobs.ErrInvalidState):
		status, code, message = http.StatusConflict, codeInvalidState, "invalid_state"
	case errors.Is(err, jobs.ErrDeadlineMissed):
		status, code, message = http.StatusConflict, codeDeadlineMissed, "deadline_missed"
	case errors.Is(err, jobs.ErrEscrowTransferFailed):
		status, code, message = http.StatusConflict, codeEscrowTransfer, "escrow_transfer_failed"
	case errors.Is(err, jobs.ErrReentrancyDetected):
		status, code, message = http.StatusConflict, codeReentrancy, "reentrancy_detected"
	case errors.Is(err, jobs.ErrNoOpenDisputeAllowed):
		status, code, message = http.StatusConflict, codeOpenDispute, "open_dispute_exists"
	case errors.Is(err, jobs.ErrAlreadyResolved):
		status, code, message = http.StatusConflict, codeAlreadyResolved, "already_resolved"
	case errors.Is(err, jobs.ErrJobNotFound),
		errors.Is(err, jobs.ErrMilestoneNotFound),
		errors.Is(err, jobs.ErrDisputeNotFound):
		status, code, message = http.StatusNotFound, codeNotFound, "not_found"
	default:
		status = http.StatusInternalServerError
	}

	writeError(w, status, id, code, message, err.Error())
}
