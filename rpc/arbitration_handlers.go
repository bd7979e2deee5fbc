package rpc

import (
	"net/http"

	"jobmarket/native/arbitration"
)

type disputeRaiseParams struct {
	Caller     string  `json:"caller"`
	JobID      uint64  `json:"jobId"`
	Milestone  *uint32 `json:"milestone,omitempty"`
	Arbitrator string  `json:"arbitrator"`
}

type disputeRaiseResult struct {
	DisputeID uint64 `json:"disputeId"`
}

type disputeResolveParams struct {
	Caller    string  `json:"caller"`
	JobID     uint64  `json:"jobId"`
	Milestone *uint32 `json:"milestone,omitempty"`
	Outcome   string  `json:"outcome"`
	TalentBps uint32  `json:"talentBps,omitempty"`
}

type disputeGetParams struct {
	DisputeID uint64 `json:"disputeId"`
}

type disputeJSON struct {
	ID         uint64  `json:"id"`
	JobID      uint64  `json:"jobId"`
	Milestone  *uint32 `json:"milestone,omitempty"`
	Arbitrator string  `json:"arbitrator"`
	RaisedBy   string  `json:"raisedBy"`
	Status     string  `json:"status"`
	Outcome    string  `json:"outcome,omitempty"`
	TalentBps  uint32  `json:"talentBps,omitempty"`
	RaisedAt   int64   `json:"raisedAt"`
	ResolvedAt int64   `json:"resolvedAt,omitempty"`
}

type arbitratorRegisterParams struct {
	Address        string `json:"address"`
	Specialization string `json:"specialization,omitempty"`
}

type arbitratorJSON struct {
	Address        string `json:"address"`
	Specialization string `json:"specialization,omitempty"`
	CasesHandled   uint64 `json:"casesHandled"`
	RegisteredAt   int64  `json:"registeredAt"`
}

func disputeToJSON(dispute *arbitration.Dispute) disputeJSON {
	out := disputeJSON{
		ID:         dispute.ID,
		JobID:      dispute.JobID,
		Milestone:  dispute.MilestoneIdx,
		Arbitrator: formatAddress(dispute.Arbitrator),
		RaisedBy:   formatAddress(dispute.RaisedBy),
		Status:     dispute.Status.String(),
		RaisedAt:   dispute.RaisedAt,
		ResolvedAt: dispute.ResolvedAt,
	}
	if dispute.Status == arbitration.DisputeResolved && dispute.Decision != nil {
		out.Outcome = dispute.Decision.Outcome.String()
		out.TalentBps = dispute.Decision.TalentBps
	}
	return out
}

func (s *Server) handleJobsRaiseDispute(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params disputeRaiseParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	arbitrator, err := parseBech32Address(params.Arbitrator)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	disputeID, err := s.arbitration.RaiseDispute(caller, params.JobID, params.Milestone, arbitrator)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, disputeRaiseResult{DisputeID: disputeID})
}

func (s *Server) handleJobsResolveDispute(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params disputeResolveParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	outcome, err := arbitration.ParseOutcome(params.Outcome)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	decision := arbitration.Decision{Outcome: outcome, TalentBps: params.TalentBps}
	if err := s.arbitration.ResolveDispute(caller, params.JobID, params.Milestone, decision); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleJobsGetDispute(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params disputeGetParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	dispute, err := s.arbitration.GetDispute(params.DisputeID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, disputeToJSON(dispute))
}

func (s *Server) handleArbitrationRegister(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params arbitratorRegisterParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseBech32Address(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.arbitration.RegisterArbitrator(addr, params.Specialization); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleArbitrationList(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	entries, err := s.arbitration.Arbitrators()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	out := make([]arbitratorJSON, 0, len(entries))
	for _, entry := range entries {
		out = append(out, arbitratorJSON{
			Address:        formatAddress(entry.Address),
			Specialization: entry.Specialization,
			CasesHandled:   entry.CasesHandled,
			RegisteredAt:   entry.RegisteredAt,
		})
	}
	writeResult(w, req.ID, out)
}
