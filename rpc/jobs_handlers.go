package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"jobmarket/native/jobs"
)

type jobCreateParams struct {
	Client       string   `json:"client"`
	Title        string   `json:"title"`
	Descriptions []string `json:"descriptions"`
	Amounts      []string `json:"amounts"`
	Deadlines    []int64  `json:"deadlines"`
}

type jobCreateResult struct {
	JobID uint64 `json:"jobId"`
}

type jobCallerParams struct {
	Caller string `json:"caller"`
	JobID  uint64 `json:"jobId"`
}

type jobSelectTalentParams struct {
	Client string `json:"client"`
	JobID  uint64 `json:"jobId"`
	Talent string `json:"talent"`
}

type jobSubmitMilestoneParams struct {
	Talent    string `json:"talent"`
	JobID     uint64 `json:"jobId"`
	Milestone uint32 `json:"milestone"`
	DataHex   string `json:"data,omitempty"`
}

type jobApproveMilestoneParams struct {
	Client    string `json:"client"`
	JobID     uint64 `json:"jobId"`
	Milestone uint32 `json:"milestone"`
}

type jobGetParams struct {
	JobID uint64 `json:"jobId"`
}

type milestoneJSON struct {
	Index          uint32 `json:"index"`
	Description    string `json:"description"`
	Amount         string `json:"amount"`
	Deadline       int64  `json:"deadline"`
	Status         string `json:"status"`
	SubmissionData string `json:"submissionData,omitempty"`
	SubmittedAt    int64  `json:"submittedAt,omitempty"`
}

type jobJSON struct {
	ID            uint64          `json:"id"`
	Client        string          `json:"client"`
	Talent        string          `json:"talent,omitempty"`
	Title         string          `json:"title"`
	Status        string          `json:"status"`
	TotalAmount   string          `json:"totalAmount"`
	FundedBalance string          `json:"fundedBalance"`
	CreatedAt     int64           `json:"createdAt"`
	UpdatedAt     int64           `json:"updatedAt"`
	Milestones    []milestoneJSON `json:"milestones"`
}

func jobToJSON(job *jobs.Job) jobJSON {
	out := jobJSON{
		ID:            job.ID,
		Client:        formatAddress(job.Client),
		Talent:        formatAddress(job.Talent),
		Title:         job.Title,
		Status:        job.Status.String(),
		TotalAmount:   job.TotalAmount.String(),
		FundedBalance: job.FundedBalance.String(),
		CreatedAt:     job.CreatedAt,
		UpdatedAt:     job.UpdatedAt,
	}
	for _, m := range job.Milestones {
		entry := milestoneJSON{
			Index:       m.Index,
			Description: m.Description,
			Amount:      m.Amount.String(),
			Deadline:    m.Deadline,
			Status:      m.Status.String(),
			SubmittedAt: m.SubmittedAt,
		}
		if len(m.SubmissionData) > 0 {
			entry.SubmissionData = "0x" + hex.EncodeToString(m.SubmissionData)
		}
		out.Milestones = append(out.Milestones, entry)
	}
	return out
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	return amount, nil
}

func parseDataHex(value string) ([]byte, error) {
	trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(value), "0x"))
	if trimmed == "" {
		return nil, nil
	}
	return hex.DecodeString(trimmed)
}

func (s *Server) handleJobsCreate(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params jobCreateParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	client, err := parseBech32Address(params.Client)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	amounts := make([]*big.Int, len(params.Amounts))
	for i, raw := range params.Amounts {
		amounts[i], err = parseAmount(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
			return
		}
	}
	jobID, err := s.jobs.CreateJob(client, params.Title, params.Descriptions, amounts, params.Deadlines)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, jobCreateResult{JobID: jobID})
}

func (s *Server) handleJobsFund(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params jobCallerParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.jobs.FundJob(caller, params.JobID); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleJobsSelectTalent(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params jobSelectTalentParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	client, err := parseBech32Address(params.Client)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	talent, err := parseBech32Address(params.Talent)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.jobs.SelectTalent(client, params.JobID, talent); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleJobsSubmitMilestone(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params jobSubmitMilestoneParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	talent, err := parseBech32Address(params.Talent)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	data, err := parseDataHex(params.DataHex)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.jobs.SubmitMilestone(talent, params.JobID, params.Milestone, data); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleJobsApproveMilestone(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params jobApproveMilestoneParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	client, err := parseBech32Address(params.Client)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.jobs.ApproveMilestone(client, params.JobID, params.Milestone); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleJobsCancel(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params jobCallerParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.jobs.CancelJob(caller, params.JobID); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleJobsGet(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params jobGetParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	job, err := s.jobs.GetJob(params.JobID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, jobToJSON(job))
}
