package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"jobmarket/crypto"
	"jobmarket/native/arbitration"
	"jobmarket/native/jobs"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	authTokenEnv    = "JOBMARKET_RPC_TOKEN"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeAuthRequired   = -32001

	codeUnauthorizedCaller = -32030
	codeInvalidState       = -32031
	codeDeadlineMissed     = -32032
	codeEscrowTransfer     = -32033
	codeReentrancy         = -32034
	codeOpenDispute        = -32035
	codeAlreadyResolved    = -32036
	codeNotArbitrator      = -32037
	codeNotFound           = -32040
)

// Server exposes the job and arbitration engines over JSON-RPC.
type Server struct {
	jobs        *jobs.Engine
	arbitration *arbitration.Engine
	authToken   string

	requests *prometheus.CounterVec
	registry *prometheus.Registry
}

func NewServer(jobsEngine *jobs.Engine, arbitrationEngine *arbitration.Engine) *Server {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jobmarket",
		Subsystem: "rpc",
		Name:      "requests_total",
		Help:      "JSON-RPC requests by method and outcome.",
	}, []string{"method", "outcome"})
	registry.MustRegister(requests)

	return &Server{
		jobs:        jobsEngine,
		arbitration: arbitrationEngine,
		authToken:   strings.TrimSpace(os.Getenv(authTokenEnv)),
		requests:    requests,
		registry:    registry,
	}
}

// Handler returns the HTTP routes served by the daemon: the JSON-RPC endpoint
// at / and the prometheus scrape endpoint at /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return mux
}

func (s *Server) Start(addr string) error {
	fmt.Printf("Starting JSON-RPC server on %s\n", addr)
	return http.ListenAndServe(addr, s.Handler())
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

type handlerFunc func(http.ResponseWriter, *http.Request, *RPCRequest)

func (s *Server) methods() map[string]handlerFunc {
	return map[string]handlerFunc{
		"jobs_create":                 s.handleJobsCreate,
		"jobs_fund":                   s.handleJobsFund,
		"jobs_selectTalent":           s.handleJobsSelectTalent,
		"jobs_submitMilestone":        s.handleJobsSubmitMilestone,
		"jobs_approveMilestone":       s.handleJobsApproveMilestone,
		"jobs_cancel":                 s.handleJobsCancel,
		"jobs_get":                    s.handleJobsGet,
		"jobs_raiseDispute":           s.handleJobsRaiseDispute,
		"jobs_resolveDispute":         s.handleJobsResolveDispute,
		"jobs_getDispute":             s.handleJobsGetDispute,
		"arbitration_register":        s.handleArbitrationRegister,
		"arbitration_listArbitrators": s.handleArbitrationList,
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, nil, codeInvalidRequest, "POST required", nil)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "failed to read request body", err.Error())
		return
	}
	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	handler, ok := s.methods()[req.Method]
	if !ok {
		s.requests.WithLabelValues(req.Method, "unknown").Inc()
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method), nil)
		return
	}
	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	handler(recorder, r, req)
	outcome := "ok"
	if recorder.status >= http.StatusBadRequest {
		outcome = "error"
	}
	s.requests.WithLabelValues(req.Method, outcome).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeAuthRequired, Message: "RPC authentication token not configured"}
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return &RPCError{Code: codeAuthRequired, Message: "missing Authorization header"}
	}
	const scheme = "Bearer "
	if !strings.HasPrefix(header, scheme) {
		return &RPCError{Code: codeAuthRequired, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, scheme))
	if token == "" {
		return &RPCError{Code: codeAuthRequired, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeAuthRequired, Message: "invalid RPC credentials"}
	}
	return nil
}

func parseBech32Address(value string) ([20]byte, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return [20]byte{}, err
	}
	return addr.Array(), nil
}

func formatAddress(addr [20]byte) string {
	if addr == ([20]byte{}) {
		return ""
	}
	return crypto.MustNewAddress(addr[:]).String()
}
