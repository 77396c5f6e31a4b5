package server

import (
	"errors"
	"net/http"
	"strconv"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/suture-cli/api/schemas"
	"github.com/xkilldash9x/suture-cli/internal/audit"
	"github.com/xkilldash9x/suture-cli/internal/orchestrator"
	"github.com/xkilldash9x/suture-cli/internal/vcs"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// apiResponse is the envelope every endpoint answers with.
type apiResponse struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

type handlers struct {
	orch *orchestrator.Orchestrator
	log  *zap.Logger
}

func newHandlers(orch *orchestrator.Orchestrator, logger *zap.Logger) *handlers {
	return &handlers{orch: orch, log: logger.Named("handlers")}
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleGetLogs filters the audit log by the optional type, file, and limit
// query parameters.
func (h *handlers) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	filter := audit.Filter{
		OperationType: schemas.OperationType(r.URL.Query().Get("type")),
		FilePath:      r.URL.Query().Get("file"),
		CorrelationID: r.URL.Query().Get("correlation_id"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			h.respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	events, err := h.orch.AuditLog().GetLogs(filter)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondSuccess(w, events)
}

func (h *handlers) handleSearchLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		h.respondError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	events, err := h.orch.AuditLog().SearchLogs(query)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondSuccess(w, events)
}

func (h *handlers) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.orch.AuditLog().GetStatistics()
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondSuccess(w, stats)
}

func (h *handlers) handleGetCommits(w http.ResponseWriter, r *http.Request) {
	max := 0
	if raw := r.URL.Query().Get("max"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.respondError(w, http.StatusBadRequest, "max must be a non-negative integer")
			return
		}
		max = parsed
	}

	commits, err := h.orch.Coordinator().GetCommits(max)
	if err != nil {
		h.respondVCSError(w, err)
		return
	}
	if commits == nil {
		commits = []schemas.CommitRecord{}
	}
	h.respondSuccess(w, commits)
}

func (h *handlers) handleRepoStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.orch.Coordinator().GetRepoStatus()
	if err != nil {
		h.respondVCSError(w, err)
		return
	}
	h.respondSuccess(w, status)
}

func (h *handlers) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.orch.Report(r.Context())
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondSuccess(w, report)
}

func (h *handlers) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	report, err := h.orch.Analyze(r.Context())
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondSuccess(w, report)
}

func (h *handlers) respondVCSError(w http.ResponseWriter, err error) {
	if errors.Is(err, vcs.ErrNotARepository) {
		h.respondError(w, http.StatusConflict, err.Error())
		return
	}
	h.respondError(w, http.StatusInternalServerError, err.Error())
}

func (h *handlers) respondSuccess(w http.ResponseWriter, data any) {
	h.respond(w, http.StatusOK, apiResponse{Status: "success", Data: data})
}

func (h *handlers) respondError(w http.ResponseWriter, statusCode int, message string) {
	h.respond(w, statusCode, apiResponse{Status: "error", Error: message})
}

func (h *handlers) respond(w http.ResponseWriter, statusCode int, resp apiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Error("Failed to encode response", zap.Error(err))
	}
}
