package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/flowdhq/flowd/internal/application/history"
	"github.com/flowdhq/flowd/internal/application/ledger"
	"github.com/flowdhq/flowd/pkg/domain"
	"github.com/flowdhq/flowd/pkg/schema"
)

// maxFireTimePreview caps how many upcoming fire times one request may
// ask for.
const maxFireTimePreview = 100

// StateRequest is the wire form of a proposed or initial state
type StateRequest struct {
	Type          string     `json:"type" binding:"required"`
	Name          string     `json:"name"`
	Message       string     `json:"message"`
	ScheduledTime *time.Time `json:"scheduled_time"`
}

// CreateFlowRunRequest represents a flow run creation request
type CreateFlowRunRequest struct {
	FlowID string        `json:"flow_id" binding:"required"`
	Tags   []string      `json:"tags"`
	State  *StateRequest `json:"state"`
}

// CreateTaskRunRequest represents a task run creation request
type CreateTaskRunRequest struct {
	FlowID    string        `json:"flow_id" binding:"required"`
	FlowRunID string        `json:"flow_run_id" binding:"required"`
	TaskKey   string        `json:"task_key" binding:"required"`
	Tags      []string      `json:"tags"`
	State     *StateRequest `json:"state"`
}

// SetStateRequest represents a state transition request
type SetStateRequest struct {
	State StateRequest `json:"state" binding:"required"`
	Force bool         `json:"force"`
}

// HistoryRequest represents a run history aggregation request
type HistoryRequest struct {
	HistoryStart           time.Time `json:"history_start" binding:"required"`
	HistoryEnd             time.Time `json:"history_end" binding:"required"`
	HistoryIntervalSeconds float64   `json:"history_interval_seconds" binding:"required"`
	Flows                  []string  `json:"flows"`
	FlowRuns               []string  `json:"flow_runs"`
	StateTypes             []string  `json:"state_types"`
	StateNames             []string  `json:"state_names"`
	Tags                   []string  `json:"tags"`
}

// RunResponse is the wire form of a run. Durations are float seconds.
type RunResponse struct {
	ID                string         `json:"id"`
	Kind              string         `json:"kind"`
	FlowID            string         `json:"flow_id"`
	FlowRunID         string         `json:"flow_run_id,omitempty"`
	TaskKey           string         `json:"task_key,omitempty"`
	Tags              []string       `json:"tags"`
	State             domain.State   `json:"state"`
	History           []domain.State `json:"history"`
	Created           time.Time      `json:"created"`
	Version           int64          `json:"version"`
	EstimatedRunTime  float64        `json:"estimated_run_time"`
	EstimatedLateness float64        `json:"estimated_lateness"`
}

// StateSummaryResponse is the wire form of one per-state aggregate
type StateSummaryResponse struct {
	StateType            string  `json:"state_type"`
	StateName            string  `json:"state_name"`
	CountRuns            int     `json:"count_runs"`
	SumEstimatedRunTime  float64 `json:"sum_estimated_run_time"`
	SumEstimatedLateness float64 `json:"sum_estimated_lateness"`
}

// BucketResponse is the wire form of one history interval
type BucketResponse struct {
	IntervalStart time.Time              `json:"interval_start"`
	IntervalEnd   time.Time              `json:"interval_end"`
	States        []StateSummaryResponse `json:"states"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	checks := gin.H{"ledger": "ok"}
	healthy := true

	if s.health != nil {
		status := s.health.GetStatus()
		if status.Healthy {
			checks["workers"] = "ok"
		} else {
			checks["workers"] = "degraded"
			healthy = false
		}
	}

	overall := "healthy"
	if !healthy {
		overall = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    overall,
		"timestamp": time.Now().UTC(),
		"checks":    checks,
	})
}

// handleSaveFlow handles flow document submission
func (s *Server) handleSaveFlow(c *gin.Context) {
	var doc schema.FlowDocument
	if err := c.ShouldBindJSON(&doc); err != nil {
		s.invalidRequest(c, err)
		return
	}

	canonical, err := s.catalog.SaveFlow(c.Request.Context(), &doc)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, canonical)
}

// handleListFlows handles listing stored flows
func (s *Server) handleListFlows(c *gin.Context) {
	flows, err := s.catalog.ListFlows(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"flows": flows,
		"total": len(flows),
	})
}

// handleGetFlow handles getting a stored flow document
func (s *Server) handleGetFlow(c *gin.Context) {
	doc, err := s.catalog.GetFlow(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, doc)
}

// handleDeleteFlow handles deleting a stored flow document
func (s *Server) handleDeleteFlow(c *gin.Context) {
	if err := s.catalog.DeleteFlow(c.Request.Context(), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// handleScheduleNext previews the upcoming fire times of a flow's
// schedule. A flow without a schedule, or with one this engine cannot
// evaluate, answers 409.
func (s *Server) handleScheduleNext(c *gin.Context) {
	after := time.Time{}
	if raw := c.Query("after"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.invalidRequest(c, err)
			return
		}
		after = parsed
	}

	n, err := strconv.Atoi(c.DefaultQuery("n", "3"))
	if err != nil || n < 1 || n > maxFireTimePreview {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_REQUEST",
				Message: "n must be an integer between 1 and 100",
			},
		})
		return
	}

	times, err := s.catalog.NextFireTimes(c.Request.Context(), c.Param("id"), after, n)
	if err != nil {
		switch {
		case domain.IsValidationError(err):
			c.JSON(http.StatusConflict, ErrorResponse{
				Error: ErrorDetail{
					Code:    "NO_SCHEDULE",
					Message: err.Error(),
				},
			})
		case errors.Is(err, domain.ErrUnknownScheduleKind):
			c.JSON(http.StatusConflict, ErrorResponse{
				Error: ErrorDetail{
					Code:    "UNSUPPORTED_SCHEDULE",
					Message: err.Error(),
				},
			})
		default:
			s.respondError(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"flow_id": c.Param("id"),
		"next":    times,
	})
}

// handleCreateFlowRun handles flow run creation
func (s *Server) handleCreateFlowRun(c *gin.Context) {
	var req CreateFlowRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.invalidRequest(c, err)
		return
	}

	run, err := s.ledger.CreateFlowRun(c.Request.Context(), ledger.CreateFlowRunParams{
		FlowID: req.FlowID,
		Tags:   req.Tags,
		State:  stateFromRequest(req.State),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toRunResponse(run))
}

// handleCreateTaskRun handles task run creation
func (s *Server) handleCreateTaskRun(c *gin.Context) {
	var req CreateTaskRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.invalidRequest(c, err)
		return
	}

	run, err := s.ledger.CreateTaskRun(c.Request.Context(), ledger.CreateTaskRunParams{
		FlowID:    req.FlowID,
		FlowRunID: req.FlowRunID,
		TaskKey:   req.TaskKey,
		Tags:      req.Tags,
		State:     stateFromRequest(req.State),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toRunResponse(run))
}

func (s *Server) handleGetFlowRun(c *gin.Context) {
	s.getRun(c, domain.RunKindFlow)
}

func (s *Server) handleGetTaskRun(c *gin.Context) {
	s.getRun(c, domain.RunKindTask)
}

func (s *Server) handleListFlowRuns(c *gin.Context) {
	s.listRuns(c, domain.RunKindFlow)
}

func (s *Server) handleListTaskRuns(c *gin.Context) {
	s.listRuns(c, domain.RunKindTask)
}

func (s *Server) handleSetFlowRunState(c *gin.Context) {
	s.setRunState(c, domain.RunKindFlow)
}

func (s *Server) handleSetTaskRunState(c *gin.Context) {
	s.setRunState(c, domain.RunKindTask)
}

func (s *Server) handleFlowRunHistory(c *gin.Context) {
	s.runHistory(c, domain.RunKindFlow)
}

func (s *Server) handleTaskRunHistory(c *gin.Context) {
	s.runHistory(c, domain.RunKindTask)
}

// getRun fetches one run. Asking a flow run endpoint for a task run id
// (or the reverse) answers 404.
func (s *Server) getRun(c *gin.Context, kind domain.RunKind) {
	id := c.Param("id")
	run, err := s.ledger.GetRun(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if run.Kind != kind {
		s.respondError(c, domain.NewNotFoundError(string(kind)+" run", id))
		return
	}

	c.JSON(http.StatusOK, toRunResponse(run))
}

// listRuns lists runs of one kind, filtered by query parameters.
func (s *Server) listRuns(c *gin.Context, kind domain.RunKind) {
	filter, err := filterFromQuery(c)
	if err != nil {
		s.respondError(c, err)
		return
	}

	runs, err := s.ledger.ListRuns(c.Request.Context(), kind, filter)
	if err != nil {
		s.respondError(c, err)
		return
	}

	responses := make([]RunResponse, len(runs))
	for i, run := range runs {
		responses[i] = toRunResponse(run)
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  responses,
		"total": len(responses),
	})
}

// setRunState proposes a state transition for one run.
func (s *Server) setRunState(c *gin.Context, kind domain.RunKind) {
	id := c.Param("id")

	var req SetStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.invalidRequest(c, err)
		return
	}

	current, err := s.ledger.GetRun(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if current.Kind != kind {
		s.respondError(c, domain.NewNotFoundError(string(kind)+" run", id))
		return
	}

	proposed := stateFromRequest(&req.State)
	run, err := s.ledger.SetRunState(c.Request.Context(), id, *proposed, req.Force)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toRunResponse(run))
}

// runHistory aggregates runs of one kind into interval buckets.
func (s *Server) runHistory(c *gin.Context, kind domain.RunKind) {
	var req HistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.invalidRequest(c, err)
		return
	}

	stateTypes, err := parseStateTypes(req.StateTypes)
	if err != nil {
		s.respondError(c, err)
		return
	}

	buckets, err := s.history.History(c.Request.Context(), kind, history.Request{
		Start:    req.HistoryStart,
		End:      req.HistoryEnd,
		Interval: time.Duration(req.HistoryIntervalSeconds * float64(time.Second)),
		Filter: domain.RunFilter{
			FlowIDs:    req.Flows,
			FlowRunIDs: req.FlowRuns,
			StateTypes: stateTypes,
			StateNames: req.StateNames,
			Tags:       req.Tags,
		},
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	responses := make([]BucketResponse, len(buckets))
	for i, b := range buckets {
		responses[i] = toBucketResponse(b)
	}

	c.JSON(http.StatusOK, responses)
}

// invalidRequest answers 400 for requests that fail binding.
func (s *Server) invalidRequest(c *gin.Context, err error) {
	s.logger.Debug("invalid request", zap.Error(err))
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: ErrorDetail{
			Code:    "INVALID_REQUEST",
			Message: err.Error(),
		},
	})
}

// respondError maps domain errors to HTTP responses.
func (s *Server) respondError(c *gin.Context, err error) {
	var cv *domain.ConstraintViolation
	switch {
	case domain.IsValidationError(err):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "VALIDATION_FAILED",
				Message: err.Error(),
			},
		})
	case domain.IsNotFound(err):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{
				Code:    "NOT_FOUND",
				Message: err.Error(),
			},
		})
	case errors.As(err, &cv):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: ErrorDetail{
				Code:    "CONSTRAINT_VIOLATION",
				Message: err.Error(),
				Details: gin.H{
					"run_id":   cv.RunID,
					"current":  cv.Current,
					"proposed": cv.Proposed,
				},
			},
		})
	default:
		s.logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INTERNAL",
				Message: "internal error",
			},
		})
	}
}

func stateFromRequest(req *StateRequest) *domain.State {
	if req == nil {
		return nil
	}
	return &domain.State{
		Type:          domain.StateType(req.Type),
		Name:          req.Name,
		Message:       req.Message,
		ScheduledTime: req.ScheduledTime,
	}
}

// filterFromQuery builds a run filter from comma-separated query
// parameters.
func filterFromQuery(c *gin.Context) (domain.RunFilter, error) {
	stateTypes, err := parseStateTypes(splitParam(c.Query("state_type")))
	if err != nil {
		return domain.RunFilter{}, err
	}
	return domain.RunFilter{
		FlowIDs:    splitParam(c.Query("flow_id")),
		FlowRunIDs: splitParam(c.Query("flow_run_id")),
		StateTypes: stateTypes,
		StateNames: splitParam(c.Query("state_name")),
		Tags:       splitParam(c.Query("tag")),
	}, nil
}

func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseStateTypes(raw []string) ([]domain.StateType, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	types := make([]domain.StateType, 0, len(raw))
	for _, r := range raw {
		st := domain.StateType(r)
		if !st.Valid() {
			return nil, domain.NewValidationError("state_types", "unknown state type "+r)
		}
		types = append(types, st)
	}
	return types, nil
}

func toRunResponse(run *domain.Run) RunResponse {
	now := time.Now().UTC()
	tags := run.Tags
	if tags == nil {
		tags = []string{}
	}
	hist := run.History
	if hist == nil {
		hist = []domain.State{}
	}
	return RunResponse{
		ID:                run.ID,
		Kind:              string(run.Kind),
		FlowID:            run.FlowID,
		FlowRunID:         run.FlowRunID,
		TaskKey:           run.TaskKey,
		Tags:              tags,
		State:             run.State,
		History:           hist,
		Created:           run.Created,
		Version:           run.Version,
		EstimatedRunTime:  run.EstimatedRunTime(now).Seconds(),
		EstimatedLateness: run.EstimatedLateness(now).Seconds(),
	}
}

func toBucketResponse(b history.Bucket) BucketResponse {
	states := make([]StateSummaryResponse, len(b.States))
	for i, st := range b.States {
		states[i] = StateSummaryResponse{
			StateType:            string(st.StateType),
			StateName:            st.StateName,
			CountRuns:            st.CountRuns,
			SumEstimatedRunTime:  st.SumEstimatedRunTime.Seconds(),
			SumEstimatedLateness: st.SumEstimatedLateness.Seconds(),
		}
	}
	return BucketResponse{
		IntervalStart: b.IntervalStart,
		IntervalEnd:   b.IntervalEnd,
		States:        states,
	}
}
