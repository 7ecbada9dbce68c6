package handlers

import (
	"errors"
	"math"
	"net/http"
	"time"

	"eth-economic-model/internal/api/models"
	"eth-economic-model/internal/experiment"
	"eth-economic-model/internal/jobs"
	"eth-economic-model/internal/postprocess"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const arrowStreamType = "application/vnd.apache.arrow.stream"

// SimulationHandler submits experiments to the job queue and serves results
type SimulationHandler struct {
	queue *jobs.Queue
	log   *logrus.Entry
}

func NewSimulationHandler(queue *jobs.Queue, log *logrus.Entry) *SimulationHandler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &SimulationHandler{queue: queue, log: log}
}

// CreateSimulation handles POST /api/v1/simulations
func (h *SimulationHandler) CreateSimulation(c *gin.Context) {
	var req models.SimulationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "INVALID_REQUEST", err)
		return
	}

	exp, err := experiment.Get(req.Experiment)
	if err != nil {
		abortError(c, http.StatusBadRequest, "UNKNOWN_EXPERIMENT", err)
		return
	}
	overrides, err := req.Scenario.Overrides()
	if err != nil {
		abortError(c, http.StatusBadRequest, "INVALID_SCENARIO", err)
		return
	}
	if err := exp.Apply(overrides); err != nil {
		abortError(c, http.StatusBadRequest, "INVALID_SCENARIO", err)
		return
	}

	id, err := h.queue.Submit(exp)
	switch {
	case errors.Is(err, jobs.ErrQueueFull), errors.Is(err, jobs.ErrClosed):
		abortError(c, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE", err)
		return
	case err != nil:
		abortError(c, http.StatusBadRequest, "INVALID_EXPERIMENT", err)
		return
	}

	job, _ := h.queue.Get(id)
	c.Header("Location", "/api/v1/simulations/"+id)
	c.JSON(http.StatusAccepted, toResponse(job, false))
}

// ListSimulations handles GET /api/v1/simulations
func (h *SimulationHandler) ListSimulations(c *gin.Context) {
	list := h.queue.List()
	out := models.SimulationListResponse{Simulations: make([]models.SimulationResponse, 0, len(list))}
	for _, j := range list {
		out.Simulations = append(out.Simulations, toResponse(j, false))
	}
	c.JSON(http.StatusOK, out)
}

// GetSimulation handles GET /api/v1/simulations/:id
func (h *SimulationHandler) GetSimulation(c *gin.Context) {
	job, ok := h.queue.Get(c.Param("id"))
	if !ok {
		abortError(c, http.StatusNotFound, "NOT_FOUND", jobs.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, toResponse(job, true))
}

// GetTrajectory handles GET /api/v1/simulations/:id/trajectory
func (h *SimulationHandler) GetTrajectory(c *gin.Context) {
	var q models.TrajectoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		abortError(c, http.StatusBadRequest, "INVALID_REQUEST", err)
		return
	}
	job, ok := h.queue.Get(c.Param("id"))
	if !ok {
		abortError(c, http.StatusNotFound, "NOT_FOUND", jobs.ErrNotFound)
		return
	}
	if job.Output == nil || job.Output.Table == nil {
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:    "NO_TRAJECTORY",
				Message: "simulation has no trajectory table",
				Details: map[string]interface{}{"status": job.Status},
			},
		})
		return
	}

	table := filterTable(job.Output.Table, q.Subset, q.Run)
	log := h.log.WithFields(logrus.Fields{"job": job.ID, "rows": table.NumRows()})
	switch q.Format {
	case "", "json":
		c.JSON(http.StatusOK, gin.H{"columns": table.Names(), "rows": jsonRows(table)})
	case "csv":
		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", `attachment; filename="`+job.ID+`.csv"`)
		c.Status(http.StatusOK)
		if err := table.WriteCSV(c.Writer); err != nil {
			log.WithError(err).Error("failed to write csv")
		}
	case "arrow":
		c.Header("Content-Type", arrowStreamType)
		c.Status(http.StatusOK)
		if err := table.WriteArrow(c.Writer); err != nil {
			log.WithError(err).Error("failed to write arrow stream")
		}
	default:
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:    "INVALID_FORMAT",
				Message: "format must be json, csv or arrow",
				Details: map[string]interface{}{"format": q.Format},
			},
		})
	}
}

// CancelSimulation handles DELETE /api/v1/simulations/:id
func (h *SimulationHandler) CancelSimulation(c *gin.Context) {
	id := c.Param("id")
	switch err := h.queue.Cancel(id); {
	case errors.Is(err, jobs.ErrNotFound):
		abortError(c, http.StatusNotFound, "NOT_FOUND", err)
		return
	case errors.Is(err, jobs.ErrFinished):
		abortError(c, http.StatusConflict, "ALREADY_FINISHED", err)
		return
	case err != nil:
		abortError(c, http.StatusInternalServerError, "CANCEL_ERROR", err)
		return
	}
	job, _ := h.queue.Get(id)
	c.JSON(http.StatusAccepted, toResponse(job, false))
}

func filterTable(t *postprocess.Table, subset, run *int) *postprocess.Table {
	if subset == nil && run == nil {
		return t
	}
	subsets, runs := t.Ints("subset"), t.Ints("run")
	return t.Select(func(i int) bool {
		if subset != nil && subsets[i] != int64(*subset) {
			return false
		}
		return run == nil || runs[i] == int64(*run)
	})
}

// jsonRows renders table rows with non-finite floats as null.
func jsonRows(t *postprocess.Table) []map[string]any {
	rows := t.Rows()
	for _, row := range rows {
		for k, v := range row {
			if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
				row[k] = nil
			}
		}
	}
	return rows
}

func toResponse(j jobs.Job, detail bool) models.SimulationResponse {
	resp := models.SimulationResponse{
		ID:          j.ID,
		Experiment:  j.Experiment,
		Status:      string(j.Status),
		Error:       j.Error,
		SubmittedAt: j.SubmittedAt,
		StartedAt:   timePtr(j.StartedAt),
		FinishedAt:  timePtr(j.FinishedAt),
	}
	if !detail || j.Output == nil || j.Output.Result == nil {
		return resp
	}

	res := j.Output.Result
	result := &models.SimulationResult{
		Subsets:         res.Subsets,
		Runs:            res.Runs,
		Timesteps:       res.Timesteps,
		Rows:            len(res.Rows),
		DurationSeconds: j.Output.Duration.Seconds(),
	}
	if exp := j.Output.Experiment; exp != nil {
		for s := 0; s < res.Subsets; s++ {
			result.Labels = append(result.Labels, exp.Label(s))
		}
	}
	for _, f := range res.Failures {
		result.Failures = append(result.Failures, models.FailureInfo{
			Subset:   f.Subset,
			Run:      f.Run,
			Timestep: f.Timestep,
			Block:    f.Block,
			Message:  f.Err.Error(),
		})
	}
	resp.Result = result
	resp.Summaries = j.Output.Summaries
	return resp
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func abortError(c *gin.Context, status int, code string, err error) {
	c.AbortWithStatusJSON(status, models.ErrorResponse{
		Error: models.ErrorDetail{
			Code:    code,
			Message: err.Error(),
		},
	})
}
