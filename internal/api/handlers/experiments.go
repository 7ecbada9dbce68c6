package handlers

import (
	"net/http"
	"time"

	"eth-economic-model/internal/api/models"
	"eth-economic-model/internal/engine"
	"eth-economic-model/internal/experiment"
	"eth-economic-model/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ExperimentHandler serves the experiment and parameter registries
type ExperimentHandler struct {
	log *logrus.Entry
}

func NewExperimentHandler(log *logrus.Entry) *ExperimentHandler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &ExperimentHandler{log: log}
}

// ListExperiments handles GET /api/v1/experiments
func (h *ExperimentHandler) ListExperiments(c *gin.Context) {
	names := experiment.Names()
	out := make([]models.ExperimentInfo, 0, len(names))
	for _, name := range names {
		exp, err := experiment.Get(name)
		if err != nil {
			h.log.WithError(err).WithField("experiment", name).Warn("skipping experiment")
			continue
		}
		n, err := engine.SubsetCount(exp.Parameters, exp.Sweep)
		if err != nil {
			h.log.WithError(err).WithField("experiment", name).Warn("skipping experiment")
			continue
		}
		info := models.ExperimentInfo{
			Name:        exp.Name,
			Description: exp.Description,
			Subsets:     n,
			Runs:        exp.Runs,
			Timesteps:   exp.Timesteps,
			Sweep:       string(exp.Sweep),
			Labels:      exp.Labels,
		}
		for _, s := range exp.Stochastic {
			info.Stochastic = append(info.Stochastic, s.Parameter)
		}
		out = append(out, info)
	}
	c.JSON(http.StatusOK, gin.H{"experiments": out})
}

// ListParameters handles GET /api/v1/parameters
func (h *ExperimentHandler) ListParameters(c *gin.Context) {
	specs := model.Parameters()
	out := make([]models.ParameterInfo, 0, len(specs))
	for _, s := range specs {
		out = append(out, models.ParameterInfo{
			Name:        s.Name,
			Kind:        string(s.Kind),
			Unit:        s.Unit,
			Description: s.Description,
			Default:     displayDefault(s.Default),
		})
	}
	c.JSON(http.StatusOK, gin.H{"parameters": out})
}

// displayDefault renders a default in JSON-friendly form. Processes are shown
// by their value at the first epoch of run 1.
func displayDefault(v any) any {
	switch d := v.(type) {
	case engine.Process:
		return d(1, 0)
	case time.Time:
		return d.Format("2006-01-02")
	case model.Stage:
		return d.String()
	default:
		return v
	}
}
