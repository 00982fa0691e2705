package handlers

import (
	"net/http"

	"github.com/boxinggym/walkin-backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// JobsHandler lets admins run sweeps by hand and see their schedule
type JobsHandler struct {
	jobs    JobRunner
	auditor services.Auditor
	logger  *logrus.Logger
}

// NewJobsHandler creates a new JobsHandler. auditor may be nil.
func NewJobsHandler(jobs JobRunner, auditor services.Auditor, logger *logrus.Logger) *JobsHandler {
	return &JobsHandler{jobs: jobs, auditor: auditor, logger: logger}
}

// RegisterRoutes mounts the job endpoints on rg
func (h *JobsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.Status)
	rg.POST("/expire-cash", h.run(services.JobCashExpiry))
	rg.POST("/no-shows", h.run(services.JobNoShows))
}

// Status lists the scheduled jobs with their last run
// @Router /api/v1/admin/jobs [get]
func (h *JobsHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": h.jobs.GetJobStatus()})
}

func (h *JobsHandler) run(job string) gin.HandlerFunc {
	return func(c *gin.Context) {
		run, err := h.jobs.RunNow(job)
		if err != nil {
			badRequest(c, err.Error())
			return
		}

		if h.auditor != nil {
			h.auditor.LogStaffAction(c.Request.Context(), services.AuditSweepTriggered, "job", uuid.Nil, requestMeta(c), map[string]interface{}{
				"job":      job,
				"affected": run.Affected,
				"error":    run.Error,
			})
		}

		status := http.StatusOK
		if run.Error != "" {
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{"job": job, "run": run})
	}
}
