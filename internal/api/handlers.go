package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/optiscale/pulse/internal/audit"
	"github.com/optiscale/pulse/internal/record"
)

const defaultPageSize = 100

// triggerRequest is the body of POST /api/v1/collections.
type triggerRequest struct {
	CustomerID string   `json:"customer_id" binding:"required"`
	Provider   string   `json:"provider" binding:"required"`
	DataTypes  []string `json:"data_types"`
}

// triggerCollection starts a collection run. By default the run is
// queued and a task id is returned immediately; with ?sync=true the
// handler blocks and returns the final result.
func (s *Server) triggerCollection(c *gin.Context) {
	var req triggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if c.Query("sync") == "true" {
		job, result := s.trigger.RunSync(c.Request.Context(), req.Provider, req.CustomerID, req.DataTypes)
		status := http.StatusOK
		if !result.Success {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{
			"task_id": job.TaskID,
			"status":  string(job.State),
			"result":  result,
		})
		return
	}

	job, err := s.trigger.Submit(req.Provider, req.CustomerID, req.DataTypes)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"task_id": job.TaskID,
		"status":  string(job.State),
	})
}

// getCollection returns the current state of a collection task.
func (s *Server) getCollection(c *gin.Context) {
	job, ok := s.trigger.Status(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// getCollectionResult returns the result of a finished collection task.
func (s *Server) getCollectionResult(c *gin.Context) {
	job, ok := s.trigger.Status(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	if job.Result == nil {
		c.JSON(http.StatusConflict, gin.H{
			"task_id": job.TaskID,
			"status":  string(job.State),
			"error":   "result not available yet",
		})
		return
	}
	c.JSON(http.StatusOK, job.Result)
}

// listMetrics returns recently stored records of one kind.
func (s *Server) listMetrics(c *gin.Context) {
	kind := record.Kind(c.Param("kind"))
	customerID := c.Query("customer_id")
	limit := queryInt(c, "limit", defaultPageSize)

	ctx := c.Request.Context()
	var (
		payload any
		err     error
	)
	switch kind {
	case record.KindCost:
		payload, err = s.reader.RecentCost(ctx, customerID, limit)
	case record.KindPerformance:
		payload, err = s.reader.RecentPerformance(ctx, customerID, limit)
	case record.KindResource:
		payload, err = s.reader.RecentResource(ctx, customerID, limit)
	case record.KindApplication:
		payload, err = s.reader.RecentApplication(ctx, customerID, limit)
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "unknown metric kind: " + c.Param("kind"),
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"kind":    string(kind),
		"metrics": payload,
	})
}

// listHistory returns past collection attempts from the audit log.
func (s *Server) listHistory(c *gin.Context) {
	filter := audit.HistoryFilter{
		CustomerID: c.Query("customer_id"),
		Provider:   c.Query("provider"),
		Status:     strings.ToLower(c.Query("status")),
		Limit:      queryInt(c, "limit", defaultPageSize),
	}

	attempts, err := s.history.History(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":    len(attempts),
		"attempts": attempts,
	})
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
