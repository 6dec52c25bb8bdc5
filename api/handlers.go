package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleListRuns(c *gin.Context) {
	scenarioID := strings.TrimSpace(c.Query("scenario"))

	ids, err := s.storage.ListRuns(scenarioID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": ids})
}

func (s *Server) handleGetRun(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing run id"})
		return
	}

	suite, err := s.storage.LoadSuiteResult(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found: " + id})
		return
	}
	c.JSON(http.StatusOK, suite)
}

func (s *Server) handleGetTrace(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing trace id"})
		return
	}

	// Prefer the recorded (redacted) form; fall back to the raw trace.
	if recorded, err := s.storage.LoadRecordedTrace(id); err == nil {
		c.JSON(http.StatusOK, recorded)
		return
	}
	trace, err := s.storage.LoadTrace(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "trace not found: " + id})
		return
	}
	c.JSON(http.StatusOK, trace)
}

func (s *Server) handleHistory(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "history index not configured"})
		return
	}

	scenarioID := strings.TrimSpace(c.Param("scenario"))
	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	runs, err := s.history.History(c.Request.Context(), scenarioID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"scenario": scenarioID, "runs": runs})
}
