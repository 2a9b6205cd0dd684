package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/triadworks/triad/pkg/fault"
	"github.com/triadworks/triad/pkg/models"
	"github.com/triadworks/triad/pkg/pipeline"
)

// createRun accepts a canonical Issue document and runs the pipeline
// synchronously, returning the terminal state.
func (s *Server) createRun(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 4<<20))
	if err != nil {
		s.renderError(c, fault.Newf(fault.KindInvalidInput, "read request body: %v", err))
		return
	}
	issue, err := models.ParseIssue(body)
	if err != nil {
		s.renderError(c, fault.New(fault.KindInvalidInput, err))
		return
	}

	state, err := s.runner.Run(c.Request.Context(), issue, pipeline.RunOptions{})
	if err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"run_id":      state.RunID,
		"verdict":     state.QA.Verdict,
		"output_file": state.OutputFile,
		"token_usage": state.Result.Metadata.TokenUsage,
	})
}

func (s *Server) listRuns(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			s.renderError(c, fault.Newf(fault.KindInvalidInput, "limit must be a positive integer, got %q", raw))
			return
		}
		limit = v
	}

	rows, err := s.runs.ListRuns(c.Request.Context(), limit)
	if err != nil {
		s.renderError(c, err)
		return
	}
	if rows == nil {
		rows = []models.RunRow{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": rows, "count": len(rows)})
}

func (s *Server) getRun(c *gin.Context) {
	row, err := s.runs.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}

func (s *Server) getResult(c *gin.Context) {
	result, err := s.runs.GetResult(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
