package api

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/gm-agent-org/mcp-guard/pkg/api/dto"
	"github.com/gm-agent-org/mcp-guard/pkg/api/middleware"
	"github.com/gm-agent-org/mcp-guard/pkg/consent"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, dto.HealthResponse{Status: "ok", Version: Version})
}

func (s *Server) openAPI(c *gin.Context) {
	c.Data(http.StatusOK, "application/json", []byte(openAPISchema))
}

func (s *Server) listApprovals(c *gin.Context) {
	c.JSON(http.StatusOK, dto.ApprovalListResponse{Approvals: s.backend.Approvals.List()})
}

func (s *Server) getApproval(c *gin.Context) {
	a, ok := s.backend.Approvals.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "approval not found"})
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) decide(c *gin.Context) {
	var req dto.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "approve (bool) is required"})
		return
	}
	id := c.Param("id")
	if !s.submit(c, id, *req.Approve) {
		return
	}
	status := consent.StatusDenied
	if *req.Approve {
		status = consent.StatusApproved
	}
	c.JSON(http.StatusOK, dto.DecisionResponse{ID: id, Status: status})
}

// decideForm handles the page's approve/deny buttons and sends the browser
// back to the page.
func (s *Server) decideForm(c *gin.Context) {
	var approve bool
	switch {
	case c.Query("approve") != "":
		approve = true
	case c.Query("deny") != "":
		approve = false
	default:
		c.String(http.StatusBadRequest, "approve or deny is required")
		return
	}
	if !s.submit(c, c.Param("id"), approve) {
		return
	}

	back := "/"
	if key := c.Query(middleware.APIKeyQuery); key != "" {
		back += "?" + url.Values{middleware.APIKeyQuery: {key}}.Encode()
	}
	c.Redirect(http.StatusSeeOther, back)
}

// submit records a decision and writes the error response when it fails.
func (s *Server) submit(c *gin.Context, id string, approve bool) bool {
	err := s.backend.Approvals.Decide(id, approve)
	switch {
	case err == nil:
		return true
	case errors.Is(err, consent.ErrNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "approval not found or already decided"})
	default:
		s.log.Error("failed to record decision", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "failed to record decision"})
	}
	return false
}

func (s *Server) reloadPolicy(c *gin.Context) {
	if s.backend.Reloader == nil {
		c.JSON(http.StatusConflict, dto.ErrorResponse{Error: "no policy file configured"})
		return
	}
	rs, err := s.backend.Reloader.Reload()
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, dto.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.ReloadResponse{Path: s.backend.Reloader.Path(), Rules: rs.Len()})
}

func (s *Server) getCache(c *gin.Context) {
	s.backend.Cache.Prune()
	c.JSON(http.StatusOK, dto.CacheResponse{
		Entries:    s.backend.Cache.Len(),
		TTLSeconds: int64(s.backend.Cache.TTL().Seconds()),
	})
}

func (s *Server) clearCache(c *gin.Context) {
	n := s.backend.Cache.Len()
	s.backend.Cache.Clear()
	s.log.Info("approval cache cleared", "entries", n)
	c.JSON(http.StatusOK, dto.ClearResponse{Cleared: n})
}

func (s *Server) stats(c *gin.Context) {
	resp := dto.StatsResponse{
		Pending:      len(s.backend.Approvals.List()),
		CacheEntries: s.backend.Cache.Len(),
	}
	if s.backend.Stats != nil {
		resp.Stats = s.backend.Stats()
	}
	c.JSON(http.StatusOK, resp)
}
