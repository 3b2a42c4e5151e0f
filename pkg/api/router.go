package api

import (
	"github.com/gm-agent-org/mcp-guard/pkg/api/middleware"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health (no auth required)
	s.engine.GET("/healthz", s.health)
	s.engine.GET("/api/openapi.json", s.openAPI)

	auth := middleware.Auth(s.config.APIKey)

	// Browser page and its form endpoint
	s.engine.SetHTMLTemplate(pageTemplate)
	page := s.engine.Group("/", auth)
	page.GET("/", s.index)
	page.POST("/decide/:id", s.decideForm)

	v1 := s.engine.Group("/api/v1", auth)
	v1.GET("/approvals", s.listApprovals)
	v1.GET("/approvals/:id", s.getApproval)
	v1.POST("/approvals/:id/decision", s.decide)

	v1.POST("/policy/reload", s.reloadPolicy)

	v1.GET("/cache", s.getCache)
	v1.DELETE("/cache", s.clearCache)

	v1.GET("/stats", s.stats)
}
