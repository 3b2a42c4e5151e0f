package dto

import (
	"github.com/gm-agent-org/mcp-guard/pkg/consent"
	"github.com/gm-agent-org/mcp-guard/pkg/gateway"
)

// HealthResponse is the response for health check.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ApprovalListResponse lists pending approvals, oldest first.
type ApprovalListResponse struct {
	Approvals []consent.Approval `json:"approvals"`
}

// DecisionRequest is the body of a decision submission.
type DecisionRequest struct {
	Approve *bool `json:"approve" binding:"required"`
}

// DecisionResponse echoes an accepted decision.
type DecisionResponse struct {
	ID     string         `json:"id"`
	Status consent.Status `json:"status"`
}

// ReloadResponse reports the rule set installed by a reload.
type ReloadResponse struct {
	Path  string `json:"path"`
	Rules int    `json:"rules"`
}

// CacheResponse describes the approval cache.
type CacheResponse struct {
	Entries    int   `json:"entries"`
	TTLSeconds int64 `json:"ttl_seconds"`
}

// ClearResponse reports how many cache entries were dropped.
type ClearResponse struct {
	Cleared int `json:"cleared"`
}

// StatsResponse reports gateway traffic and queue sizes.
type StatsResponse struct {
	gateway.Stats
	Pending      int `json:"pending"`
	CacheEntries int `json:"cache_entries"`
}
