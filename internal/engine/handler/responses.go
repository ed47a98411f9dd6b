package handler

import (
	"time"

	"heirloom/internal/engine"
)

// OutcomeResponse is the HTTP response for activation endpoints.
type OutcomeResponse struct {
	UserID       string                `json:"user_id"`
	Reason       string                `json:"reason,omitempty"`
	Triggered    int                   `json:"triggered"`
	Awaiting     int                   `json:"awaiting"`
	VaultResults []VaultResultResponse `json:"vault_results,omitempty"`
}

// VaultResultResponse is one vault's disposition result.
type VaultResultResponse struct {
	VaultID   string    `json:"vault_id"`
	Category  string    `json:"category"`
	Action    string    `json:"action"`
	Success   bool      `json:"success"`
	Skipped   bool      `json:"skipped,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// FromOutcome converts a domain UserOutcome to an HTTP response.
func FromOutcome(outcome *engine.UserOutcome) *OutcomeResponse {
	resp := &OutcomeResponse{
		UserID:    outcome.UserID.String(),
		Reason:    outcome.Reason,
		Triggered: outcome.Triggered,
		Awaiting:  outcome.Awaiting,
	}
	for _, r := range outcome.VaultResults {
		resp.VaultResults = append(resp.VaultResults, VaultResultResponse{
			VaultID:   r.VaultID.String(),
			Category:  r.Category.String(),
			Action:    r.Action,
			Success:   r.Success,
			Skipped:   r.Skipped,
			Error:     r.Error,
			Timestamp: r.Timestamp,
		})
	}
	return resp
}
