package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"vault-guard/internal/freeze"
	"vault-guard/internal/risk"
	"vault-guard/internal/service"
	"vault-guard/internal/settings"
	"vault-guard/internal/storage"
	"vault-guard/internal/timelock"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// Ordered: the first match wins.
var errorMappings = []errorMapping{
	{risk.ErrInvalidIntent, http.StatusBadRequest, "invalid_intent"},
	{service.ErrInvalidAccount, http.StatusBadRequest, "invalid_account"},
	{freeze.ErrInvalidDuration, http.StatusBadRequest, "invalid_duration"},
	{settings.ErrInvalidSettings, http.StatusBadRequest, "invalid_settings"},
	{timelock.ErrInvalidDelay, http.StatusUnprocessableEntity, "invalid_delay"},
	{timelock.ErrNotFound, http.StatusNotFound, "not_found"},
	{settings.ErrGuardianNotFound, http.StatusNotFound, "not_found"},
	{service.ErrNotificationNotFound, http.StatusNotFound, "not_found"},
	{timelock.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{timelock.ErrNotReady, http.StatusConflict, "not_ready"},
	{timelock.ErrNotQueueable, http.StatusConflict, "not_queueable"},
	{timelock.ErrVaultFrozen, http.StatusLocked, "vault_frozen"},
	{storage.ErrNotConfigured, http.StatusServiceUnavailable, "storage_unavailable"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
}

func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

func writeError(c *gin.Context, err error) {
	status, code := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		message = "An unexpected error occurred"
	}
	c.JSON(status, gin.H{
		"error":   code,
		"message": message,
	})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid_request",
		"message": message,
	})
}
