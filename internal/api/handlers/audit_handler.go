package handlers

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"smartqr/internal/api/middleware"
	"smartqr/internal/pkg/errors"
	"smartqr/internal/platform/audit"
)

type AuditHandler struct {
	logger *audit.Logger
}

func NewAuditHandler(logger *audit.Logger) *AuditHandler {
	return &AuditHandler{logger: logger}
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFrom(r.Context())
	if claims == nil {
		errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Authentication required", nil)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.logger.List(r.Context(), claims.UserID, limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to list audit logs")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to load audit logs", nil)
		return
	}
	errors.WriteJSON(w, http.StatusOK, entries)
}

// auditEntry fills the request facts shared by every management action.
func (h *QRCodeHandler) auditEntry(r *http.Request, userID, action, resourceID string, metadata map[string]interface{}) audit.Entry {
	return audit.Entry{
		UserID:       userID,
		Action:       action,
		ResourceType: audit.ResourceQRCode,
		ResourceID:   resourceID,
		Metadata:     metadata,
		IPAddress:    clientIP(r, h.Proxies),
		UserAgent:    r.UserAgent(),
	}
}
