package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"rakshak/internal/models"
	"rakshak/internal/sos"
	"rakshak/internal/utils"
	"rakshak/internal/validators"
	"rakshak/pkg/logger"
	"rakshak/pkg/storage"
)

// Controller is the slice of [sos.Controller] the control API drives.
type Controller interface {
	Toggle(ctx context.Context) (sos.Snapshot, error)
	Snapshot() sos.Snapshot
	SetUser(ctx context.Context, user *models.User) error
	SetCodeWord(ctx context.Context, phrase string) error
}

// EvidenceLister lists the artifacts stored for one session.
type EvidenceLister interface {
	List(ctx context.Context, sessionID string) ([]*storage.FileInfo, error)
}

type SOSHandler struct {
	controller  Controller
	evidence    EvidenceLister
	countryCode string
	logger      *logger.Logger
}

// NewSOSHandler creates the control API handler. evidence may be nil when
// media goes straight to the backend.
func NewSOSHandler(controller Controller, evidence EvidenceLister, countryCode string, log *logger.Logger) *SOSHandler {
	return &SOSHandler{
		controller:  controller,
		evidence:    evidence,
		countryCode: countryCode,
		logger:      log.WithComponent("control_api"),
	}
}

// Toggle activates or deactivates the SOS session
func (h *SOSHandler) Toggle(c *gin.Context) {
	snap, err := h.controller.Toggle(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	message := "SOS deactivated"
	if snap.State == sos.StateActive {
		message = "SOS activated"
	}
	utils.SuccessResponse(c, message, snap)
}

func (h *SOSHandler) GetStatus(c *gin.Context) {
	utils.SuccessResponse(c, "SOS status retrieved successfully", h.controller.Snapshot())
}

// GetEvidence lists stored artifacts for the session in ?session_id or the active one.
func (h *SOSHandler) GetEvidence(c *gin.Context) {
	if h.evidence == nil {
		utils.ErrorResponse(c, http.StatusNotFound, "EVIDENCE_NOT_AVAILABLE", "evidence is uploaded to the backend and not listed locally")
		return
	}

	sessionID := c.Query("session_id")
	if sessionID == "" {
		sessionID = h.controller.Snapshot().SessionID
	}
	if sessionID == "" {
		utils.BadRequestResponse(c, "session_id is required when no session is active")
		return
	}

	files, err := h.evidence.List(c.Request.Context(), sessionID)
	if err != nil {
		h.logger.WithError(err).WithSessionID(sessionID).Error("Failed to list evidence")
		utils.ErrorResponse(c, http.StatusBadGateway, "EVIDENCE_LIST_FAILED", "Failed to list evidence")
		return
	}
	if files == nil {
		files = []*storage.FileInfo{}
	}

	utils.SuccessResponse(c, "Evidence retrieved successfully", gin.H{
		"session_id": sessionID,
		"files":      files,
	})
}

// SetUser takes the login hand-off from the host app.
func (h *SOSHandler) SetUser(c *gin.Context) {
	var request validators.SetUserRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if errs := validators.ValidateSetUser(&request, h.countryCode); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.Map())
		return
	}

	if err := h.controller.SetUser(c.Request.Context(), request.ToUser()); err != nil {
		h.respondError(c, err)
		return
	}

	utils.SuccessResponse(c, "User set successfully", h.controller.Snapshot())
}

// ClearUser signs out. It is refused while a session is active or being
// started since the session could no longer be cancelled.
func (h *SOSHandler) ClearUser(c *gin.Context) {
	if snap := h.controller.Snapshot(); snap.State == sos.StateActive || snap.Processing {
		utils.ConflictResponse(c, utils.ErrSessionActive)
		return
	}
	if err := h.controller.SetUser(c.Request.Context(), nil); err != nil {
		h.respondError(c, err)
		return
	}
	utils.SuccessResponse(c, "User cleared successfully", nil)
}

func (h *SOSHandler) SetCodeWord(c *gin.Context) {
	var request validators.CodeWordRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if errs := validators.ValidateCodeWord(&request); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.Map())
		return
	}

	if err := h.controller.SetCodeWord(c.Request.Context(), request.CodeWord); err != nil {
		h.respondError(c, err)
		return
	}

	utils.SuccessResponse(c, "Code word updated successfully", nil)
}

func (h *SOSHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, sos.ErrBusy):
		utils.ErrorResponse(c, http.StatusConflict, "SOS_BUSY", utils.ErrBusy)
		return
	case errors.Is(err, sos.ErrNoUser):
		utils.ErrorResponse(c, http.StatusPreconditionFailed, "NO_USER", utils.ErrNoUser)
		return
	case errors.Is(err, sos.ErrSessionActive):
		utils.ConflictResponse(c, utils.ErrSessionActive)
		return
	case errors.Is(err, sos.ErrClosed):
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "AGENT_CLOSED", "agent is shutting down")
		return
	}

	kind := sos.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case sos.KindPermissionDenied:
		status = http.StatusForbidden
	case sos.KindLocationUnavailable:
		status = http.StatusServiceUnavailable
	case sos.KindBackendUnavailable:
		status = http.StatusBadGateway
	}

	code := "INTERNAL_ERROR"
	if kind != "" {
		code = strings.ToUpper(string(kind))
	}

	h.logger.WithError(err).WithField("kind", string(kind)).Error("SOS request failed")
	utils.ErrorResponse(c, status, code, err.Error())
}
