package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/Zajason/ChargeNET-sub000/internal/service"
)

// MaintenanceHandler holds the internal endpoints for reservation-less
// sessions, used by operators and test rigs.
type MaintenanceHandler struct {
	svc    *service.SessionsService
	logger *zap.Logger
}

// NewMaintenanceHandler builds handler set.
func NewMaintenanceHandler(svc *service.SessionsService, logger *zap.Logger) *MaintenanceHandler {
	return &MaintenanceHandler{svc: svc, logger: logger}
}

type maintenanceStartRequest struct {
	UserID    int64  `json:"user_id"`
	ChargerID string `json:"charger_id"`
}

// StartSession handles POST /internal/maintenance/session-start.
func (h *MaintenanceHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req maintenanceStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json")
		return
	}
	if req.ChargerID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "charger_id is required")
		return
	}

	view, err := h.svc.StartMaintenance(r.Context(), service.MaintenanceStartInput{
		UserID:    req.UserID,
		ChargerID: req.ChargerID,
	})
	if err != nil {
		h.logger.Error("maintenance session start failed", zap.Error(err))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, view)
}

type maintenanceStopRequest struct {
	SessionID string `json:"session_id"`
}

// StopSession handles POST /internal/maintenance/session-stop.
func (h *MaintenanceHandler) StopSession(w http.ResponseWriter, r *http.Request) {
	var req maintenanceStopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "session_id is required")
		return
	}

	view, err := h.svc.StopMaintenance(r.Context(), req.SessionID)
	if err != nil {
		h.logger.Error("maintenance session stop failed", zap.Error(err))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, view)
}
