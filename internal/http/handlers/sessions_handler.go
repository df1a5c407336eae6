package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/Zajason/ChargeNET-sub000/internal/service"
)

// SessionsHandler exposes the session lifecycle over HTTP.
type SessionsHandler struct {
	svc    *service.SessionsService
	logger *zap.Logger
}

// NewSessionsHandler builds handler set.
func NewSessionsHandler(svc *service.SessionsService, logger *zap.Logger) *SessionsHandler {
	return &SessionsHandler{svc: svc, logger: logger}
}

type startSessionRequest struct {
	ReservationID       string   `json:"reservation_id"`
	BatteryCapacityKWh  *float64 `json:"battery_capacity_kwh,omitempty"`
	CurrentBatteryLevel *float64 `json:"current_battery_level,omitempty"`
}

// Start handles POST /sessions/start.
func (h *SessionsHandler) Start(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json")
		return
	}
	if req.ReservationID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "reservation_id is required")
		return
	}

	view, err := h.svc.Start(r.Context(), service.StartInput{
		UserID:              userID,
		ReservationID:       req.ReservationID,
		BatteryCapacityKWh:  req.BatteryCapacityKWh,
		CurrentBatteryLevel: req.CurrentBatteryLevel,
	})
	if err != nil {
		h.logger.Debug("session start rejected", zap.Int64("user_id", userID), zap.Error(err))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// Status handles GET /sessions/status?id={sessionID}.
func (h *SessionsHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	sessionID := r.URL.Query().Get("id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "id is required")
		return
	}

	view, err := h.svc.Status(r.Context(), userID, sessionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type stopSessionRequest struct {
	SessionID string `json:"session_id"`
}

// Stop handles POST /sessions/stop.
func (h *SessionsHandler) Stop(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req stopSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "session_id is required")
		return
	}

	view, err := h.svc.Stop(r.Context(), userID, req.SessionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// History handles GET /sessions/me.
func (h *SessionsHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	sessions, err := h.svc.History(r.Context(), userID, 50)
	if err != nil {
		h.logger.Error("failed to fetch session history", zap.Int64("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "failed to fetch sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}
