package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/Zajason/ChargeNET-sub000/internal/service"
)

// ReservationsHandler exposes the reservation coordinator over HTTP.
type ReservationsHandler struct {
	svc    *service.ReservationsService
	logger *zap.Logger
}

// NewReservationsHandler builds handler set.
func NewReservationsHandler(svc *service.ReservationsService, logger *zap.Logger) *ReservationsHandler {
	return &ReservationsHandler{svc: svc, logger: logger}
}

type reserveRequest struct {
	ChargerID string `json:"charger_id"`
	Minutes   int    `json:"minutes"`
}

// Reserve handles POST /reservations.
func (h *ReservationsHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req reserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json")
		return
	}
	if req.ChargerID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "charger_id is required")
		return
	}

	result, err := h.svc.Reserve(r.Context(), userID, req.ChargerID, req.Minutes)
	if err != nil {
		h.logger.Debug("reserve rejected", zap.Int64("user_id", userID), zap.Error(err))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

type cancelRequest struct {
	ChargerID string `json:"charger_id"`
}

// Cancel handles POST /reservations/cancel.
func (h *ReservationsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json")
		return
	}
	if req.ChargerID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "charger_id is required")
		return
	}

	if err := h.svc.CancelReservation(r.Context(), userID, req.ChargerID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}
