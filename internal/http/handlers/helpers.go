package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Zajason/ChargeNET-sub000/internal/http/middleware"
	"github.com/Zajason/ChargeNET-sub000/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, reason, message string) {
	writeJSON(w, status, map[string]string{"error": message, "reason": reason})
}

// writeDomainError maps the service error taxonomy to HTTP statuses with
// stable reason codes, so callers can distinguish "pick another charger"
// from "pick another payment method".
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, service.ErrUserAlreadyReserved):
		writeError(w, http.StatusConflict, "user_already_reserved", err.Error())
	case errors.Is(err, service.ErrChargerAlreadyReserved):
		writeError(w, http.StatusConflict, "charger_already_reserved", err.Error())
	case errors.Is(err, service.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, service.ErrExpired):
		writeError(w, http.StatusGone, "expired", err.Error())
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "not the owner of this resource")
	case errors.Is(err, service.ErrPaymentDeclined):
		writeError(w, http.StatusPaymentRequired, "payment_declined", "payment pre-authorization declined")
	case errors.Is(err, service.ErrLockUnavailable):
		writeError(w, http.StatusServiceUnavailable, "lock_unavailable", "lock store unavailable, retry later")
	default:
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func requireUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing user identity")
		return 0, false
	}
	return userID, true
}
