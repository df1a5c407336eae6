package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/Zajason/ChargeNET-sub000/internal/http/middleware"
	"github.com/Zajason/ChargeNET-sub000/internal/models"
	"github.com/Zajason/ChargeNET-sub000/internal/service"
)

// ChargersHandler serves charger listings and the overlay side-channel.
type ChargersHandler struct {
	svc    *service.ChargersService
	logger *zap.Logger
}

// NewChargersHandler builds handler set.
func NewChargersHandler(svc *service.ChargersService, logger *zap.Logger) *ChargersHandler {
	return &ChargersHandler{svc: svc, logger: logger}
}

// List handles GET /chargers. The user identity is optional here; when
// present the response marks the charger the caller has reserved.
func (h *ChargersHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	views, err := h.svc.List(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list chargers", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "failed to list chargers")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"chargers": views})
}

// OverlayStatus handles GET /chargers/status?ids=a,b,c.
func (h *ChargersHandler) OverlayStatus(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("ids")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "ids is required")
		return
	}

	statuses, err := h.svc.OverlayStatuses(r.Context(), strings.Split(raw, ","))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "lock_unavailable", "lock store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"statuses": statuses})
}

type outageRequest struct {
	ChargerID string `json:"charger_id"`
	Outage    bool   `json:"outage"`
}

// SetOutage handles POST /internal/chargers/outage.
func (h *ChargersHandler) SetOutage(w http.ResponseWriter, r *http.Request) {
	var req outageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json")
		return
	}
	if req.ChargerID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "charger_id is required")
		return
	}

	if err := h.svc.SetOutage(r.Context(), req.ChargerID, req.Outage); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type priceRequest struct {
	ChargerID   string  `json:"charger_id"`
	PricePerKWh float64 `json:"price_per_kwh"`
}

// UpdatePrice handles POST /internal/pricing/price, the pricing engine's
// write surface.
func (h *ChargersHandler) UpdatePrice(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json")
		return
	}
	if req.ChargerID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "charger_id is required")
		return
	}

	if err := h.svc.UpdatePrice(r.Context(), req.ChargerID, req.PricePerKWh); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Upsert handles POST /internal/chargers, the maintenance seeding path.
func (h *ChargersHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var charger models.Charger
	if err := json.NewDecoder(r.Body).Decode(&charger); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json")
		return
	}

	if err := h.svc.Upsert(r.Context(), &charger); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "id": charger.ID})
}
