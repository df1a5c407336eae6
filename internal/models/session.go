package models

import "time"

// Session statuses. RUNNING is the only non-terminal state.
const (
	SessionRunning           = "RUNNING"
	SessionCompleted         = "COMPLETED"
	SessionUserStopped       = "USER_STOPPED"
	SessionAutoStopped       = "AUTO_STOPPED"
	SessionInsufficientFunds = "INSUFFICIENT_FUNDS"
)

// Payment outcomes reported on finalized sessions.
const (
	PaymentNone     = "none"
	PaymentCaptured = "captured"
	PaymentFailed   = "failed"
)

// Session is a metered charging event. PricePerKWh and MaxKW are snapshotted
// from the charger at start so later pricing-engine updates cannot change the
// bill for a session already in flight.
type Session struct {
	ID            string     `db:"id" json:"id"`
	UserID        int64      `db:"user_id" json:"user_id"`
	ChargerID     string     `db:"charger_id" json:"charger_id"`
	ReservationID string     `db:"reservation_id" json:"reservation_id,omitempty"`
	StartedAt     time.Time  `db:"started_at" json:"started_at"`
	EndedAt       *time.Time `db:"ended_at" json:"ended_at,omitempty"`
	KWh           float64    `db:"kwh" json:"kwh"`
	MaxKWh        *float64   `db:"max_kwh" json:"max_kwh,omitempty"`
	MaxKW         float64    `db:"max_kw" json:"max_kw"`
	PricePerKWh   float64    `db:"price_per_kwh" json:"price_per_kwh"`
	CostEur       float64    `db:"cost_eur" json:"cost_eur"`
	Status        string     `db:"status" json:"status"`
	PaymentRef    string     `db:"payment_ref" json:"payment_ref,omitempty"`
	PaymentStatus string     `db:"payment_status" json:"payment_status"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// Terminal reports whether the session is in a final state.
func (s *Session) Terminal() bool {
	return s.Status != SessionRunning
}
