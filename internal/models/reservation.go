package models

import "time"

// Reservation statuses. ACTIVE is the only non-terminal state: a reservation
// is consumed into a session (EXPIRED), swept by lazy reconciliation
// (EXPIRED) or released early by its owner (CANCELLED).
const (
	ReservationActive    = "ACTIVE"
	ReservationExpired   = "EXPIRED"
	ReservationCancelled = "CANCELLED"
)

// Reservation is a time-bounded exclusive hold on a charger. The lock store
// enforces the at-most-one-per-user and at-most-one-per-charger invariants;
// the durable row mirrors them for history and defense in depth.
type Reservation struct {
	ID         string    `db:"id" json:"id"`
	UserID     int64     `db:"user_id" json:"user_id"`
	ChargerID  string    `db:"charger_id" json:"charger_id"`
	StartsAt   time.Time `db:"starts_at" json:"starts_at"`
	ExpiresAt  time.Time `db:"expires_at" json:"expires_at"`
	Status     string    `db:"status" json:"status"`
	PaymentRef string    `db:"payment_ref" json:"payment_ref,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}
