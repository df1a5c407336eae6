package models

import "time"

// Durable charger statuses. The durable column is the authoritative baseline;
// the lock-store overlay takes precedence at query time while a reservation or
// session holds the charger.
const (
	ChargerAvailable = "AVAILABLE"
	ChargerInUse     = "IN_USE"
	ChargerOutage    = "OUTAGE"
)

// Charger represents a physical charging point.
type Charger struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Latitude      float64   `db:"latitude" json:"latitude"`
	Longitude     float64   `db:"longitude" json:"longitude"`
	ConnectorType string    `db:"connector_type" json:"connector_type"`
	MaxKW         float64   `db:"max_kw" json:"max_kw"`
	PricePerKWh   float64   `db:"price_per_kwh" json:"price_per_kwh"`
	Status        string    `db:"status" json:"status"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}
