package service

import (
	"context"
	"time"

	"github.com/Zajason/ChargeNET-sub000/internal/models"
	redisstore "github.com/Zajason/ChargeNET-sub000/internal/redis"
	"github.com/Zajason/ChargeNET-sub000/internal/repository"
)

// ChargerReader is the durable charger read surface used by the coordinator
// and the session lifecycle.
type ChargerReader interface {
	GetByID(ctx context.Context, id string) (*models.Charger, error)
}

// ChargerStore adds the listing and operator write surface used by the
// chargers service.
type ChargerStore interface {
	ChargerReader
	List(ctx context.Context) ([]models.Charger, error)
	UpdateStatus(ctx context.Context, id, status string, now time.Time) error
	UpdatePrice(ctx context.Context, id string, pricePerKWh float64, now time.Time) error
	Upsert(ctx context.Context, charger *models.Charger, now time.Time) error
}

// ReservationStore is the durable reservation surface.
type ReservationStore interface {
	CreateWithChargerHold(ctx context.Context, res *models.Reservation) error
	GetByID(ctx context.Context, id string) (*models.Reservation, error)
	ActiveByUser(ctx context.Context, userID int64, now time.Time) (*models.Reservation, error)
	ActiveByUserAndCharger(ctx context.Context, userID int64, chargerID string, now time.Time) (*models.Reservation, error)
	Cancel(ctx context.Context, id, chargerID string, now time.Time) error
	ExpireStale(ctx context.Context, now time.Time) (int, error)
}

// SessionStore is the durable session surface.
type SessionStore interface {
	StartConsumingReservation(ctx context.Context, session *models.Session, reservationID string) error
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, id string) (*models.Session, error)
	UpdateEnergy(ctx context.Context, id string, kwh float64, now time.Time) error
	Finalize(ctx context.Context, id, chargerID string, upd repository.FinalizeUpdate) (bool, error)
	SetPaymentOutcome(ctx context.Context, id, paymentStatus string, insufficientFunds bool, now time.Time) error
	ListByUser(ctx context.Context, userID int64, limit int) ([]models.Session, error)
}

// ChargerLocks is the lock-store surface. Only the coordinator and the
// session lifecycle may write through it; every other component is a reader.
type ChargerLocks interface {
	Acquire(ctx context.Context, lock redisstore.ReservationLock, ttl time.Duration) error
	Release(ctx context.Context, userID int64, chargerID string) error
	Promote(ctx context.Context, userID int64, chargerID string) error
	ReleaseCharger(ctx context.Context, chargerID string) error
	SetChargerStatus(ctx context.Context, chargerID, status string, ttl time.Duration) error
	ChargerStatuses(ctx context.Context, chargerIDs []string) (map[string]string, error)
	UserReservedCharger(ctx context.Context, userID int64) (string, error)
	ChargerReservation(ctx context.Context, chargerID string) (*redisstore.ReservationLock, error)
}
