package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Zajason/ChargeNET-sub000/internal/models"
	"github.com/Zajason/ChargeNET-sub000/internal/payment"
	redisstore "github.com/Zajason/ChargeNET-sub000/internal/redis"
	"github.com/Zajason/ChargeNET-sub000/internal/repository"
)

// Reservation duration bounds in minutes.
const (
	DefaultReservationMinutes = 30
	MaxReservationMinutes     = 60
)

// ReservationsService is the reservation coordinator: it owns the atomic
// lock protocol and is the only component allowed to create or destroy
// reservation keys in the lock store.
type ReservationsService struct {
	chargers      ChargerReader
	reservations  ReservationStore
	locks         ChargerLocks
	gateway       payment.Gateway
	holdAmountEur float64
	logger        *zap.Logger
	now           func() time.Time
}

// NewReservationsService builds the coordinator.
func NewReservationsService(
	chargers ChargerReader,
	reservations ReservationStore,
	locks ChargerLocks,
	gateway payment.Gateway,
	holdAmountEur float64,
	logger *zap.Logger,
) *ReservationsService {
	return &ReservationsService{
		chargers:      chargers,
		reservations:  reservations,
		locks:         locks,
		gateway:       gateway,
		holdAmountEur: holdAmountEur,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// ReserveResult is returned to a successful Reserve caller.
type ReserveResult struct {
	ReservationID string    `json:"reservation_id"`
	ChargerID     string    `json:"charger_id"`
	ExpiresAt     time.Time `json:"expires_at"`
	PaymentRef    string    `json:"payment_ref,omitempty"`
}

func clampMinutes(minutes int) int {
	if minutes <= 0 {
		return DefaultReservationMinutes
	}
	if minutes > MaxReservationMinutes {
		return MaxReservationMinutes
	}
	return minutes
}

// Reserve grants a time-bounded exclusive hold on a charger. The sequence is
// pre-authorize, then one atomic lock-store transaction, then the durable
// write. The lock transaction is the linearization point: whichever caller
// lands first wins, the loser gets a distinguishable failure and the payment
// hold taken in step one is compensated. Reserve never retries on its own.
func (s *ReservationsService) Reserve(ctx context.Context, userID int64, chargerID string, minutes int) (*ReserveResult, error) {
	now := s.now()
	minutes = clampMinutes(minutes)

	charger, err := s.chargers.GetByID(ctx, chargerID)
	if errors.Is(err, repository.ErrChargerNotFound) {
		return nil, fmt.Errorf("%w: charger %s", ErrNotFound, chargerID)
	}
	if err != nil {
		return nil, err
	}
	if charger.Status == models.ChargerOutage {
		return nil, fmt.Errorf("%w: charger in outage", ErrConflict)
	}

	// Defense in depth only: the lock-store transaction below is the real
	// race guard across processes.
	if _, err := s.reservations.ActiveByUser(ctx, userID, now); err == nil {
		return nil, ErrUserAlreadyReserved
	} else if !errors.Is(err, repository.ErrReservationNotFound) {
		return nil, err
	}

	paymentRef, err := s.gateway.PreAuthorize(ctx, userID, s.holdAmountEur)
	if errors.Is(err, payment.ErrDeclined) {
		return nil, ErrPaymentDeclined
	}
	if err != nil {
		return nil, fmt.Errorf("payment preauthorize: %w", err)
	}

	ttl := time.Duration(minutes) * time.Minute
	expiresAt := now.Add(ttl)
	lock := redisstore.ReservationLock{
		UserID:      userID,
		ChargerID:   chargerID,
		ExpiresAtMs: expiresAt.UnixMilli(),
	}
	if err := s.locks.Acquire(ctx, lock, ttl); err != nil {
		s.compensateHold(ctx, paymentRef)
		switch {
		case errors.Is(err, redisstore.ErrUserAlreadyReserved):
			return nil, ErrUserAlreadyReserved
		case errors.Is(err, redisstore.ErrChargerAlreadyReserved):
			return nil, ErrChargerAlreadyReserved
		default:
			return nil, fmt.Errorf("%w: %v", ErrLockUnavailable, err)
		}
	}

	res := &models.Reservation{
		ID:         uuid.NewString(),
		UserID:     userID,
		ChargerID:  chargerID,
		StartsAt:   now,
		ExpiresAt:  expiresAt,
		Status:     models.ReservationActive,
		PaymentRef: paymentRef,
		CreatedAt:  now,
	}
	if err := s.reservations.CreateWithChargerHold(ctx, res); err != nil {
		// The lock is already held; its TTL is the safety net. The charger
		// self-releases at expiry even though the durable record is missing.
		s.logger.Error("durable reservation write failed after lock acquire",
			zap.String("charger_id", chargerID),
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("reservation created",
		zap.String("reservation_id", res.ID),
		zap.String("charger_id", chargerID),
		zap.Int64("user_id", userID),
		zap.Time("expires_at", expiresAt),
	)
	return &ReserveResult{
		ReservationID: res.ID,
		ChargerID:     chargerID,
		ExpiresAt:     expiresAt,
		PaymentRef:    paymentRef,
	}, nil
}

func (s *ReservationsService) compensateHold(ctx context.Context, ref string) {
	if ref == "" {
		return
	}
	if err := s.gateway.Cancel(ctx, ref); err != nil {
		s.logger.Warn("failed to cancel payment hold after lock failure",
			zap.String("payment_ref", ref),
			zap.Error(err),
		)
	}
}

// CancelReservation releases a held reservation early. Ownership is verified
// against the durable row, so the three lock-store operations do not need the
// cross-key atomicity of Reserve.
func (s *ReservationsService) CancelReservation(ctx context.Context, userID int64, chargerID string) error {
	now := s.now()

	res, err := s.reservations.ActiveByUserAndCharger(ctx, userID, chargerID, now)
	if errors.Is(err, repository.ErrReservationNotFound) {
		return fmt.Errorf("%w: no active reservation for charger %s", ErrNotFound, chargerID)
	}
	if err != nil {
		return err
	}

	if res.PaymentRef != "" {
		if err := s.gateway.Cancel(ctx, res.PaymentRef); err != nil {
			s.logger.Warn("failed to cancel payment hold on reservation cancel",
				zap.String("reservation_id", res.ID),
				zap.Error(err),
			)
		}
	}

	if err := s.reservations.Cancel(ctx, res.ID, chargerID, now); err != nil {
		if errors.Is(err, repository.ErrReservationNotFound) {
			return fmt.Errorf("%w: reservation no longer active", ErrNotFound)
		}
		return err
	}

	if err := s.locks.Release(ctx, userID, chargerID); err != nil {
		return fmt.Errorf("%w: %v", ErrLockUnavailable, err)
	}

	s.logger.Info("reservation cancelled",
		zap.String("reservation_id", res.ID),
		zap.String("charger_id", chargerID),
		zap.Int64("user_id", userID),
	)
	return nil
}

// ReconcileExpired runs the lazy durable sweep. It is invoked at the top of
// charger-listing reads rather than on a timer and is safe to run
// concurrently from multiple request handlers.
func (s *ReservationsService) ReconcileExpired(ctx context.Context) error {
	count, err := s.reservations.ExpireStale(ctx, s.now())
	if err != nil {
		return err
	}
	if count > 0 {
		s.logger.Info("expired stale reservations", zap.Int("count", count))
	}
	return nil
}
