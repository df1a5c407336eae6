package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Zajason/ChargeNET-sub000/internal/models"
	redisstore "github.com/Zajason/ChargeNET-sub000/internal/redis"
	"github.com/Zajason/ChargeNET-sub000/internal/repository"
)

// Reconciler is the lazy-sweep hook invoked before listing reads.
type Reconciler interface {
	ReconcileExpired(ctx context.Context) error
}

// ChargersService serves charger listings with the live lock-store overlay
// layered over the durable baseline, plus the operator and pricing-engine
// write surfaces.
type ChargersService struct {
	chargers   ChargerStore
	locks      ChargerLocks
	reconciler Reconciler
	logger     *zap.Logger
	now        func() time.Time
}

// NewChargersService builds the service.
func NewChargersService(chargers ChargerStore, locks ChargerLocks, reconciler Reconciler, logger *zap.Logger) *ChargersService {
	return &ChargersService{
		chargers:   chargers,
		locks:      locks,
		reconciler: reconciler,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ChargerView is a charger with its effective (overlay-resolved) status.
type ChargerView struct {
	models.Charger
	LiveStatus    string     `json:"live_status"`
	ReservedBy    bool       `json:"reserved_by_you,omitempty"`
	ReservedUntil *time.Time `json:"reserved_until,omitempty"`
}

// List returns all chargers with overlay statuses resolved at query time.
// The lazy reconciliation sweep runs first; its failure only degrades the
// durable baseline freshness and never fails the read.
func (s *ChargersService) List(ctx context.Context, userID int64) ([]ChargerView, error) {
	if err := s.reconciler.ReconcileExpired(ctx); err != nil {
		s.logger.Warn("lazy reconciliation failed", zap.Error(err))
	}

	chargers, err := s.chargers.List(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(chargers))
	for _, c := range chargers {
		ids = append(ids, c.ID)
	}

	overlay, err := s.locks.ChargerStatuses(ctx, ids)
	if err != nil {
		s.logger.Warn("failed to read status overlay", zap.Error(err))
		overlay = map[string]string{}
	}

	reservedCharger := ""
	if userID != 0 {
		reservedCharger, err = s.locks.UserReservedCharger(ctx, userID)
		if err != nil {
			s.logger.Warn("failed to read user reservation key", zap.Error(err))
			reservedCharger = ""
		}
	}

	var reservedUntil *time.Time
	if reservedCharger != "" {
		lock, err := s.locks.ChargerReservation(ctx, reservedCharger)
		if err != nil {
			s.logger.Warn("failed to read reservation payload", zap.Error(err))
		} else if lock != nil {
			until := time.UnixMilli(lock.ExpiresAtMs).UTC()
			reservedUntil = &until
		}
	}

	views := make([]ChargerView, 0, len(chargers))
	for _, c := range chargers {
		live, ok := overlay[c.ID]
		if !ok {
			live = strings.ToLower(c.Status)
		}
		view := ChargerView{
			Charger:    c,
			LiveStatus: live,
			ReservedBy: c.ID == reservedCharger,
		}
		if view.ReservedBy {
			view.ReservedUntil = reservedUntil
		}
		views = append(views, view)
	}
	return views, nil
}

// OverlayStatuses exposes the lock-store status overlay for the given ids.
// Read side-channel only: results are never persisted back.
func (s *ChargersService) OverlayStatuses(ctx context.Context, chargerIDs []string) (map[string]string, error) {
	return s.locks.ChargerStatuses(ctx, chargerIDs)
}

// UserReservedCharger returns the charger currently reserved by the user,
// or "" when none.
func (s *ChargersService) UserReservedCharger(ctx context.Context, userID int64) (string, error) {
	return s.locks.UserReservedCharger(ctx, userID)
}

// SetOutage flags a charger as out of service (or back in service) in both
// the durable baseline and the overlay. OUTAGE blocks new reservations.
func (s *ChargersService) SetOutage(ctx context.Context, chargerID string, outage bool) error {
	now := s.now()

	durable, live := models.ChargerAvailable, redisstore.StatusAvailable
	if outage {
		durable, live = models.ChargerOutage, redisstore.StatusOutage
	}

	if err := s.chargers.UpdateStatus(ctx, chargerID, durable, now); err != nil {
		if errors.Is(err, repository.ErrChargerNotFound) {
			return fmt.Errorf("%w: charger %s", ErrNotFound, chargerID)
		}
		return err
	}
	if err := s.locks.SetChargerStatus(ctx, chargerID, live, 0); err != nil {
		return fmt.Errorf("%w: %v", ErrLockUnavailable, err)
	}

	s.logger.Info("charger outage flag updated",
		zap.String("charger_id", chargerID),
		zap.Bool("outage", outage),
	)
	return nil
}

// UpdatePrice is the pricing engine's write surface. It touches the price
// column only; status is out of its reach.
func (s *ChargersService) UpdatePrice(ctx context.Context, chargerID string, pricePerKWh float64) error {
	if pricePerKWh <= 0 {
		return fmt.Errorf("%w: price must be positive", ErrConflict)
	}
	if err := s.chargers.UpdatePrice(ctx, chargerID, pricePerKWh, s.now()); err != nil {
		if errors.Is(err, repository.ErrChargerNotFound) {
			return fmt.Errorf("%w: charger %s", ErrNotFound, chargerID)
		}
		return err
	}
	return nil
}

// Upsert persists charger metadata. Maintenance seeding path.
func (s *ChargersService) Upsert(ctx context.Context, charger *models.Charger) error {
	if strings.TrimSpace(charger.ID) == "" {
		return fmt.Errorf("%w: charger id required", ErrConflict)
	}
	if charger.Status == "" {
		charger.Status = models.ChargerAvailable
	}
	return s.chargers.Upsert(ctx, charger, s.now())
}
