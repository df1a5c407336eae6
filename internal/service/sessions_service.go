package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Zajason/ChargeNET-sub000/internal/models"
	"github.com/Zajason/ChargeNET-sub000/internal/payment"
	redisstore "github.com/Zajason/ChargeNET-sub000/internal/redis"
	"github.com/Zajason/ChargeNET-sub000/internal/repository"
)

// SessionsService is the session lifecycle manager. It turns a held
// reservation into a running session, meters consumption with a linear
// fill-rate model and finalizes cooperatively on the next read: there is no
// background scheduler driving any transition.
type SessionsService struct {
	chargers     ChargerReader
	reservations ReservationStore
	sessions     SessionStore
	locks        ChargerLocks
	gateway      payment.Gateway
	logger       *zap.Logger
	now          func() time.Time
}

// NewSessionsService builds the lifecycle manager.
func NewSessionsService(
	chargers ChargerReader,
	reservations ReservationStore,
	sessions SessionStore,
	locks ChargerLocks,
	gateway payment.Gateway,
	logger *zap.Logger,
) *SessionsService {
	return &SessionsService{
		chargers:     chargers,
		reservations: reservations,
		sessions:     sessions,
		locks:        locks,
		gateway:      gateway,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// StartInput carries the Start parameters. Battery values are optional; the
// energy cap is derived only when both are present.
type StartInput struct {
	UserID              int64
	ReservationID       string
	BatteryCapacityKWh  *float64
	CurrentBatteryLevel *float64
}

// SessionView is the client-facing projection of a session.
type SessionView struct {
	SessionID      string     `json:"session_id"`
	ChargerID      string     `json:"charger_id"`
	Status         string     `json:"status"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	ElapsedSeconds int64      `json:"elapsed_seconds"`
	KWh            float64    `json:"kwh"`
	MaxKWh         *float64   `json:"max_kwh,omitempty"`
	MaxKW          float64    `json:"max_kw"`
	PricePerKWh    float64    `json:"price_per_kwh"`
	CostEur        float64    `json:"cost_eur"`
	PaymentStatus  string     `json:"payment_status"`
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

func energyCap(capacityKWh, levelPct *float64) *float64 {
	if capacityKWh == nil || levelPct == nil {
		return nil
	}
	if *capacityKWh <= 0 || *levelPct < 0 || *levelPct >= 100 {
		return nil
	}
	v := *capacityKWh * (100 - *levelPct) / 100
	return &v
}

func (s *SessionsService) view(sess *models.Session, at time.Time) *SessionView {
	end := at
	if sess.EndedAt != nil {
		end = *sess.EndedAt
	}
	elapsed := int64(end.Sub(sess.StartedAt).Seconds())
	if elapsed < 0 {
		elapsed = 0
	}

	cost := sess.CostEur
	if !sess.Terminal() {
		// Cost is reported but not persisted until finalize.
		cost = roundCents(sess.KWh * sess.PricePerKWh)
	}

	return &SessionView{
		SessionID:      sess.ID,
		ChargerID:      sess.ChargerID,
		Status:         sess.Status,
		StartedAt:      sess.StartedAt,
		EndedAt:        sess.EndedAt,
		ElapsedSeconds: elapsed,
		KWh:            sess.KWh,
		MaxKWh:         sess.MaxKWh,
		MaxKW:          sess.MaxKW,
		PricePerKWh:    sess.PricePerKWh,
		CostEur:        cost,
		PaymentStatus:  sess.PaymentStatus,
	}
}

// Start consumes an ACTIVE, unexpired reservation into a RUNNING session.
// The reservation flip and the session insert share one durable transaction;
// afterwards the status overlay is pinned in_use with no TTL so that only an
// explicit release clears it.
func (s *SessionsService) Start(ctx context.Context, input StartInput) (*SessionView, error) {
	now := s.now()

	res, err := s.reservations.GetByID(ctx, input.ReservationID)
	if errors.Is(err, repository.ErrReservationNotFound) {
		return nil, fmt.Errorf("%w: reservation %s", ErrNotFound, input.ReservationID)
	}
	if err != nil {
		return nil, err
	}
	if res.UserID != input.UserID {
		return nil, ErrForbidden
	}
	if res.Status != models.ReservationActive {
		return nil, fmt.Errorf("%w: reservation is %s", ErrConflict, res.Status)
	}
	if !res.ExpiresAt.After(now) {
		return nil, fmt.Errorf("%w: reservation expired at %s", ErrExpired, res.ExpiresAt.Format(time.RFC3339))
	}

	charger, err := s.chargers.GetByID(ctx, res.ChargerID)
	if err != nil {
		return nil, err
	}

	session := &models.Session{
		ID:            uuid.NewString(),
		UserID:        input.UserID,
		ChargerID:     res.ChargerID,
		ReservationID: res.ID,
		StartedAt:     now,
		MaxKWh:        energyCap(input.BatteryCapacityKWh, input.CurrentBatteryLevel),
		MaxKW:         charger.MaxKW,
		PricePerKWh:   charger.PricePerKWh,
		Status:        models.SessionRunning,
		PaymentRef:    res.PaymentRef,
		PaymentStatus: models.PaymentNone,
		CreatedAt:     now,
	}
	if err := s.sessions.StartConsumingReservation(ctx, session, res.ID); err != nil {
		if errors.Is(err, repository.ErrReservationConsumed) {
			return nil, fmt.Errorf("%w: reservation already consumed", ErrConflict)
		}
		return nil, err
	}

	// From here the charger is held by session activity, not by a timed
	// reservation. A failed overlay write is logged, not fatal: the durable
	// session is already committed.
	if err := s.locks.Promote(ctx, input.UserID, res.ChargerID); err != nil {
		s.logger.Warn("failed to promote charger lock to session hold",
			zap.String("session_id", session.ID),
			zap.String("charger_id", res.ChargerID),
			zap.Error(err),
		)
	}

	s.logger.Info("session started",
		zap.String("session_id", session.ID),
		zap.String("charger_id", res.ChargerID),
		zap.Int64("user_id", input.UserID),
	)
	return s.view(session, now), nil
}

func (s *SessionsService) meteredKWh(sess *models.Session, now time.Time) float64 {
	elapsed := now.Sub(sess.StartedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	return elapsed.Hours() * sess.MaxKW
}

// Status reads the current view of a session. For RUNNING sessions it
// recomputes the meter reading and, when an energy cap exists and has been
// reached, finalizes the session as AUTO_STOPPED as a side effect of the
// read. Cap discovery is cooperative: it happens the next time anyone asks.
func (s *SessionsService) Status(ctx context.Context, userID int64, sessionID string) (*SessionView, error) {
	now := s.now()

	sess, err := s.getOwned(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Terminal() {
		return s.view(sess, now), nil
	}

	kwh := s.meteredKWh(sess, now)
	if sess.MaxKWh != nil && kwh >= *sess.MaxKWh {
		return s.finalize(ctx, sess, models.SessionAutoStopped, *sess.MaxKWh, now)
	}

	if err := s.sessions.UpdateEnergy(ctx, sess.ID, kwh, now); err != nil {
		return nil, err
	}
	sess.KWh = kwh
	return s.view(sess, now), nil
}

// Stop finalizes a RUNNING session as USER_STOPPED. Calling Stop on an
// already-terminal session returns the stored result rather than an error.
func (s *SessionsService) Stop(ctx context.Context, userID int64, sessionID string) (*SessionView, error) {
	now := s.now()

	sess, err := s.getOwned(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Terminal() {
		return s.view(sess, now), nil
	}

	kwh := s.meteredKWh(sess, now)
	if sess.MaxKWh != nil && kwh > *sess.MaxKWh {
		kwh = *sess.MaxKWh
	}
	return s.finalize(ctx, sess, models.SessionUserStopped, kwh, now)
}

// finalize writes the terminal state, releases the charger and captures the
// payment hold. Losing the finalize race to a concurrent Stop or
// cap-triggered Status is benign: the stored result is returned. Capture
// failure degrades the payment status and never rolls back the release;
// physical-resource release must not be blocked by a billing fault.
func (s *SessionsService) finalize(ctx context.Context, sess *models.Session, status string, kwh float64, now time.Time) (*SessionView, error) {
	cost := roundCents(kwh * sess.PricePerKWh)
	won, err := s.sessions.Finalize(ctx, sess.ID, sess.ChargerID, repository.FinalizeUpdate{
		Status:        status,
		EndedAt:       now,
		KWh:           kwh,
		CostEur:       cost,
		PaymentStatus: sess.PaymentStatus,
	})
	if err != nil {
		return nil, err
	}
	if !won {
		stored, err := s.sessions.GetByID(ctx, sess.ID)
		if err != nil {
			return nil, err
		}
		return s.view(stored, now), nil
	}

	if err := s.locks.ReleaseCharger(ctx, sess.ChargerID); err != nil {
		s.logger.Warn("failed to release charger overlay",
			zap.String("session_id", sess.ID),
			zap.String("charger_id", sess.ChargerID),
			zap.Error(err),
		)
	}

	sess.Status = status
	sess.EndedAt = &now
	sess.KWh = kwh
	sess.CostEur = cost
	sess.PaymentStatus = s.capture(ctx, sess, cost, now)
	if sess.PaymentStatus == models.PaymentFailed {
		sess.Status = models.SessionInsufficientFunds
	}

	s.logger.Info("session finalized",
		zap.String("session_id", sess.ID),
		zap.String("status", sess.Status),
		zap.Float64("kwh", kwh),
		zap.Float64("cost_eur", cost),
		zap.String("payment_status", sess.PaymentStatus),
	)
	return s.view(sess, now), nil
}

func (s *SessionsService) capture(ctx context.Context, sess *models.Session, cost float64, now time.Time) string {
	if sess.PaymentRef == "" {
		return models.PaymentNone
	}

	outcome := models.PaymentCaptured
	if _, err := s.gateway.Capture(ctx, sess.PaymentRef, cost); err != nil {
		s.logger.Warn("payment capture failed",
			zap.String("session_id", sess.ID),
			zap.String("payment_ref", sess.PaymentRef),
			zap.Error(err),
		)
		outcome = models.PaymentFailed
	}

	if err := s.sessions.SetPaymentOutcome(ctx, sess.ID, outcome, outcome == models.PaymentFailed, now); err != nil {
		s.logger.Warn("failed to record payment outcome",
			zap.String("session_id", sess.ID),
			zap.Error(err),
		)
	}
	return outcome
}

func (s *SessionsService) getOwned(ctx context.Context, userID int64, sessionID string) (*models.Session, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		return nil, ErrForbidden
	}
	return sess, nil
}

// History returns the user's most recent sessions.
func (s *SessionsService) History(ctx context.Context, userID int64, limit int) ([]models.Session, error) {
	return s.sessions.ListByUser(ctx, userID, limit)
}

// MaintenanceStartInput starts a session without a prior reservation.
type MaintenanceStartInput struct {
	UserID    int64
	ChargerID string
}

// StartMaintenance creates a reservation-less RUNNING session. Used by the
// internal maintenance path; there is no payment hold attached.
func (s *SessionsService) StartMaintenance(ctx context.Context, input MaintenanceStartInput) (*SessionView, error) {
	now := s.now()

	charger, err := s.chargers.GetByID(ctx, input.ChargerID)
	if errors.Is(err, repository.ErrChargerNotFound) {
		return nil, fmt.Errorf("%w: charger %s", ErrNotFound, input.ChargerID)
	}
	if err != nil {
		return nil, err
	}

	session := &models.Session{
		ID:            uuid.NewString(),
		UserID:        input.UserID,
		ChargerID:     charger.ID,
		StartedAt:     now,
		MaxKW:         charger.MaxKW,
		PricePerKWh:   charger.PricePerKWh,
		Status:        models.SessionRunning,
		PaymentStatus: models.PaymentNone,
		CreatedAt:     now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	if err := s.locks.SetChargerStatus(ctx, charger.ID, redisstore.StatusInUse, 0); err != nil {
		s.logger.Warn("failed to set charger overlay for maintenance session",
			zap.String("session_id", session.ID),
			zap.Error(err),
		)
	}
	return s.view(session, now), nil
}

// StopMaintenance finalizes a maintenance session as COMPLETED. No capture
// is attempted because maintenance sessions carry no payment hold.
func (s *SessionsService) StopMaintenance(ctx context.Context, sessionID string) (*SessionView, error) {
	now := s.now()

	sess, err := s.sessions.GetByID(ctx, sessionID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, err
	}
	if sess.Terminal() {
		return s.view(sess, now), nil
	}

	kwh := s.meteredKWh(sess, now)
	return s.finalize(ctx, sess, models.SessionCompleted, kwh, now)
}
