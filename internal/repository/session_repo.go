package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Zajason/ChargeNET-sub000/internal/models"
)

// Session repository errors.
var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrReservationConsumed = errors.New("reservation already consumed")
)

// SessionRepository handles persistence of charging sessions.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository returns repository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, user_id, charger_id, COALESCE(reservation_id, ''), started_at, ended_at, kwh, max_kwh, max_kw, price_per_kwh, cost_eur, status, COALESCE(payment_ref, ''), payment_status, created_at, updated_at`

func scanSession(row interface{ Scan(...interface{}) error }) (*models.Session, error) {
	var (
		s       models.Session
		endedAt sql.NullTime
		maxKWh  sql.NullFloat64
	)
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.ChargerID,
		&s.ReservationID,
		&s.StartedAt,
		&endedAt,
		&s.KWh,
		&maxKWh,
		&s.MaxKW,
		&s.PricePerKWh,
		&s.CostEur,
		&s.Status,
		&s.PaymentRef,
		&s.PaymentStatus,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if endedAt.Valid {
		t := endedAt.Time
		s.EndedAt = &t
	}
	if maxKWh.Valid {
		v := maxKWh.Float64
		s.MaxKWh = &v
	}
	return &s, nil
}

func insertSession(ctx context.Context, tx *sql.Tx, session *models.Session) error {
	const insert = `
		INSERT INTO charging_sessions (id, user_id, charger_id, reservation_id, started_at, kwh, max_kwh, max_kw, price_per_kwh, cost_eur, status, payment_ref, payment_status, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, NULLIF($12, ''), $13, $14, $14)
	`
	var maxKWh interface{}
	if session.MaxKWh != nil {
		maxKWh = *session.MaxKWh
	}
	_, err := tx.ExecContext(ctx, insert,
		session.ID,
		session.UserID,
		session.ChargerID,
		session.ReservationID,
		session.StartedAt,
		session.KWh,
		maxKWh,
		session.MaxKW,
		session.PricePerKWh,
		session.CostEur,
		session.Status,
		session.PaymentRef,
		session.PaymentStatus,
		session.CreatedAt,
	)
	return err
}

// StartConsumingReservation creates a RUNNING session and flips its
// reservation to EXPIRED in one transaction. The conditional reservation
// update is the arbiter for concurrent Start attempts: the loser observes
// zero affected rows and gets ErrReservationConsumed.
func (r *SessionRepository) StartConsumingReservation(ctx context.Context, session *models.Session, reservationID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const consume = `UPDATE reservations SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4`
	result, err := tx.ExecContext(ctx, consume, reservationID, models.ReservationExpired, session.CreatedAt, models.ReservationActive)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrReservationConsumed
	}

	if err := insertSession(ctx, tx, session); err != nil {
		return err
	}

	return tx.Commit()
}

// Create inserts a session without consuming a reservation. Maintenance path.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertSession(ctx, tx, session); err != nil {
		return err
	}
	return tx.Commit()
}

// GetByID returns a session or ErrSessionNotFound.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	const query = `SELECT ` + sessionColumns + ` FROM charging_sessions WHERE id = $1`
	session, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// UpdateEnergy persists the recomputed meter reading of a RUNNING session.
func (r *SessionRepository) UpdateEnergy(ctx context.Context, id string, kwh float64, now time.Time) error {
	const query = `UPDATE charging_sessions SET kwh = $2, updated_at = $3 WHERE id = $1 AND status = $4`
	_, err := r.db.ExecContext(ctx, query, id, kwh, now, models.SessionRunning)
	return err
}

// FinalizeUpdate carries the terminal values written by Finalize.
type FinalizeUpdate struct {
	Status        string
	EndedAt       time.Time
	KWh           float64
	CostEur       float64
	PaymentStatus string
}

// Finalize transitions a RUNNING session to a terminal state and releases the
// charger's durable status in one transaction. It reports whether this caller
// won the transition; a false return with nil error means another finalizer
// (a concurrent Stop or a cap-triggered Status read) got there first, which
// callers must treat as a benign no-op.
func (r *SessionRepository) Finalize(ctx context.Context, id, chargerID string, upd FinalizeUpdate) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	const finalize = `
		UPDATE charging_sessions
		SET status = $2, ended_at = $3, kwh = $4, cost_eur = $5, payment_status = $6, updated_at = $3
		WHERE id = $1 AND status = $7
	`
	result, err := tx.ExecContext(ctx, finalize, id, upd.Status, upd.EndedAt, upd.KWh, upd.CostEur, upd.PaymentStatus, models.SessionRunning)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}

	const release = `UPDATE chargers SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4`
	if _, err := tx.ExecContext(ctx, release, chargerID, models.ChargerAvailable, upd.EndedAt, models.ChargerInUse); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// SetPaymentOutcome records the capture result after finalization. A failed
// capture additionally flips the session to INSUFFICIENT_FUNDS; the terminal
// transition and the charger release are never rolled back by billing faults.
func (r *SessionRepository) SetPaymentOutcome(ctx context.Context, id, paymentStatus string, insufficientFunds bool, now time.Time) error {
	if insufficientFunds {
		const query = `UPDATE charging_sessions SET payment_status = $2, status = $3, updated_at = $4 WHERE id = $1`
		_, err := r.db.ExecContext(ctx, query, id, paymentStatus, models.SessionInsufficientFunds, now)
		return err
	}
	const query = `UPDATE charging_sessions SET payment_status = $2, updated_at = $3 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, paymentStatus, now)
	return err
}

// ListByUser returns the user's most recent sessions.
func (r *SessionRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]models.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT ` + sessionColumns + `
		FROM charging_sessions
		WHERE user_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}
