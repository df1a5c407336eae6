package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Zajason/ChargeNET-sub000/internal/models"
)

// ErrReservationNotFound indicates a missing or non-matching reservation row.
var ErrReservationNotFound = errors.New("reservation not found")

// ReservationRepository handles persistence of reservations. The durable rows
// mirror the lock-store invariants for history; the lock store remains the
// arbiter of real-time exclusivity.
type ReservationRepository struct {
	db *sql.DB
}

// NewReservationRepository returns repository.
func NewReservationRepository(db *sql.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

const reservationColumns = `id, user_id, charger_id, starts_at, expires_at, status, COALESCE(payment_ref, ''), created_at, updated_at`

func scanReservation(row interface{ Scan(...interface{}) error }) (*models.Reservation, error) {
	var res models.Reservation
	err := row.Scan(
		&res.ID,
		&res.UserID,
		&res.ChargerID,
		&res.StartsAt,
		&res.ExpiresAt,
		&res.Status,
		&res.PaymentRef,
		&res.CreatedAt,
		&res.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// CreateWithChargerHold inserts an ACTIVE reservation and flips the charger's
// durable status to IN_USE in one transaction.
func (r *ReservationRepository) CreateWithChargerHold(ctx context.Context, res *models.Reservation) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const insert = `
		INSERT INTO reservations (id, user_id, charger_id, starts_at, expires_at, status, payment_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $8)
	`
	if _, err := tx.ExecContext(ctx, insert,
		res.ID,
		res.UserID,
		res.ChargerID,
		res.StartsAt,
		res.ExpiresAt,
		res.Status,
		res.PaymentRef,
		res.CreatedAt,
	); err != nil {
		return err
	}

	const holdCharger = `UPDATE chargers SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, holdCharger, res.ChargerID, models.ChargerInUse, res.CreatedAt); err != nil {
		return err
	}

	return tx.Commit()
}

// GetByID returns a reservation or ErrReservationNotFound.
func (r *ReservationRepository) GetByID(ctx context.Context, id string) (*models.Reservation, error) {
	const query = `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`
	res, err := scanReservation(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ActiveByUser returns the user's ACTIVE, unexpired reservation or
// ErrReservationNotFound.
func (r *ReservationRepository) ActiveByUser(ctx context.Context, userID int64, now time.Time) (*models.Reservation, error) {
	const query = `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE user_id = $1 AND status = $2 AND expires_at > $3
		ORDER BY expires_at DESC
		LIMIT 1
	`
	res, err := scanReservation(r.db.QueryRowContext(ctx, query, userID, models.ReservationActive, now))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ActiveByUserAndCharger returns the user's ACTIVE, unexpired reservation for
// the given charger or ErrReservationNotFound.
func (r *ReservationRepository) ActiveByUserAndCharger(ctx context.Context, userID int64, chargerID string, now time.Time) (*models.Reservation, error) {
	const query = `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE user_id = $1 AND charger_id = $2 AND status = $3 AND expires_at > $4
		ORDER BY expires_at DESC
		LIMIT 1
	`
	res, err := scanReservation(r.db.QueryRowContext(ctx, query, userID, chargerID, models.ReservationActive, now))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Cancel flips an ACTIVE reservation to CANCELLED and releases the charger's
// durable status in one transaction. Returns ErrReservationNotFound when the
// row is no longer ACTIVE.
func (r *ReservationRepository) Cancel(ctx context.Context, id, chargerID string, now time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const cancel = `UPDATE reservations SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4`
	result, err := tx.ExecContext(ctx, cancel, id, models.ReservationCancelled, now, models.ReservationActive)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrReservationNotFound
	}

	const release = `UPDATE chargers SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4`
	if _, err := tx.ExecContext(ctx, release, chargerID, models.ChargerAvailable, now, models.ChargerInUse); err != nil {
		return err
	}

	return tx.Commit()
}

// ExpireStale is the lazy reconciliation sweep: every ACTIVE reservation past
// its expiry flips to EXPIRED and its charger's durable status drops back to
// AVAILABLE, all in one transaction. The lock-store TTL has already expired
// the ephemeral keys; this only keeps the durable baseline from staling. Safe
// to run concurrently from multiple request handlers because ACTIVE->EXPIRED
// is one-way and the updates are conditional.
func (r *ReservationRepository) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	const expire = `
		UPDATE reservations
		SET status = $1, updated_at = $2
		WHERE status = $3 AND expires_at < $2
		RETURNING charger_id
	`
	rows, err := tx.QueryContext(ctx, expire, models.ReservationExpired, now, models.ReservationActive)
	if err != nil {
		return 0, err
	}
	var chargerIDs []string
	for rows.Next() {
		var id string
		if scanErr := rows.Scan(&id); scanErr != nil {
			rows.Close()
			return 0, scanErr
		}
		chargerIDs = append(chargerIDs, id)
	}
	// Close alone does not surface iteration errors; a mid-stream failure
	// would otherwise commit a truncated sweep.
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	if err := rows.Close(); err != nil {
		return 0, err
	}
	if len(chargerIDs) == 0 {
		return 0, tx.Commit()
	}

	query := `UPDATE chargers SET status = $1, updated_at = $2 WHERE status = $3 AND id IN (`
	args := []interface{}{models.ChargerAvailable, now, models.ChargerInUse}
	for i, id := range chargerIDs {
		if i > 0 {
			query += ","
		}
		query += fmt.Sprintf("$%d", len(args)+1)
		args = append(args, id)
	}
	query += ")"
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(chargerIDs), nil
}
