package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Zajason/ChargeNET-sub000/internal/models"
)

// ErrChargerNotFound indicates a missing charger row.
var ErrChargerNotFound = errors.New("charger not found")

// ChargerRepository handles persistence of chargers.
type ChargerRepository struct {
	db *sql.DB
}

// NewChargerRepository returns repository.
func NewChargerRepository(db *sql.DB) *ChargerRepository {
	return &ChargerRepository{db: db}
}

const chargerColumns = `id, name, latitude, longitude, connector_type, max_kw, price_per_kwh, status, created_at, updated_at`

func scanCharger(row interface{ Scan(...interface{}) error }) (*models.Charger, error) {
	var c models.Charger
	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Latitude,
		&c.Longitude,
		&c.ConnectorType,
		&c.MaxKW,
		&c.PricePerKWh,
		&c.Status,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetByID returns a single charger or ErrChargerNotFound.
func (r *ChargerRepository) GetByID(ctx context.Context, id string) (*models.Charger, error) {
	const query = `SELECT ` + chargerColumns + ` FROM chargers WHERE id = $1`
	charger, err := scanCharger(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrChargerNotFound
	}
	if err != nil {
		return nil, err
	}
	return charger, nil
}

// List returns all chargers ordered by id.
func (r *ChargerRepository) List(ctx context.Context) ([]models.Charger, error) {
	const query = `SELECT ` + chargerColumns + ` FROM chargers ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chargers []models.Charger
	for rows.Next() {
		c, err := scanCharger(rows)
		if err != nil {
			return nil, err
		}
		chargers = append(chargers, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return chargers, nil
}

// UpdateStatus sets the durable status column.
func (r *ChargerRepository) UpdateStatus(ctx context.Context, id, status string, now time.Time) error {
	const query = `UPDATE chargers SET status = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, status, now)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrChargerNotFound
	}
	return nil
}

// UpdatePrice is the pricing engine's write surface. It never touches status.
func (r *ChargerRepository) UpdatePrice(ctx context.Context, id string, pricePerKWh float64, now time.Time) error {
	const query = `UPDATE chargers SET price_per_kwh = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, pricePerKWh, now)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrChargerNotFound
	}
	return nil
}

// Upsert persists charger metadata, used by the maintenance seeding path.
func (r *ChargerRepository) Upsert(ctx context.Context, charger *models.Charger, now time.Time) error {
	const query = `
		INSERT INTO chargers (id, name, latitude, longitude, connector_type, max_kw, price_per_kwh, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			connector_type = EXCLUDED.connector_type,
			max_kw = EXCLUDED.max_kw,
			price_per_kwh = EXCLUDED.price_per_kwh,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		charger.ID,
		charger.Name,
		charger.Latitude,
		charger.Longitude,
		charger.ConnectorType,
		charger.MaxKW,
		charger.PricePerKWh,
		charger.Status,
		now,
	)
	return err
}
