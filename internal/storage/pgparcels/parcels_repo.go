package pgparcels

import (
	"context"
	"time"

	"parcelbox/internal/apperr"
	"parcelbox/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// AddParcel inserts a parcel and its initial check state in one transaction.
// The store assigns id and created_at.
func (s *Storage) AddParcel(ctx context.Context, trackingID string, carrier models.Carrier) (*models.Parcel, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	p := models.Parcel{
		TrackingID: trackingID,
		Carrier:    carrier,
	}
	err = tx.QueryRow(ctx, `
INSERT INTO parcels (tracking_id, carrier)
VALUES ($1, $2)
RETURNING id, created_at
`, trackingID, carrier.Code()).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "insert parcel")
	}

	_, err = tx.Exec(ctx, `
INSERT INTO parcel_checks (parcel_id, status, next_check_at, updated_at)
VALUES ($1, $2, $3, $3)
`, p.ID, string(models.TrackingStatusUnknown), now)
	if err != nil {
		return nil, errors.Wrap(err, "insert parcel check state")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return &p, nil
}

// GetParcels returns all parcels in the store's natural order.
func (s *Storage) GetParcels(ctx context.Context) ([]*models.Parcel, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, tracking_id, carrier, created_at
FROM parcels
`)
	if err != nil {
		return nil, errors.Wrap(err, "select parcels")
	}
	defer rows.Close()

	out := []*models.Parcel{}
	for rows.Next() {
		var p models.Parcel
		var carrier string
		if err := rows.Scan(&p.ID, &p.TrackingID, &carrier, &p.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan parcel")
		}
		p.Carrier = models.ParseCarrier(carrier)
		out = append(out, &p)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) GetParcel(ctx context.Context, id uint64) (*models.Parcel, error) {
	var p models.Parcel
	var carrier string
	err := s.db.QueryRow(ctx, `
SELECT id, tracking_id, carrier, created_at
FROM parcels
WHERE id = $1
`, id).Scan(&p.ID, &p.TrackingID, &carrier, &p.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, errors.Wrapf(apperr.ErrNotFound, "parcel %d", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "select parcel")
	}
	p.Carrier = models.ParseCarrier(carrier)
	return &p, nil
}

// DeleteParcel removes a parcel by id. Deletion is idempotent: deleting a
// missing id succeeds, so repeated UI submits do not error.
func (s *Storage) DeleteParcel(ctx context.Context, id uint64) error {
	_, err := s.db.Exec(ctx, `DELETE FROM parcels WHERE id = $1`, id)
	return errors.Wrap(err, "delete parcel")
}

// RefreshParcel makes the parcel due for an immediate worker re-check.
func (s *Storage) RefreshParcel(ctx context.Context, id uint64) error {
	ct, err := s.db.Exec(ctx, `UPDATE parcel_checks SET next_check_at = now(), updated_at = now() WHERE parcel_id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "refresh parcel")
	}
	if ct.RowsAffected() == 0 {
		return errors.Wrapf(apperr.ErrNotFound, "parcel %d", id)
	}
	return nil
}
