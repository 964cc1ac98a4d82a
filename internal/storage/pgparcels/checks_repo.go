package pgparcels

import (
	"context"
	"time"

	"parcelbox/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

type CheckUpdate struct {
	ParcelID uint64

	CheckedAt time.Time

	Status models.TrackingStatus

	NextCheckAt time.Time

	Events []models.TrackingEvent

	Error *string
}

// ClaimDueParcels picks a batch of parcels due for a check and leases them so
// that concurrent workers do not re-claim them while one is busy.
// Uses SELECT ... FOR UPDATE SKIP LOCKED.
func (s *Storage) ClaimDueParcels(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.ParcelCheck, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
SELECT
  p.id, p.tracking_id, p.carrier,
  c.status, c.last_checked_at, c.next_check_at,
  c.check_fail_count, c.last_error, c.updated_at
FROM parcel_checks c
JOIN parcels p ON p.id = c.parcel_id
WHERE c.next_check_at <= $1
  AND c.status <> $2
ORDER BY c.next_check_at ASC
LIMIT $3
FOR UPDATE OF c SKIP LOCKED
`, now.UTC(), string(models.TrackingStatusDelivered), limit)
	if err != nil {
		return nil, errors.Wrap(err, "select due parcels")
	}
	defer rows.Close()

	var picked []*models.ParcelCheck
	for rows.Next() {
		var pc models.ParcelCheck
		var carrier string
		if err := rows.Scan(
			&pc.ParcelID, &pc.TrackingID, &carrier,
			&pc.Status, &pc.LastCheckedAt, &pc.NextCheckAt,
			&pc.CheckFailCount, &pc.LastError, &pc.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan due parcel")
		}
		pc.Carrier = models.ParseCarrier(carrier)
		picked = append(picked, &pc)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	leaseUntil := now.UTC().Add(lease)
	for _, pc := range picked {
		_, err := tx.Exec(ctx, `UPDATE parcel_checks SET next_check_at = $2, updated_at = now() WHERE parcel_id = $1`, pc.ParcelID, leaseUntil)
		if err != nil {
			return nil, errors.Wrap(err, "lease parcel check")
		}
		pc.NextCheckAt = leaseUntil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return picked, nil
}

// ApplyCheckUpdate records the outcome of one carrier check: either an error
// (fail count grows, backoff applied by the caller) or a fresh status plus
// deduplicated events.
func (s *Storage) ApplyCheckUpdate(ctx context.Context, upd CheckUpdate) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if upd.Error != nil && *upd.Error != "" {
		_, err := tx.Exec(ctx, `
UPDATE parcel_checks
SET
  last_checked_at = $2,
  check_fail_count = check_fail_count + 1,
  last_error = $3,
  next_check_at = $4,
  updated_at = now()
WHERE parcel_id = $1
`, upd.ParcelID, upd.CheckedAt.UTC(), *upd.Error, upd.NextCheckAt.UTC())
		if err != nil {
			return errors.Wrap(err, "update check state (error)")
		}
	} else {
		_, err := tx.Exec(ctx, `
UPDATE parcel_checks
SET
  status = $3,
  last_checked_at = $2,
  check_fail_count = 0,
  last_error = NULL,
  next_check_at = $4,
  updated_at = now()
WHERE parcel_id = $1
`, upd.ParcelID, upd.CheckedAt.UTC(), string(upd.Status), upd.NextCheckAt.UTC())
		if err != nil {
			return errors.Wrap(err, "update check state (ok)")
		}

		for _, e := range upd.Events {
			_, err := tx.Exec(ctx, `
INSERT INTO parcel_events (parcel_id, status, location, description, event_time, created_at)
VALUES ($1,$2,$3,$4,$5, now())
ON CONFLICT (parcel_id, status, event_time, location, description) DO NOTHING
`, upd.ParcelID, string(e.Status), e.Location, e.Description, e.EventTime.UTC())
			if err != nil {
				return errors.Wrap(err, "insert parcel event")
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

func (s *Storage) ListParcelEvents(ctx context.Context, parcelID uint64, limit, offset int) ([]*models.ParcelEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT id, parcel_id, status, location, description, event_time, created_at
FROM parcel_events
WHERE parcel_id = $1
ORDER BY event_time DESC
LIMIT $2 OFFSET $3
`, parcelID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select events")
	}
	defer rows.Close()

	var out []*models.ParcelEvent
	for rows.Next() {
		var e models.ParcelEvent
		if err := rows.Scan(&e.ID, &e.ParcelID, &e.Status, &e.Location, &e.Description, &e.EventTime, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		out = append(out, &e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
