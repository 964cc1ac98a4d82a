package pgparcels

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS parcels (
  id BIGSERIAL PRIMARY KEY,
  tracking_id TEXT NOT NULL,
  carrier TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		// Worker-owned re-check state. One row per parcel; the parcel row
		// itself stays immutable after insertion.
		`
CREATE TABLE IF NOT EXISTS parcel_checks (
  parcel_id BIGINT PRIMARY KEY REFERENCES parcels(id) ON DELETE CASCADE,
  status TEXT NOT NULL,
  last_checked_at TIMESTAMPTZ NULL,
  next_check_at TIMESTAMPTZ NOT NULL,
  check_fail_count INT NOT NULL DEFAULT 0,
  last_error TEXT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_parcel_checks_next_check_at ON parcel_checks(next_check_at)`,
		`
CREATE TABLE IF NOT EXISTS parcel_events (
  id BIGSERIAL PRIMARY KEY,
  parcel_id BIGINT NOT NULL REFERENCES parcels(id) ON DELETE CASCADE,
  status TEXT NOT NULL,
  location TEXT NOT NULL DEFAULT '',
  description TEXT NOT NULL DEFAULT '',
  event_time TIMESTAMPTZ NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_parcel_events_parcel_id_event_time ON parcel_events(parcel_id, event_time DESC)`,
		// Enforce de-duplication of events across repeated checks.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_parcel_events_dedup ON parcel_events(parcel_id, status, event_time, location, description)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
