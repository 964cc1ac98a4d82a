package models

import "time"

// Parcel is the durable record the user registers for tracking.
// Fields are immutable after insertion; the store assigns ID and CreatedAt.
type Parcel struct {
	ID         uint64
	TrackingID string
	Carrier    Carrier
	CreatedAt  time.Time
}

// ParcelCheck is the worker-owned check state kept next to a parcel.
// The parcel row itself never changes; re-check scheduling lives here.
type ParcelCheck struct {
	ParcelID       uint64
	TrackingID     string
	Carrier        Carrier
	Status         TrackingStatus
	LastCheckedAt  *time.Time
	NextCheckAt    time.Time
	CheckFailCount int32
	LastError      *string
	UpdatedAt      time.Time
}

// ParcelEvent is a stored normalized tracking event.
type ParcelEvent struct {
	ID          uint64
	ParcelID    uint64
	Status      TrackingStatus
	Location    string
	Description string
	EventTime   time.Time
	CreatedAt   time.Time
}
