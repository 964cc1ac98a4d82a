package messages

import "time"

// ParcelChecked is published by the worker after each carrier check and
// consumed by the API to persist check state, events and refresh the cache.
type ParcelChecked struct {
	ParcelID  uint64    `json:"parcel_id"`
	CheckedAt time.Time `json:"checked_at"`

	Status string `json:"status,omitempty"`

	NextCheckAt time.Time `json:"next_check_at"`

	Events []ParcelEvent `json:"events,omitempty"`

	Error *string `json:"error,omitempty"`
}

type ParcelEvent struct {
	Status      string    `json:"status"`
	Location    string    `json:"location,omitempty"`
	Description string    `json:"description,omitempty"`
	EventTime   time.Time `json:"event_time"`
}
