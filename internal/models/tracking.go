package models

import "time"

// TrackingStatus is the closed set of normalized statuses. Vendor codes that
// we do not recognize become UNKNOWN; the raw vendor string is never carried
// past the provider boundary.
type TrackingStatus string

const (
	TrackingStatusUnknown   TrackingStatus = "UNKNOWN"
	TrackingStatusInTransit TrackingStatus = "IN_TRANSIT"
	TrackingStatusDelivered TrackingStatus = "DELIVERED"
	TrackingStatusException TrackingStatus = "EXCEPTION"
)

// TrackingEvent is one dated, located, described status change of a shipment.
type TrackingEvent struct {
	Status      TrackingStatus
	Location    string
	Description string
	EventTime   time.Time
}

// TrackingInfo is what a provider returns for one tracking id. Events keep
// the vendor-supplied order; an empty list means the carrier has nothing yet.
type TrackingInfo struct {
	Events []TrackingEvent
}

// LatestStatus derives the current shipment status from the event list.
func (t TrackingInfo) LatestStatus() TrackingStatus {
	if len(t.Events) == 0 {
		return TrackingStatusUnknown
	}
	return t.Events[len(t.Events)-1].Status
}
