package providers

import (
	"context"

	"parcelbox/internal/apperr"
	"parcelbox/internal/models"
)

// TrackingProvider knows how to query one carrier's external tracking API and
// normalize its response.
type TrackingProvider interface {
	TrackParcel(ctx context.Context, trackingID string) (models.TrackingInfo, error)
}

// Registry maps carriers to their providers. Unknown carriers simply have no
// entry, so dispatching them fails without any network activity.
type Registry struct {
	byCarrier map[models.Carrier]TrackingProvider
}

func NewRegistry() *Registry {
	return &Registry{byCarrier: map[models.Carrier]TrackingProvider{}}
}

func (r *Registry) Register(c models.Carrier, p TrackingProvider) *Registry {
	r.byCarrier[c] = p
	return r
}

// For returns the provider registered for the carrier, or
// *apperr.UnsupportedCarrierError when there is none.
func (r *Registry) For(c models.Carrier) (TrackingProvider, error) {
	p, ok := r.byCarrier[c]
	if !ok {
		return nil, &apperr.UnsupportedCarrierError{Carrier: c.Code()}
	}
	return p, nil
}
