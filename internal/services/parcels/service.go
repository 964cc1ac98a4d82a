package parcels

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"parcelbox/internal/apperr"
	"parcelbox/internal/broker/messages"
	"parcelbox/internal/cache"
	"parcelbox/internal/models"
	"parcelbox/internal/providers"
	"parcelbox/internal/storage/pgparcels"

	"github.com/pkg/errors"
)

type Repository interface {
	AddParcel(ctx context.Context, trackingID string, carrier models.Carrier) (*models.Parcel, error)
	GetParcels(ctx context.Context) ([]*models.Parcel, error)
	GetParcel(ctx context.Context, id uint64) (*models.Parcel, error)
	DeleteParcel(ctx context.Context, id uint64) error
	RefreshParcel(ctx context.Context, id uint64) error
	ListParcelEvents(ctx context.Context, parcelID uint64, limit, offset int) ([]*models.ParcelEvent, error)
	ApplyCheckUpdate(ctx context.Context, upd pgparcels.CheckUpdate) error
}

type Service struct {
	repo      Repository
	providers *providers.Registry
	cache     cache.BytesCache
	trackTTL  time.Duration
}

func New(repo Repository, reg *providers.Registry, c cache.BytesCache, trackTTL time.Duration) *Service {
	return &Service{repo: repo, providers: reg, cache: c, trackTTL: trackTTL}
}

func (s *Service) AddParcel(ctx context.Context, trackingID, carrierCode string) (*models.Parcel, error) {
	if trackingID == "" {
		return nil, errors.Wrap(apperr.ErrInvalid, "trackingId is required")
	}
	if carrierCode == "" {
		return nil, errors.Wrap(apperr.ErrInvalid, "carrier is required")
	}
	return s.repo.AddParcel(ctx, trackingID, models.ParseCarrier(carrierCode))
}

func (s *Service) GetParcels(ctx context.Context) ([]*models.Parcel, error) {
	return s.repo.GetParcels(ctx)
}

func (s *Service) GetParcel(ctx context.Context, id uint64) (*models.Parcel, error) {
	if id == 0 {
		return nil, errors.Wrap(apperr.ErrInvalid, "parcelId is required")
	}
	return s.repo.GetParcel(ctx, id)
}

func (s *Service) DeleteParcel(ctx context.Context, id uint64) error {
	if id == 0 {
		return errors.Wrap(apperr.ErrInvalid, "parcelId is required")
	}
	if err := s.repo.DeleteParcel(ctx, id); err != nil {
		return err
	}
	if s.cache != nil {
		_ = s.cache.Del(ctx, trackKey(id))
	}
	return nil
}

// TrackParcel loads the parcel, dispatches to the provider registered for its
// carrier and returns the normalized tracking info. The last result is kept
// in the cache for a short TTL as best effort; the cache is never load-bearing.
func (s *Service) TrackParcel(ctx context.Context, id uint64) (models.TrackingInfo, error) {
	parcel, err := s.repo.GetParcel(ctx, id)
	if err != nil {
		return models.TrackingInfo{}, err
	}

	if s.cache != nil && s.trackTTL > 0 {
		if b, ok, err := s.cache.Get(ctx, trackKey(id)); err == nil && ok {
			var info models.TrackingInfo
			if json.Unmarshal(b, &info) == nil {
				return info, nil
			}
		}
	}

	provider, err := s.providers.For(parcel.Carrier)
	if err != nil {
		return models.TrackingInfo{}, err
	}

	info, err := provider.TrackParcel(ctx, parcel.TrackingID)
	if err != nil {
		return models.TrackingInfo{}, err
	}

	if s.cache != nil && s.trackTTL > 0 {
		b, _ := json.Marshal(info)
		_ = s.cache.Set(ctx, trackKey(id), b, s.trackTTL)
	}
	return info, nil
}

func (s *Service) RefreshParcel(ctx context.Context, id uint64) error {
	if id == 0 {
		return errors.Wrap(apperr.ErrInvalid, "parcelId is required")
	}
	return s.repo.RefreshParcel(ctx, id)
}

func (s *Service) ListParcelEvents(ctx context.Context, parcelID uint64, limit, offset int) ([]*models.ParcelEvent, error) {
	if parcelID == 0 {
		return nil, errors.Wrap(apperr.ErrInvalid, "parcelId is required")
	}
	return s.repo.ListParcelEvents(ctx, parcelID, limit, offset)
}

// ApplyKafkaUpdate persists a worker check result and drops the stale cache
// entry for the parcel.
func (s *Service) ApplyKafkaUpdate(ctx context.Context, msg messages.ParcelChecked) error {
	if msg.ParcelID == 0 {
		return errors.Wrap(apperr.ErrInvalid, "parcel_id is required")
	}
	if msg.CheckedAt.IsZero() {
		msg.CheckedAt = time.Now().UTC()
	}
	if msg.NextCheckAt.IsZero() {
		// fallback: a worker that did not schedule gets an hour
		msg.NextCheckAt = msg.CheckedAt.Add(60 * time.Minute)
	}

	var events []models.TrackingEvent
	for _, e := range msg.Events {
		events = append(events, models.TrackingEvent{
			Status:      models.TrackingStatus(e.Status),
			Location:    e.Location,
			Description: e.Description,
			EventTime:   e.EventTime,
		})
	}

	err := s.repo.ApplyCheckUpdate(ctx, pgparcels.CheckUpdate{
		ParcelID:    msg.ParcelID,
		CheckedAt:   msg.CheckedAt,
		Status:      models.TrackingStatus(msg.Status),
		NextCheckAt: msg.NextCheckAt,
		Events:      events,
		Error:       msg.Error,
	})
	if err != nil {
		return err
	}

	if s.cache != nil {
		_ = s.cache.Del(ctx, trackKey(msg.ParcelID))
	}
	return nil
}

func trackKey(id uint64) string {
	return fmt.Sprintf("parcel:%d:tracking", id)
}
