package parcels

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"parcelbox/internal/apperr"
	"parcelbox/internal/broker/messages"
	"parcelbox/internal/models"
	"parcelbox/internal/providers"
	"parcelbox/internal/storage/pgparcels"

	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	addTrackingID string
	addCarrier    models.Carrier
	addOut        *models.Parcel
	addErr        error

	getOut *models.Parcel
	getErr error

	listOut []*models.Parcel

	deletedID  uint64
	refreshID  uint64
	refreshErr error

	applyUpd pgparcels.CheckUpdate
	applyErr error
}

func (f *fakeRepo) AddParcel(ctx context.Context, trackingID string, carrier models.Carrier) (*models.Parcel, error) {
	f.addTrackingID, f.addCarrier = trackingID, carrier
	return f.addOut, f.addErr
}
func (f *fakeRepo) GetParcels(ctx context.Context) ([]*models.Parcel, error) {
	return f.listOut, nil
}
func (f *fakeRepo) GetParcel(ctx context.Context, id uint64) (*models.Parcel, error) {
	return f.getOut, f.getErr
}
func (f *fakeRepo) DeleteParcel(ctx context.Context, id uint64) error {
	f.deletedID = id
	return nil
}
func (f *fakeRepo) RefreshParcel(ctx context.Context, id uint64) error {
	f.refreshID = id
	return f.refreshErr
}
func (f *fakeRepo) ListParcelEvents(ctx context.Context, parcelID uint64, limit, offset int) ([]*models.ParcelEvent, error) {
	return nil, nil
}
func (f *fakeRepo) ApplyCheckUpdate(ctx context.Context, upd pgparcels.CheckUpdate) error {
	f.applyUpd = upd
	return f.applyErr
}

type fakeCache struct {
	m map[string][]byte
}

func (c *fakeCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, ok := c.m[key]
	return b, ok, nil
}
func (c *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.m[key] = value
	return nil
}
func (c *fakeCache) Del(ctx context.Context, key string) error {
	delete(c.m, key)
	return nil
}

type fakeProvider struct {
	calls int
	out   models.TrackingInfo
	err   error
}

func (p *fakeProvider) TrackParcel(ctx context.Context, trackingID string) (models.TrackingInfo, error) {
	p.calls++
	return p.out, p.err
}

func TestService_AddParcel_Validate(t *testing.T) {
	s := New(&fakeRepo{}, providers.NewRegistry(), nil, 0)

	_, err := s.AddParcel(context.Background(), "", "dhl")
	require.ErrorIs(t, err, apperr.ErrInvalid)

	_, err = s.AddParcel(context.Background(), "X", "")
	require.ErrorIs(t, err, apperr.ErrInvalid)
}

func TestService_AddParcel_ParsesCarrier(t *testing.T) {
	r := &fakeRepo{addOut: &models.Parcel{ID: 1}}
	s := New(r, providers.NewRegistry(), nil, 0)

	_, err := s.AddParcel(context.Background(), "00340434162997311450", "dhl")
	require.NoError(t, err)
	require.Equal(t, models.CarrierDHL, r.addCarrier)
	require.Equal(t, "00340434162997311450", r.addTrackingID)

	_, err = s.AddParcel(context.Background(), "FX1", "fedex")
	require.NoError(t, err)
	require.Equal(t, "fedex", r.addCarrier.Code())
	require.False(t, r.addCarrier.Known())
}

func TestService_TrackParcel_Dispatch(t *testing.T) {
	p := &fakeProvider{out: models.TrackingInfo{Events: []models.TrackingEvent{
		{Status: models.TrackingStatusDelivered, EventTime: time.Now().UTC()},
	}}}
	reg := providers.NewRegistry().Register(models.CarrierDHL, p)
	r := &fakeRepo{getOut: &models.Parcel{ID: 7, TrackingID: "T", Carrier: models.CarrierDHL}}
	s := New(r, reg, nil, 0)

	info, err := s.TrackParcel(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, 1, p.calls)
	require.Equal(t, models.TrackingStatusDelivered, info.LatestStatus())
}

func TestService_TrackParcel_UnsupportedCarrierNoProviderCall(t *testing.T) {
	p := &fakeProvider{}
	reg := providers.NewRegistry().Register(models.CarrierDHL, p)
	r := &fakeRepo{getOut: &models.Parcel{ID: 7, TrackingID: "T", Carrier: models.ParseCarrier("fedex")}}
	s := New(r, reg, nil, 0)

	_, err := s.TrackParcel(context.Background(), 7)
	var uc *apperr.UnsupportedCarrierError
	require.ErrorAs(t, err, &uc)
	require.Equal(t, "fedex", uc.Carrier)
	require.Zero(t, p.calls)
}

func TestService_TrackParcel_NotFoundPassthrough(t *testing.T) {
	r := &fakeRepo{getErr: apperr.ErrNotFound}
	s := New(r, providers.NewRegistry(), nil, 0)

	_, err := s.TrackParcel(context.Background(), 1)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestService_TrackParcel_CacheHitSkipsProvider(t *testing.T) {
	cached, _ := json.Marshal(models.TrackingInfo{Events: []models.TrackingEvent{
		{Status: models.TrackingStatusInTransit},
	}})
	c := &fakeCache{m: map[string][]byte{"parcel:7:tracking": cached}}

	p := &fakeProvider{}
	reg := providers.NewRegistry().Register(models.CarrierDHL, p)
	r := &fakeRepo{getOut: &models.Parcel{ID: 7, TrackingID: "T", Carrier: models.CarrierDHL}}
	s := New(r, reg, c, time.Minute)

	info, err := s.TrackParcel(context.Background(), 7)
	require.NoError(t, err)
	require.Zero(t, p.calls)
	require.Equal(t, models.TrackingStatusInTransit, info.LatestStatus())
}

func TestService_TrackParcel_PopulatesCache(t *testing.T) {
	c := &fakeCache{m: map[string][]byte{}}
	p := &fakeProvider{out: models.TrackingInfo{}}
	reg := providers.NewRegistry().Register(models.CarrierDHL, p)
	r := &fakeRepo{getOut: &models.Parcel{ID: 7, TrackingID: "T", Carrier: models.CarrierDHL}}
	s := New(r, reg, c, time.Minute)

	_, err := s.TrackParcel(context.Background(), 7)
	require.NoError(t, err)
	require.Contains(t, c.m, "parcel:7:tracking")
}

func TestService_DeleteParcel_InvalidatesCache(t *testing.T) {
	c := &fakeCache{m: map[string][]byte{"parcel:3:tracking": []byte("{}")}}
	r := &fakeRepo{}
	s := New(r, providers.NewRegistry(), c, time.Minute)

	require.NoError(t, s.DeleteParcel(context.Background(), 3))
	require.Equal(t, uint64(3), r.deletedID)
	require.NotContains(t, c.m, "parcel:3:tracking")
}

func TestService_RefreshParcel_Validate(t *testing.T) {
	r := &fakeRepo{}
	s := New(r, providers.NewRegistry(), nil, 0)
	require.ErrorIs(t, s.RefreshParcel(context.Background(), 0), apperr.ErrInvalid)

	require.NoError(t, s.RefreshParcel(context.Background(), 10))
	require.Equal(t, uint64(10), r.refreshID)
}

func TestService_ApplyKafkaUpdate(t *testing.T) {
	c := &fakeCache{m: map[string][]byte{"parcel:5:tracking": []byte("{}")}}
	r := &fakeRepo{}
	s := New(r, providers.NewRegistry(), c, time.Minute)

	checkedAt := time.Now().UTC()
	err := s.ApplyKafkaUpdate(context.Background(), messages.ParcelChecked{
		ParcelID:    5,
		CheckedAt:   checkedAt,
		Status:      string(models.TrackingStatusInTransit),
		NextCheckAt: checkedAt.Add(time.Hour),
		Events: []messages.ParcelEvent{
			{Status: string(models.TrackingStatusInTransit), Location: "Bonn", EventTime: checkedAt},
		},
	})
	require.NoError(t, err)
	require.Equal(t, uint64(5), r.applyUpd.ParcelID)
	require.Equal(t, models.TrackingStatusInTransit, r.applyUpd.Status)
	require.Len(t, r.applyUpd.Events, 1)
	require.NotContains(t, c.m, "parcel:5:tracking")
}

func TestService_ApplyKafkaUpdate_Defaults(t *testing.T) {
	r := &fakeRepo{}
	s := New(r, providers.NewRegistry(), nil, 0)

	require.ErrorIs(t, s.ApplyKafkaUpdate(context.Background(), messages.ParcelChecked{}), apperr.ErrInvalid)

	require.NoError(t, s.ApplyKafkaUpdate(context.Background(), messages.ParcelChecked{ParcelID: 1}))
	require.False(t, r.applyUpd.CheckedAt.IsZero())
	require.False(t, r.applyUpd.NextCheckAt.IsZero())
}
