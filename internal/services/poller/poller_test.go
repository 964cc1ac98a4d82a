package poller

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"parcelbox/internal/broker/messages"
	"parcelbox/internal/models"
	"parcelbox/internal/providers"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeProducer struct {
	topic string
	key   []byte
	value []byte
	calls int
	err   error
}

func (p *fakeProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	p.calls++
	p.topic, p.key, p.value = topic, key, value
	return p.err
}

type fakeRL struct {
	allowed bool
	count   int64
	err     error
}

func (r fakeRL) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	return r.allowed, r.count, r.err
}

type fakeProvider struct {
	calls int
	info  models.TrackingInfo
	err   error
}

func (p *fakeProvider) TrackParcel(ctx context.Context, trackingID string) (models.TrackingInfo, error) {
	p.calls++
	return p.info, p.err
}

func dhlRegistry(p providers.TrackingProvider) *providers.Registry {
	return providers.NewRegistry().Register(models.CarrierDHL, p)
}

func TestPoller_processOne_okPublishes(t *testing.T) {
	now := time.Now().UTC()
	fp := &fakeProducer{}
	prov := &fakeProvider{info: models.TrackingInfo{Events: []models.TrackingEvent{
		{Status: models.TrackingStatusInTransit, Location: "Leipzig", Description: "Processed", EventTime: now},
	}}}
	p := New(nil, dhlRegistry(prov), fp, fakeRL{allowed: true}, "parcel.checked")

	pc := &models.ParcelCheck{ParcelID: 42, Carrier: models.CarrierDHL, TrackingID: "N"}
	require.NoError(t, p.processOne(context.Background(), pc))
	require.Equal(t, 1, fp.calls)
	require.Equal(t, "parcel.checked", fp.topic)
	require.Equal(t, []byte("42"), fp.key)

	var msg messages.ParcelChecked
	require.NoError(t, json.Unmarshal(fp.value, &msg))
	require.Equal(t, uint64(42), msg.ParcelID)
	require.Equal(t, string(models.TrackingStatusInTransit), msg.Status)
	require.Len(t, msg.Events, 1)
	require.Nil(t, msg.Error)
	require.True(t, msg.NextCheckAt.After(now))
}

func TestPoller_processOne_providerErrorBackoff(t *testing.T) {
	fp := &fakeProducer{}
	prov := &fakeProvider{err: errors.New("boom")}
	p := New(nil, dhlRegistry(prov), fp, nil, "parcel.checked")

	pc := &models.ParcelCheck{ParcelID: 1, Carrier: models.CarrierDHL, TrackingID: "N", CheckFailCount: 2}
	require.NoError(t, p.processOne(context.Background(), pc))
	require.Equal(t, 1, fp.calls)

	var msg messages.ParcelChecked
	require.NoError(t, json.Unmarshal(fp.value, &msg))
	require.NotNil(t, msg.Error)
	require.Contains(t, *msg.Error, "boom")
}

func TestPoller_processOne_unsupportedCarrierNoProviderCall(t *testing.T) {
	fp := &fakeProducer{}
	prov := &fakeProvider{}
	p := New(nil, dhlRegistry(prov), fp, nil, "parcel.checked")

	pc := &models.ParcelCheck{ParcelID: 2, Carrier: models.ParseCarrier("fedex"), TrackingID: "N"}
	require.NoError(t, p.processOne(context.Background(), pc))
	require.Zero(t, prov.calls)
	require.Equal(t, 1, fp.calls)

	var msg messages.ParcelChecked
	require.NoError(t, json.Unmarshal(fp.value, &msg))
	require.NotNil(t, msg.Error)
	require.Contains(t, *msg.Error, "fedex")
}

func TestPoller_WithSettings(t *testing.T) {
	p := New(nil, providers.NewRegistry(), &fakeProducer{}, nil, "t").
		WithSettings(5*time.Second, 7, 9, 11*time.Second, 13)
	require.Equal(t, 5*time.Second, p.pollInterval)
	require.Equal(t, 7, p.batchSize)
	require.Equal(t, 9, p.concurrency)
	require.Equal(t, 11*time.Second, p.lease)
	require.Equal(t, int64(13), p.rateLimitPerMinute)
}

func TestPoller_Stats(t *testing.T) {
	p := New(nil, providers.NewRegistry(), &fakeProducer{}, nil, "t")
	st := p.Stats()
	require.False(t, st.StartedAt.IsZero())
	require.Nil(t, st.LastCycleAt)

	p.Trigger()
	st = p.Stats()
	require.NotNil(t, st.LastTriggerAt)
}
