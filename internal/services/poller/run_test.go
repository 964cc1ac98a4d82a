package poller

import (
	"context"
	"testing"
	"time"

	"parcelbox/internal/models"
	"parcelbox/internal/providers"

	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	calls int
}

func (r *fakeRepo) ClaimDueParcels(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.ParcelCheck, error) {
	r.calls++
	return []*models.ParcelCheck{}, nil
}

type noopProducer struct{}

func (noopProducer) Publish(ctx context.Context, topic string, key, value []byte) error { return nil }

func TestPoller_Run_StopsOnContextCancel(t *testing.T) {
	repo := &fakeRepo{}
	p := New(repo, providers.NewRegistry(), noopProducer{}, nil, "t").
		WithSettings(5*time.Millisecond, 1, 1, time.Second, 1)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := p.Run(ctx)
	require.Error(t, err)
	require.GreaterOrEqual(t, repo.calls, 1)
}

func TestPoller_Trigger_ForcesCycle(t *testing.T) {
	repo := &fakeRepo{}
	p := New(repo, providers.NewRegistry(), noopProducer{}, nil, "t").
		WithSettings(time.Hour, 1, 1, time.Second, 1)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		p.Trigger()
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_ = p.Run(ctx)
	require.GreaterOrEqual(t, repo.calls, 1)
}
