package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"parcelbox/config"
	"parcelbox/internal/broker/kafka"
	"parcelbox/internal/cache/rediscache"
	"parcelbox/internal/models"
	"parcelbox/internal/providers"
	"parcelbox/internal/providers/dhl"
	"parcelbox/internal/providers/fake"
	"parcelbox/internal/services/poller"
	"parcelbox/internal/storage/pgparcels"
)

type workerFactories struct {
	newStorage     func(cfg *config.Config) (repo poller.Repository, closeFn func(), err error)
	newProducer    func(cfg *config.Config) poller.Producer
	newRateLimiter func(cfg *config.Config) poller.RateLimiter
	newProviders   func(cfg *config.Config) *providers.Registry
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (poller.Repository, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgparcels.New(connString)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) poller.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newRateLimiter: func(cfg *config.Config) poller.RateLimiter {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
		newProviders: func(cfg *config.Config) *providers.Registry {
			reg := providers.NewRegistry()
			// Without an API key the real client fails every call, so fall
			// back to the local fake in that case too.
			apiKey := os.Getenv("DHL_API_KEY")
			if cfg.Parcels.UseFakeProvider || apiKey == "" {
				return reg.Register(models.CarrierDHL, fake.New())
			}
			return reg.Register(models.CarrierDHL, dhl.New(cfg.Parcels.DHLBaseURL, apiKey))
		},
	}
}

func plannerConfigFrom(cfg *config.Config) poller.PlannerConfig {
	return poller.PlannerConfig{
		InTransitMinDelay: time.Duration(cfg.Parcels.WorkerNextCheckInTransitMinSeconds) * time.Second,
		InTransitMaxDelay: time.Duration(cfg.Parcels.WorkerNextCheckInTransitMaxSeconds) * time.Second,
		ExceptionDelay:    time.Duration(cfg.Parcels.WorkerNextCheckExceptionSeconds) * time.Second,
		UnknownDelay:      time.Duration(cfg.Parcels.WorkerNextCheckUnknownSeconds) * time.Second,
		Backoff1:          time.Duration(cfg.Parcels.WorkerBackoff1Seconds) * time.Second,
		Backoff2:          time.Duration(cfg.Parcels.WorkerBackoff2Seconds) * time.Second,
		Backoff3:          time.Duration(cfg.Parcels.WorkerBackoff3Seconds) * time.Second,
		Backoff4:          time.Duration(cfg.Parcels.WorkerBackoff4Seconds) * time.Second,
	}
}

func newPoller(cfg *config.Config, f workerFactories) (*poller.Poller, func(), error) {
	topic := cfg.Kafka.ParcelCheckedTopicName
	if topic == "" {
		topic = "parcel.checked"
	}

	pollInterval := time.Duration(cfg.Parcels.WorkerPollIntervalSeconds) * time.Second
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	batchSize := cfg.Parcels.WorkerBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	concurrency := cfg.Parcels.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	lease := time.Duration(cfg.Parcels.WorkerLeaseSeconds) * time.Second
	if lease <= 0 {
		lease = 120 * time.Second
	}
	rlPerMin := int64(cfg.Parcels.WorkerRateLimitPerMinute)
	if rlPerMin <= 0 {
		rlPerMin = 120
	}

	repo, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return nil, nil, err
	}

	p := poller.New(repo, f.newProviders(cfg), f.newProducer(cfg), f.newRateLimiter(cfg), topic).
		WithSettings(pollInterval, batchSize, concurrency, lease, rlPerMin).
		WithPlanner(plannerConfigFrom(cfg))

	return p, closeFn, nil
}

func RunParcelWorker(ctx context.Context, cfg *config.Config, f workerFactories) error {
	p, closeFn, err := newPoller(cfg, f)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}
	return p.Run(ctx)
}
