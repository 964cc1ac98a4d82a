package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"parcelbox/config"
	"parcelbox/internal/broker/kafka"
	"parcelbox/internal/cache/rediscache"
	"parcelbox/internal/models"
	"parcelbox/internal/providers"
	"parcelbox/internal/providers/dhl"
	"parcelbox/internal/providers/fake"
	"parcelbox/internal/services/parcels"
	"parcelbox/internal/storage/pgparcels"

	"github.com/joho/godotenv"
)

type parcelAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     parcelAPIOpts
	svc      *parcels.Service
	consumer *kafka.Consumer
	closeDB  func()
}

func mustBootstrapParcelAPI() *parcelAPIApp {
	_ = godotenv.Load()

	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config, %v", err))
	}

	httpAddr := cfg.Parcels.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.Parcels.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "parcel-api"
	}
	topic := cfg.Kafka.ParcelCheckedTopicName
	if topic == "" {
		topic = "parcel.checked"
	}

	cacheTTL := time.Duration(cfg.Parcels.TrackCacheTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st := mustOpenPostgresWithRetry(connString, 60*time.Second)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)

	svc := parcels.New(st, newProviderRegistry(cfg), rc, cacheTTL)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	consumer := kafka.NewConsumer(brokers, topic, consumerGroup)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &parcelAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: parcelAPIOpts{
			httpAddr:      httpAddr,
			swaggerPath:   swaggerPath,
			topic:         topic,
			consumerGroup: consumerGroup,
		},
		svc:      svc,
		consumer: consumer,
		closeDB:  st.Close,
	}
}

func newProviderRegistry(cfg *config.Config) *providers.Registry {
	reg := providers.NewRegistry()
	if cfg.Parcels.UseFakeProvider {
		return reg.Register(models.CarrierDHL, fake.New())
	}
	return reg.Register(models.CarrierDHL, dhl.New(cfg.Parcels.DHLBaseURL, os.Getenv("DHL_API_KEY")))
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgparcels.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgparcels.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *parcelAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *parcelAPIApp) Run() error {
	return runParcelAPI(a.ctx, a.opts, a.svc, a.consumer)
}
