package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/hust/bookingclient/adapters/events"
	"github.com/hust/bookingclient/adapters/remote"
	"github.com/hust/bookingclient/adapters/store"
	"github.com/hust/bookingclient/config"
	"github.com/hust/bookingclient/ports"
	"github.com/hust/bookingclient/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// runtime owns everything one bookingctl invocation needs
type runtime struct {
	log      *slog.Logger
	svc      *service.AuthService
	registry *prometheus.Registry
	closers  []func() error
}

func newRuntime(ctx context.Context, cfg config.Config, log *slog.Logger) (*runtime, error) {
	r := &runtime{log: log, registry: prometheus.NewRegistry()}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		r.closers = append(r.closers, redisClient.Close)
	}

	snapshots, err := newSnapshotStore(cfg, redisClient)
	if err != nil {
		r.Close()
		return nil, err
	}

	publisher, err := r.newPublisher(ctx, redisClient, cfg.EventsTopic)
	if err != nil {
		r.Close()
		return nil, err
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	r.svc = service.NewAuthService(service.Deps{
		API:     remote.NewClient(cfg.APIBaseURL, cfg.Paths, httpClient),
		Doer:    httpClient,
		Store:   snapshots,
		Events:  events.NewWatermillPublisher(publisher, cfg.EventsTopic),
		Metrics: service.NewMetrics(r.registry),
		Logger:  log,
		Gateway: service.GatewayOptions{
			BaseURL:           cfg.APIBaseURL,
			AuthFailureStatus: cfg.AuthFailureStatus,
		},
		Refresh: service.RefreshOptions{
			Timeout:          cfg.RefreshTimeout,
			TransportRetries: uint(cfg.RefreshRetries),
			RetryBackoff:     cfg.RetryBackoff,
		},
	})

	if _, err := r.svc.Rehydrate(ctx); err != nil {
		r.Close()
		return nil, err
	}

	return r, nil
}

func newSnapshotStore(cfg config.Config, redisClient *redis.Client) (ports.SnapshotStore, error) {
	switch cfg.StateBackend {
	case config.BackendMemory:
		return store.NewMemoryStore(), nil
	case config.BackendRedis:
		return store.NewRedisStore(redisClient, cfg.RedisKey), nil
	case config.BackendFile:
		return store.NewFileStore(cfg.StateFile), nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.StateBackend)
	}
}

// newPublisher streams session events to Redis when configured. Otherwise events
// stay in process and are written to the debug log.
func (r *runtime) newPublisher(ctx context.Context, redisClient *redis.Client, topic string) (message.Publisher, error) {
	logger := watermill.NewSlogLogger(r.log.With("component", "watermill"))

	if redisClient != nil {
		publisher, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{
				Client: redisClient,
			},
			logger,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis publisher: %w", err)
		}
		r.closers = append([]func() error{publisher.Close}, r.closers...)
		return publisher, nil
	}

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, logger)
	r.closers = append([]func() error{pubSub.Close}, r.closers...)

	messages, err := pubSub.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to session events: %w", err)
	}
	go func() {
		for msg := range messages {
			if event, err := events.DecodeStateChange(msg); err == nil {
				r.log.Debug("session changed", "from", event.From, "to", event.To, "reason", event.Reason)
			}
			msg.Ack()
		}
	}()

	return pubSub, nil
}

// Close releases publishers and connections in reverse order of creation
func (r *runtime) Close() {
	for _, closeFn := range r.closers {
		if err := closeFn(); err != nil {
			r.log.Warn("failed to close resource", "error", err)
		}
	}
	r.closers = nil
}
