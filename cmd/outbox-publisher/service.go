package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
)

const (
	publishTimeout = 15 * time.Second
	maxBackoff     = 10 * time.Second
	jitterWindow   = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, maxAttempts int) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.Decoded, error)
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	PublisherFactory publisherFactory
}

// settings are the loop knobs after defaults have been applied.
type settings struct {
	batch       int
	maxAttempts int
	poll        time.Duration
}

func settingsFrom(cfg config.OutboxConfig) settings {
	s := settings{batch: 50, maxAttempts: 10, poll: 500 * time.Millisecond}
	if cfg.BatchSize > 0 {
		s.batch = cfg.BatchSize
	}
	if cfg.MaxAttempts > 0 {
		s.maxAttempts = cfg.MaxAttempts
	}
	if cfg.PollIntervalMS > 0 {
		s.poll = time.Duration(cfg.PollIntervalMS) * time.Millisecond
	}
	return s
}

// Service relays outbox_events rows to Pub/Sub. A row either publishes, is
// retried on a later batch, or is parked with attempt_count at the ceiling.
type Service struct {
	logg       *logger.Logger
	db         dbClient
	pubsub     pubSubClient
	repo       outboxRepository
	routes     registryResolver
	publishers publisherFactory
	settings   settings
}

func NewService(params ServiceParams) (*Service, error) {
	required := []struct {
		missing bool
		name    string
	}{
		{params.Config == nil, "config"},
		{params.Logger == nil, "logger"},
		{params.DB == nil, "database client"},
		{params.PubSub == nil, "pubsub client"},
		{params.Repository == nil, "outbox repository"},
		{params.Registry == nil, "event registry"},
	}
	for _, dep := range required {
		if dep.missing {
			return nil, fmt.Errorf("%s is required", dep.name)
		}
	}

	publishers := params.PublisherFactory
	if publishers == nil {
		publishers = func(topic string) publisher {
			return newGCPPublisher(params.PubSub.Publisher(topic))
		}
	}

	return &Service{
		logg:       params.Logger,
		db:         params.DB,
		pubsub:     params.PubSub,
		repo:       params.Repository,
		routes:     params.Registry,
		publishers: publishers,
		settings:   settingsFrom(params.Config.Outbox),
	}, nil
}

// Run polls until ctx is canceled. Failed batches back off exponentially up to
// maxBackoff; a non-empty batch is followed immediately by the next one.
func (s *Service) Run(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := s.pubsub.Ping(ctx); err != nil {
		return fmt.Errorf("pubsub ping failed: %w", err)
	}

	pace := newPacer(s.settings.poll, maxBackoff)
	for ctx.Err() == nil {
		busy, err := s.processBatch(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox.batch_failed", err)
			wait = pace.failed()
		case busy:
			pace.reset()
			continue
		default:
			wait = pace.reset()
		}
		if err := pause(ctx, wait); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// processBatch handles one locked batch inside a transaction and reports
// whether any rows were claimed.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	var claimed int
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.repo.FetchUnpublishedForPublish(tx, s.settings.batch, s.settings.maxAttempts)
		if err != nil {
			return err
		}
		claimed = len(rows)
		for _, row := range rows {
			if err := s.relay(ctx, tx, row); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed > 0, err
}

// relay publishes one row and books the result. Only bookkeeping failures
// abort the batch.
func (s *Service) relay(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) error {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"outbox_id":     row.ID.String(),
		"event_type":    row.EventType,
		"aggregate_id":  row.AggregateID.String(),
		"attempt_count": row.AttemptCount,
	})

	decoded, err := s.routes.Resolve(row)
	if err != nil {
		return s.park(logCtx, tx, row.ID, "undeliverable", err)
	}
	logCtx = s.logg.WithField(logCtx, "topic", decoded.Route.Topic)

	sendErr := s.send(ctx, row, decoded)
	switch {
	case sendErr == nil:
		if err := s.repo.MarkPublishedTx(tx, row.ID); err != nil {
			return fmt.Errorf("mark %s published: %w", row.ID, err)
		}
		s.logg.Debug(logCtx, "outbox.published")
		return nil
	case registry.IsPermanent(sendErr):
		return s.park(logCtx, tx, row.ID, "undeliverable", sendErr)
	case row.AttemptCount+1 >= s.settings.maxAttempts:
		return s.park(logCtx, tx, row.ID, "exhausted", fmt.Errorf("max publish attempts reached: %w", sendErr))
	}

	s.logg.Warn(s.logg.WithField(logCtx, "error", sendErr.Error()), "outbox.publish_retry")
	if err := s.repo.MarkFailedTx(tx, row.ID, sendErr); err != nil {
		return fmt.Errorf("mark %s failed: %w", row.ID, err)
	}
	return nil
}

func (s *Service) park(ctx context.Context, tx *gorm.DB, id uuid.UUID, reason string, cause error) error {
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"park_reason": reason, "error": cause.Error()}), "outbox.parked")
	if err := s.repo.MarkTerminalTx(tx, id, cause, s.settings.maxAttempts); err != nil {
		return fmt.Errorf("park %s: %w", id, err)
	}
	return nil
}

func (s *Service) send(ctx context.Context, row models.OutboxEvent, decoded *registry.Decoded) error {
	topic := decoded.Route.Topic
	pub := s.publishers(topic)
	if pub == nil {
		return registry.Permanent(fmt.Errorf("no publisher for topic %s", topic))
	}

	sendCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	result := pub.Publish(sendCtx, &gcppubsub.Message{
		Data:       row.Payload,
		Attributes: messageAttributes(row, decoded.Envelope.EventID),
	})
	if result == nil {
		return registry.Permanent(fmt.Errorf("publisher for topic %s returned no result", topic))
	}
	_, err := result.Get(sendCtx)
	return err
}

// messageAttributes lets subscribers filter without decoding the body.
func messageAttributes(row models.OutboxEvent, eventID string) map[string]string {
	return map[string]string{
		"event_id":       eventID,
		"event_type":     string(row.EventType),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID.String(),
		"created_at":     row.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// pacer doubles the wait after each failure and falls back to the base
// interval once a batch succeeds. Waits carry up to jitterWindow of jitter.
type pacer struct {
	base, ceiling, current time.Duration
	rng                    *rand.Rand
}

func newPacer(base, ceiling time.Duration) *pacer {
	return &pacer{base: base, ceiling: ceiling, current: base, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (p *pacer) failed() time.Duration {
	p.current = min(max(p.current, p.base)*2, p.ceiling)
	return p.jitter(p.current)
}

func (p *pacer) reset() time.Duration {
	p.current = p.base
	return p.jitter(p.base)
}

func (p *pacer) jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(p.rng.Int63n(int64(jitterWindow)))
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func newGCPPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return gcpPublisher{p}
}

type gcpPublisher struct {
	topic *gcppubsub.Publisher
}

func (p gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return gcpResult{p.topic.Publish(ctx, msg)}
}

type gcpResult struct {
	res *gcppubsub.PublishResult
}

func (r gcpResult) Get(ctx context.Context) (string, error) {
	if r.res == nil {
		return "", errors.New("publish result is nil")
	}
	return r.res.Get(ctx)
}
