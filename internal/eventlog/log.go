// Package eventlog is the append-only log of domain facts, scoped per
// aggregate, with snapshot-then-incremental subscriptions.
package eventlog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"dealtrail/internal/domain"
	"dealtrail/internal/metrics"
	"dealtrail/internal/store"
	"dealtrail/internal/tracing"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Log struct {
	storage store.IEventStorage
	hub     *Hub
	metrics metrics.IMetrics
	locks   *KeyedMutex
	clock   func() time.Time
	newID   func() string
	logger  *slog.Logger
}

type Deps struct {
	Storage store.IEventStorage
	// Hub defaults to a private hub; share one with the change-feed relay
	// to fan out events appended by other processes.
	Hub     *Hub
	Metrics metrics.IMetrics
	Clock   func() time.Time
	NewID   func() string
}

func New(deps Deps) *Log {
	l := &Log{
		storage: deps.Storage,
		hub:     deps.Hub,
		metrics: deps.Metrics,
		locks:   NewKeyedMutex(),
		clock:   deps.Clock,
		newID:   deps.NewID,
		logger:  slog.Default().With("component", "eventlog"),
	}
	if l.hub == nil {
		l.hub = NewHub()
	}
	if l.metrics == nil {
		l.metrics = metrics.NewNoop()
	}
	if l.clock == nil {
		l.clock = time.Now
	}
	if l.newID == nil {
		l.newID = uuid.NewString
	}
	return l
}

func (l *Log) Hub() *Hub {
	return l.hub
}

// Append persists a validated event for agg and publishes it to the
// aggregate's subscribers. A failed insert publishes nothing.
func (l *Log) Append(ctx context.Context, agg domain.Aggregate, ev domain.ValidatedEvent, actor domain.Actor) (domain.Event, error) {
	ctx, span := tracing.Tracer().Start(ctx, "eventlog.Append", trace.WithAttributes(
		attribute.String("dealtrail.aggregate", agg.Key()),
		attribute.String("dealtrail.event_type", string(ev.Type)),
	))
	defer span.End()
	started := time.Now()

	event := domain.Event{
		ID:        l.newID(),
		Type:      ev.Type,
		ActorRole: actor.Role,
		ActorID:   actor.ID,
		Payload:   ev.Payload,
	}
	switch agg.Kind {
	case domain.AggregateContact:
		event.ContactID = agg.ID
	default:
		event.TransactionID = agg.ID
	}
	if event.Payload == nil {
		event.Payload = map[string]any{}
	}

	unlock := l.locks.Lock(agg.Key())
	defer unlock()

	// timestamptz keeps microseconds
	event.CreatedAt = l.clock().UTC().Truncate(time.Microsecond)
	stored, err := l.storage.InsertEvent(ctx, event)
	if err != nil {
		l.metrics.EventRejected("persistence")
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		l.logger.ErrorContext(ctx, "eventlog: append failed",
			"aggregate", agg.Key(), "type", ev.Type, "error", err)
		return domain.Event{}, fmt.Errorf("%w: %w", domain.ErrorPersistence, err)
	}

	l.hub.Publish(agg, []domain.Event{stored})
	l.metrics.EventAppended(string(stored.Type))
	l.metrics.AppendDuration(time.Since(started))
	span.SetAttributes(attribute.Int64("dealtrail.sequence", stored.Sequence))
	l.logger.DebugContext(ctx, "eventlog: appended",
		"aggregate", agg.Key(), "type", stored.Type, "id", stored.ID, "seq", stored.Sequence)
	return stored, nil
}

// Read returns the aggregate's events ascending by (CreatedAt, Sequence).
func (l *Log) Read(ctx context.Context, agg domain.Aggregate) ([]domain.Event, error) {
	events, err := l.storage.SelectEvents(ctx, agg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrorPersistence, err)
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Before(events[j])
	})
	return events, nil
}

// Subscribe delivers the current snapshot of agg to listener, then every
// later event in append order. Delivery runs on a goroutine owned by the
// subscription; call the returned func to stop it.
func (l *Log) Subscribe(ctx context.Context, agg domain.Aggregate, listener Listener) (func(), error) {
	sub := l.hub.add(agg, listener)
	snapshot, err := l.Read(ctx, agg)
	if err != nil {
		l.hub.remove(sub)
		return nil, err
	}
	sub.start(snapshot)
	l.metrics.SubscriptionsActive(l.hub.Count())

	return func() {
		l.hub.remove(sub)
		sub.stop()
		l.metrics.SubscriptionsActive(l.hub.Count())
	}, nil
}
