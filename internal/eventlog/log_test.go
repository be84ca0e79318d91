package eventlog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dealtrail/internal/domain"
	"dealtrail/internal/store/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var agent = domain.Actor{ID: "agent-1", Role: domain.RoleAgent}

func newTestLog(t *testing.T) (*Log, *memstore.Storage) {
	t.Helper()
	st := memstore.New()
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	tick := 0
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return New(Deps{Storage: st, Clock: clock}), st
}

func message(text string) domain.ValidatedEvent {
	return domain.ValidatedEvent{Type: domain.EventMessageSent, Payload: map[string]any{"body": text}}
}

func collect(t *testing.T, ch <-chan []domain.Event, want int) []domain.Event {
	t.Helper()
	var got []domain.Event
	deadline := time.After(2 * time.Second)
	for len(got) < want {
		select {
		case batch := <-ch:
			got = append(got, batch...)
		case <-deadline:
			t.Fatalf("timed out: got %d of %d events", len(got), want)
		}
	}
	return got
}

func TestAppendAndRead(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLog(t)
	tx := domain.TransactionAggregate("tx-1")

	first, err := l.Append(ctx, tx, message("hello"), agent)
	require.NoError(t, err)
	second, err := l.Append(ctx, tx, message("again"), agent)
	require.NoError(t, err)
	_, err = l.Append(ctx, domain.ContactAggregate("c-1"), message("elsewhere"), agent)
	require.NoError(t, err)

	assert.NotEmpty(t, first.ID)
	assert.Equal(t, "tx-1", first.TransactionID)
	assert.Equal(t, domain.RoleAgent, first.ActorRole)
	assert.Equal(t, time.UTC, first.CreatedAt.Location())

	events, err := l.Read(ctx, tx)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, first.ID, events[0].ID)
	assert.Equal(t, second.ID, events[1].ID)

	contact, err := l.Read(ctx, domain.ContactAggregate("c-1"))
	require.NoError(t, err)
	require.Len(t, contact, 1)
	assert.Equal(t, "c-1", contact[0].ContactID)
	assert.Empty(t, contact[0].TransactionID)
}

func TestAppend_PersistenceFailureLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	l, st := newTestLog(t)
	tx := domain.TransactionAggregate("tx-1")
	st.FailInsertEvent = func(domain.Event) error { return errors.New("disk full") }

	ch := make(chan []domain.Event, 4)
	unsubscribe, err := l.Subscribe(ctx, tx, func(events []domain.Event) { ch <- events })
	require.NoError(t, err)
	defer unsubscribe()
	assert.Empty(t, <-ch, "snapshot of an empty log")

	_, err = l.Append(ctx, tx, message("lost"), agent)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrorPersistence))

	events, err := l.Read(ctx, tx)
	require.NoError(t, err)
	assert.Empty(t, events)

	select {
	case batch := <-ch:
		t.Fatalf("unexpected delivery: %v", batch)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribe_SnapshotThenIncremental(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLog(t)
	tx := domain.TransactionAggregate("tx-1")

	before, err := l.Append(ctx, tx, message("before"), agent)
	require.NoError(t, err)

	ch := make(chan []domain.Event, 8)
	unsubscribe, err := l.Subscribe(ctx, tx, func(events []domain.Event) { ch <- events })
	require.NoError(t, err)

	snapshot := collect(t, ch, 1)
	require.Len(t, snapshot, 1)
	assert.Equal(t, before.ID, snapshot[0].ID)

	after, err := l.Append(ctx, tx, message("after"), agent)
	require.NoError(t, err)
	incremental := collect(t, ch, 1)
	assert.Equal(t, after.ID, incremental[0].ID)

	unsubscribe()
	_, err = l.Append(ctx, tx, message("unheard"), agent)
	require.NoError(t, err)
	select {
	case batch := <-ch:
		t.Fatalf("delivery after unsubscribe: %v", batch)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 0, l.Hub().Count())
}

func TestSubscribe_ListenerMayAppend(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLog(t)
	tx := domain.TransactionAggregate("tx-1")

	ch := make(chan []domain.Event, 8)
	unsubscribe, err := l.Subscribe(ctx, tx, func(events []domain.Event) {
		for _, ev := range events {
			if ev.Payload["body"] == "ping" {
				_, err := l.Append(ctx, tx, message("pong"), agent)
				assert.NoError(t, err)
			}
		}
		ch <- events
	})
	require.NoError(t, err)
	defer unsubscribe()

	_, err = l.Append(ctx, tx, message("ping"), agent)
	require.NoError(t, err)

	got := collect(t, ch, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "ping", got[0].Payload["body"])
	assert.Equal(t, "pong", got[1].Payload["body"])
}

func TestSubscribe_ConcurrentAppendsArriveInOrderWithoutDuplicates(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLog(t)
	tx := domain.TransactionAggregate("tx-1")

	ch := make(chan []domain.Event, 128)
	unsubscribe, err := l.Subscribe(ctx, tx, func(events []domain.Event) { ch <- events })
	require.NoError(t, err)
	defer unsubscribe()

	const writers, perWriter = 4, 10
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := l.Append(ctx, tx, message("x"), agent)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	got := collect(t, ch, writers*perWriter)
	require.Len(t, got, writers*perWriter)
	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i].Sequence, got[i-1].Sequence)
	}
}

func TestHub_DropsRedeliveredSequences(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLog(t)
	tx := domain.TransactionAggregate("tx-1")

	ch := make(chan []domain.Event, 8)
	unsubscribe, err := l.Subscribe(ctx, tx, func(events []domain.Event) { ch <- events })
	require.NoError(t, err)
	defer unsubscribe()
	assert.Empty(t, <-ch)

	ev, err := l.Append(ctx, tx, message("once"), agent)
	require.NoError(t, err)
	collect(t, ch, 1)

	// the change-feed relay may publish the same row again
	l.Hub().Publish(tx, []domain.Event{ev})
	select {
	case batch := <-ch:
		t.Fatalf("duplicate delivery: %v", batch)
	case <-time.After(50 * time.Millisecond):
	}
}
