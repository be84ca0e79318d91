package eventlog

import (
	"sync"

	"dealtrail/internal/domain"
)

// Listener receives batches of events in append order. The first batch of a
// subscription is the snapshot known at subscribe time and may be empty.
type Listener func(events []domain.Event)

// Hub fans published events out to the subscriptions of an aggregate. Each
// subscription owns a mailbox drained by its own goroutine, so Publish never
// waits on a listener.
type Hub struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[domain.Aggregate]map[uint64]*subscription
}

func NewHub() *Hub {
	return &Hub{subs: make(map[domain.Aggregate]map[uint64]*subscription)}
}

// Publish enqueues events for every current subscriber of agg.
func (h *Hub) Publish(agg domain.Aggregate, events []domain.Event) {
	if len(events) == 0 {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs[agg] {
		sub.enqueue(events)
	}
}

// Count returns the number of live subscriptions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, subs := range h.subs {
		n += len(subs)
	}
	return n
}

func (h *Hub) add(agg domain.Aggregate, listener Listener) *subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	sub := newSubscription(h.nextID, agg, listener)
	if h.subs[agg] == nil {
		h.subs[agg] = make(map[uint64]*subscription)
	}
	h.subs[agg][sub.id] = sub
	return sub
}

func (h *Hub) remove(sub *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[sub.agg], sub.id)
	if len(h.subs[sub.agg]) == 0 {
		delete(h.subs, sub.agg)
	}
}

type subscription struct {
	id       uint64
	agg      domain.Aggregate
	listener Listener

	mu      sync.Mutex
	queue   [][]domain.Event
	signal  chan struct{}
	done    chan struct{}
	stopped sync.Once

	// lastSeq is only touched by the mailbox goroutine.
	lastSeq int64
}

func newSubscription(id uint64, agg domain.Aggregate, listener Listener) *subscription {
	return &subscription{
		id:       id,
		agg:      agg,
		listener: listener,
		signal:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

func (s *subscription) enqueue(events []domain.Event) {
	batch := append([]domain.Event(nil), events...)
	s.mu.Lock()
	s.queue = append(s.queue, batch)
	s.mu.Unlock()
	s.notify()
}

func (s *subscription) notify() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// start delivers snapshot first, then drains the mailbox until stop.
func (s *subscription) start(snapshot []domain.Event) {
	for _, ev := range snapshot {
		if ev.Sequence > s.lastSeq {
			s.lastSeq = ev.Sequence
		}
	}
	go func() {
		s.deliver(snapshot, true)
		for {
			select {
			case <-s.done:
				return
			case <-s.signal:
			}
			for {
				batch, ok := s.pop()
				if !ok {
					break
				}
				s.deliver(batch, false)
			}
		}
	}()
}

func (s *subscription) pop() ([]domain.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil, false
	}
	batch := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return batch, true
}

func (s *subscription) deliver(batch []domain.Event, snapshot bool) {
	select {
	case <-s.done:
		return
	default:
	}
	if !snapshot {
		fresh := batch[:0]
		for _, ev := range batch {
			if ev.Sequence > s.lastSeq {
				s.lastSeq = ev.Sequence
				fresh = append(fresh, ev)
			}
		}
		if len(fresh) == 0 {
			return
		}
		batch = fresh
	}
	s.listener(batch)
}

func (s *subscription) stop() {
	s.stopped.Do(func() {
		close(s.done)
	})
}
