package store

import (
	"context"
	"sync"
	"time"

	"github.com/pbaille/moods/internal/domain"
)

// EventType describes the nature of a change notification. Values are bit
// flags so a subscriber can listen to several kinds at once.
type EventType int

const (
	// EventEntriesChanged indicates a new entry (and its links) was committed.
	EventEntriesChanged EventType = 1 << iota

	// EventTagsChanged indicates at least one tag was created.
	EventTagsChanged
)

// EventAll matches every event type
const EventAll = EventEntriesChanged | EventTagsChanged

// Event is emitted by Watch after a write transaction commits
type Event struct {
	Type    EventType
	EntryID string
}

type subscriber struct {
	mask EventType
	ch   chan Event
}

type hub struct {
	mu     sync.Mutex
	next   uint64
	subs   map[uint64]*subscriber
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[uint64]*subscriber)}
}

func (h *hub) add(mask EventType) (uint64, chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// One slot: a pending event already means "refresh", further events
	// until the consumer catches up carry no extra information.
	ch := make(chan Event, 1)
	if h.closed {
		close(ch)
		return 0, ch
	}
	h.next++
	h.subs[h.next] = &subscriber{mask: mask, ch: ch}
	return h.next, ch
}

func (h *hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(sub.ch)
	}
}

func (h *hub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs {
		if sub.mask&ev.Type == 0 {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.ch)
	}
	h.closed = true
}

func (h *hub) size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Watch streams change events matching mask until ctx is cancelled. The
// channel never blocks the writer: events that arrive while one is already
// pending are coalesced into it. The channel is closed once ctx is done or
// the store is closed.
func (s *Store) Watch(ctx context.Context, mask EventType) <-chan Event {
	id, ch := s.hub.add(mask)
	if id == 0 {
		return ch
	}
	go func() {
		<-ctx.Done()
		s.hub.remove(id)
	}()
	return ch
}

// ObserveAllEntries emits the full entry list now and again after every
// committed entry.
func (s *Store) ObserveAllEntries(ctx context.Context) (<-chan []domain.EntryWithTags, error) {
	return observe(ctx, s, "all_entries", EventEntriesChanged, s.ListEntries)
}

// ObserveEntriesInRange is the live form of EntriesInRange
func (s *Store) ObserveEntriesInRange(ctx context.Context, start, end time.Time) (<-chan []domain.EntryWithTags, error) {
	return observe(ctx, s, "entries_in_range", EventEntriesChanged, func(ctx context.Context) ([]domain.EntryWithTags, error) {
		return s.EntriesInRange(ctx, start, end)
	})
}

// ObserveTagsByCategory is the live form of TagsByCategory
func (s *Store) ObserveTagsByCategory(ctx context.Context, category domain.Category) (<-chan []domain.Tag, error) {
	if err := category.Validate(); err != nil {
		return nil, err
	}
	return observe(ctx, s, "tags_by_category", EventTagsChanged, func(ctx context.Context) ([]domain.Tag, error) {
		return s.TagsByCategory(ctx, category)
	})
}

// observe subscribes before the first load so no commit between the load
// and the subscription can be missed. The output holds at most one
// snapshot; a stale unread snapshot is replaced by the fresh one.
func observe[T any](ctx context.Context, s *Store, name string, mask EventType, load func(context.Context) (T, error)) (<-chan T, error) {
	ctx, cancel := context.WithCancel(ctx)
	events := s.Watch(ctx, mask)

	first, err := load(ctx)
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan T, 1)
	out <- first

	go func() {
		defer close(out)
		defer cancel()

		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-events:
				if !ok {
					return
				}
				snap, err := load(ctx)
				if err != nil {
					if ctx.Err() == nil {
						s.log.Error("projection refresh failed", "projection", name, "error", err)
					}
					return
				}
				select {
				case <-out:
				default:
				}
				select {
				case out <- snap:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
