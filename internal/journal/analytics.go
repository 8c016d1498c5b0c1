package journal

import (
	"context"
	"sync"
	"time"

	"github.com/pbaille/moods/internal/domain"
	"github.com/pbaille/moods/internal/logger"
	"github.com/pbaille/moods/internal/trend"
)

// DefaultGrace is how long the shared feed outlives its last viewer
const DefaultGrace = 5 * time.Second

// Analytics shares one live trend computation between any number of viewers.
// The upstream entry subscription starts with the first viewer and is torn
// down once no viewer has been attached for the grace period, so a viewer
// that reconnects quickly picks up the running feed.
type Analytics struct {
	j     *Journal
	grace time.Duration
	log   *logger.Logger

	mu      sync.Mutex
	next    uint64
	viewers map[uint64]chan trend.Summary
	last    *trend.Summary
	gen     uint64
	cancel  context.CancelFunc
	timer   *time.Timer
	lease   uint64
	starts  int
	closed  bool
}

// NewAnalytics creates a shared feed over j. A non-positive grace uses DefaultGrace.
func NewAnalytics(j *Journal, grace time.Duration) *Analytics {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Analytics{
		j:       j,
		grace:   grace,
		log:     j.base.WithComponent("analytics"),
		viewers: make(map[uint64]chan trend.Summary),
	}
}

// Subscribe returns a channel of summaries. The latest known summary is
// delivered immediately; afterwards one arrives after every new entry. A
// viewer that falls behind only sees the newest summary. The channel closes
// when ctx is done or the feed is closed.
func (a *Analytics) Subscribe(ctx context.Context) (<-chan trend.Summary, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ch := make(chan trend.Summary, 1)
	if a.closed {
		close(ch)
		return ch, nil
	}

	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	if a.cancel == nil {
		if err := a.startLocked(); err != nil {
			return nil, err
		}
	}

	a.next++
	id := a.next
	a.viewers[id] = ch
	if a.last != nil {
		ch <- *a.last
	}

	go func() {
		<-ctx.Done()
		a.leave(id)
	}()
	return ch, nil
}

func (a *Analytics) startLocked() error {
	ctx, cancel := context.WithCancel(context.Background())
	feed, err := a.j.store.ObserveAllEntries(ctx)
	if err != nil {
		cancel()
		return err
	}

	a.gen++
	a.starts++
	a.cancel = cancel
	a.last = nil
	a.log.Debug("upstream started", "generation", a.gen)

	go a.pump(a.gen, feed)
	return nil
}

func (a *Analytics) pump(gen uint64, feed <-chan []domain.EntryWithTags) {
	for entries := range feed {
		summary, err := trend.Summarize(entries, a.j.Now())
		if err != nil {
			a.log.Error("summarize failed", "error", err)
			continue
		}
		a.broadcast(gen, summary)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if gen != a.gen || a.cancel == nil {
		return
	}
	// The upstream died on its own; viewers cannot be served any more.
	a.log.Warn("upstream closed", "generation", gen)
	a.cancel()
	a.cancel = nil
	a.last = nil
	for id, ch := range a.viewers {
		delete(a.viewers, id)
		close(ch)
	}
}

func (a *Analytics) broadcast(gen uint64, s trend.Summary) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if gen != a.gen || a.cancel == nil {
		return
	}

	a.last = &s
	for _, ch := range a.viewers {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

func (a *Analytics) leave(id uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ch, ok := a.viewers[id]
	if !ok {
		return
	}
	delete(a.viewers, id)
	close(ch)

	if len(a.viewers) == 0 && a.cancel != nil && a.timer == nil {
		a.lease++
		lease := a.lease
		a.timer = time.AfterFunc(a.grace, func() { a.expire(lease) })
	}
}

// expire runs when a grace timer fires. A timer that was stopped or replaced
// after it had already fired carries an outdated lease and does nothing.
func (a *Analytics) expire(lease uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if lease != a.lease || a.timer == nil || len(a.viewers) > 0 {
		return
	}
	a.timer = nil
	a.stopLocked()
	a.log.Debug("upstream stopped after grace", "generation", a.gen)
}

func (a *Analytics) stopLocked() {
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.last = nil
}

// Active reports whether the upstream subscription is running
func (a *Analytics) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancel != nil
}

// Viewers returns the number of attached viewers
func (a *Analytics) Viewers() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.viewers)
}

// Close stops the upstream and closes every viewer channel
func (a *Analytics) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.stopLocked()
	for id, ch := range a.viewers {
		delete(a.viewers, id)
		close(ch)
	}
	a.closed = true
}
