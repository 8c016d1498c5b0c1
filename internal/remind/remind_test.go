package remind

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pbaille/moods/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC)

type fakeSource struct {
	mu     sync.Mutex
	latest *domain.MoodEntry
	err    error
}

func (f *fakeSource) Latest(context.Context) (*domain.MoodEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, f.err
}

func at(ts time.Time) *fakeSource {
	return &fakeSource{latest: &domain.MoodEntry{ID: "e1", Rating: 3, Timestamp: ts}}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name    string
		src     *fakeSource
		due     bool
		reasonH string
	}{
		{"never recorded", &fakeSource{}, true, "no mood recorded yet"},
		{"recent entry", at(now.Add(-time.Hour)), false, ""},
		{"exactly at threshold", at(now.Add(-DefaultThreshold)), false, ""},
		{"stale entry", at(now.Add(-DefaultThreshold - time.Minute)), true, "last mood recorded 18h1m0s ago"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker(tt.src, 0, nil).WithClock(func() time.Time { return now })

			res, err := c.Check(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.due, res.Due)
			assert.Equal(t, now, res.CheckedAt)
			if tt.due {
				assert.Equal(t, tt.reasonH, res.Reason())
			}
		})
	}
}

func TestCheck_CustomThreshold(t *testing.T) {
	c := NewChecker(at(now.Add(-20*time.Minute)), 15*time.Minute, nil).WithClock(func() time.Time { return now })

	res, err := c.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Due)
	assert.Equal(t, 20*time.Minute, res.Since)
}

func TestCheck_PropagatesErrors(t *testing.T) {
	boom := errors.New("disk on fire")
	c := NewChecker(&fakeSource{err: boom}, 0, nil)

	_, err := c.Check(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestRun_NotifiesWhenDue(t *testing.T) {
	src := &fakeSource{}
	c := NewChecker(src, time.Hour, nil).WithClock(func() time.Time { return now })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	due := make(chan Result, 16)
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, 10*time.Millisecond, func(r Result) { due <- r }) }()

	select {
	case r := <-due:
		assert.Nil(t, r.Latest)
	case <-time.After(2 * time.Second):
		t.Fatal("no reminder delivered")
	}

	// Once a recent entry exists the checker stays quiet.
	src.mu.Lock()
	src.latest = &domain.MoodEntry{ID: "e1", Rating: 4, Timestamp: now}
	src.mu.Unlock()
	time.Sleep(30 * time.Millisecond)
	for len(due) > 0 {
		<-due
	}
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, due)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
