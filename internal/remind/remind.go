// Package remind decides when the user should be nudged to record a mood.
package remind

import (
	"context"
	"time"

	"github.com/pbaille/moods/internal/domain"
	"github.com/pbaille/moods/internal/logger"
)

// DefaultThreshold is the quiet period after which a reminder is due
const DefaultThreshold = 18 * time.Hour

// LatestSource returns the most recent entry, or nil when there is none
type LatestSource interface {
	Latest(ctx context.Context) (*domain.MoodEntry, error)
}

// Result is the outcome of one check
type Result struct {
	Due       bool              `json:"due"`
	Latest    *domain.MoodEntry `json:"latest,omitempty"`
	Since     time.Duration     `json:"since"`
	CheckedAt time.Time         `json:"checked_at"`
}

// Reason explains a due result in one line
func (r Result) Reason() string {
	if r.Latest == nil {
		return "no mood recorded yet"
	}
	return "last mood recorded " + r.Since.Truncate(time.Minute).String() + " ago"
}

// Checker compares the latest entry against a threshold
type Checker struct {
	src       LatestSource
	log       *logger.Logger
	threshold time.Duration
	now       func() time.Time
}

// NewChecker creates a checker. A non-positive threshold uses DefaultThreshold.
func NewChecker(src LatestSource, threshold time.Duration, log *logger.Logger) *Checker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Checker{
		src:       src,
		log:       log.WithComponent("remind"),
		threshold: threshold,
		now:       time.Now,
	}
}

// WithClock sets the time source
func (c *Checker) WithClock(now func() time.Time) *Checker {
	c.now = now
	return c
}

// Check reports a reminder as due when nothing was ever recorded or the
// latest entry is strictly older than the threshold.
func (c *Checker) Check(ctx context.Context) (Result, error) {
	latest, err := c.src.Latest(ctx)
	if err != nil {
		return Result{}, err
	}

	now := c.now()
	res := Result{Latest: latest, CheckedAt: now}
	if latest == nil {
		res.Due = true
		return res, nil
	}

	res.Since = now.Sub(latest.Timestamp)
	res.Due = res.Since > c.threshold
	return res, nil
}

// Run checks immediately and then every interval until ctx is done, calling
// notify for each due result. Failed checks are logged and retried on the
// next tick.
func (c *Checker) Run(ctx context.Context, interval time.Duration, notify func(Result)) error {
	c.log.Info("reminder checker starting", "interval", interval, "threshold", c.threshold)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.tick(ctx, notify)
	for {
		select {
		case <-ctx.Done():
			c.log.Info("reminder checker shutting down")
			return ctx.Err()
		case <-ticker.C:
			c.tick(ctx, notify)
		}
	}
}

func (c *Checker) tick(ctx context.Context, notify func(Result)) {
	res, err := c.Check(ctx)
	if err != nil {
		if ctx.Err() == nil {
			c.log.Error("reminder check failed", "error", err)
		}
		return
	}
	if !res.Due {
		c.log.Debug("latest entry is recent", "since", res.Since)
		return
	}
	c.log.Info("reminder due", "reason", res.Reason())
	notify(res)
}
