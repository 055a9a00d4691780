package vision

import (
	"context"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"github.com/ent0n29/facemood/internal/emotion"
	"github.com/ent0n29/facemood/internal/reliability"
)

const (
	DefaultFailoverRetryBase = time.Second
	DefaultFailoverRetryMax  = 30 * time.Second
)

// FailoverClassifier prefers the primary backend and switches to the fallback
// after a primary failure. While the fallback is active the primary is retried
// with exponential backoff, and immediately whenever the fallback fails.
type FailoverClassifier struct {
	primary  Classifier
	fallback Classifier

	// RetryBase and RetryMax bound the backoff between primary retries.
	RetryBase time.Duration
	RetryMax  time.Duration
	Now       func() time.Time

	mu       sync.Mutex
	active   bool
	attempts int
	retryAt  time.Time
}

func NewFailoverClassifier(primary, fallback Classifier) *FailoverClassifier {
	return &FailoverClassifier{
		primary:   primary,
		fallback:  fallback,
		RetryBase: DefaultFailoverRetryBase,
		RetryMax:  DefaultFailoverRetryMax,
	}
}

// FallbackActive reports whether the fallback is currently serving requests.
func (c *FailoverClassifier) FallbackActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *FailoverClassifier) Classify(ctx context.Context, img image.Image) (emotion.Scores, error) {
	active, due := c.route()
	if !active || due {
		scores, prErr := c.primary.Classify(ctx, img)
		if prErr == nil {
			if active {
				c.recovered()
			}
			return scores, nil
		}
		if ctx.Err() != nil {
			return nil, prErr
		}
		scores, fbErr := c.fallback.Classify(ctx, img)
		if fbErr != nil {
			return nil, fmt.Errorf("primary failed: %v; fallback failed: %w", prErr, fbErr)
		}
		c.primaryFailed(prErr)
		return scores, nil
	}

	scores, fbErr := c.fallback.Classify(ctx, img)
	if fbErr == nil {
		return scores, nil
	}
	// Fallback failed while active; try primary again regardless of backoff.
	scores, prErr := c.primary.Classify(ctx, img)
	if prErr == nil {
		c.recovered()
		return scores, nil
	}
	return nil, fmt.Errorf("fallback failed: %v; primary failed: %w", fbErr, prErr)
}

// route reports whether the fallback is active and, if so, whether a primary
// retry is due.
func (c *FailoverClassifier) route() (active, due bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return false, false
	}
	return true, !c.now().Before(c.retryAt)
}

func (c *FailoverClassifier) primaryFailed(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		log.Printf("vision: primary classifier failed, using fallback: %v", err)
		c.active = true
		c.attempts = 0
	} else {
		c.attempts++
	}
	c.retryAt = c.now().Add(reliability.ExponentialBackoff(c.attempts, c.RetryBase, c.RetryMax))
}

func (c *FailoverClassifier) recovered() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		log.Printf("vision: primary classifier recovered")
	}
	c.active = false
	c.attempts = 0
	c.retryAt = time.Time{}
}

func (c *FailoverClassifier) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// Close releases both backends when they hold resources.
func (c *FailoverClassifier) Close() error {
	var first error
	for _, b := range []Classifier{c.primary, c.fallback} {
		if closer, ok := b.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
