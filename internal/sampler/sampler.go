// Package sampler serializes access to the sensor decoder and retries
// transient decode failures with a fixed backoff.
package sampler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/sweeney/relay-controller/internal/dht"
)

// Retry policy.
const (
	DefaultAttempts    = 3
	DefaultRetryDelay  = 2 * time.Second
	DefaultReadTimeout = 3 * time.Second // budget for an interactive (HTTP) read
)

// Reader performs one sensor exchange.
type Reader interface {
	Read() (dht.Reading, error)
}

// Observer is notified of every attempt. Implemented by metrics and the
// status tracker.
type Observer interface {
	ObserveRead(r dht.Reading, err error)
}

// Observers fans each attempt out to every member in order.
type Observers []Observer

// ObserveRead implements Observer.
func (o Observers) ObserveRead(r dht.Reading, err error) {
	for _, ob := range o {
		ob.ObserveRead(r, err)
	}
}

// Sampler owns a Reader. Sample may be called from several goroutines;
// attempts are serialized so the sensor line has one user at a time.
type Sampler struct {
	mu         sync.Mutex
	reader     Reader
	attempts   int
	retryDelay time.Duration
	observer   Observer
}

// New creates a Sampler. attempts < 1 is treated as 1.
func New(reader Reader, attempts int, retryDelay time.Duration, observer Observer) *Sampler {
	if attempts < 1 {
		attempts = 1
	}
	return &Sampler{
		reader:     reader,
		attempts:   attempts,
		retryDelay: retryDelay,
		observer:   observer,
	}
}

// Sample reads the sensor, retrying decode failures up to the configured
// number of attempts with a constant delay between them. It gives up early if
// ctx ends while waiting to retry, returning the last decode error.
func (s *Sampler) Sample(ctx context.Context) (dht.Reading, error) {
	var (
		reading dht.Reading
		lastErr error
		attempt int
	)
	op := func() error {
		attempt++
		r, err := s.readOnce()
		if err != nil {
			lastErr = err
			return err
		}
		reading = r
		return nil
	}
	notify := func(err error, next time.Duration) {
		log.Printf("sensor: attempt %d/%d failed, retrying in %v: %v", attempt, s.attempts, next, err)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.retryDelay), uint64(s.attempts-1)),
		ctx,
	)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		if lastErr == nil {
			lastErr = err
		}
		log.Printf("sensor: giving up after %d/%d attempts: %v", attempt, s.attempts, lastErr)
		return dht.Reading{}, fmt.Errorf("read sensor: %w", lastErr)
	}
	return reading, nil
}

func (s *Sampler) readOnce() (dht.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.reader.Read()
	if s.observer != nil {
		s.observer.ObserveRead(r, err)
	}
	return r, err
}
