// Package stream re-emits an already computed completion as a paced sequence of
// single-character writes.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"
)

const (
	DefaultDelay       = 25 * time.Millisecond
	DefaultMaxDuration = 2 * time.Minute
)

// Transmitter writes text one Unicode code point at a time with a fixed delay
// between writes. A Transmitter has no mutable state and may be shared.
type Transmitter struct {
	delay       time.Duration
	maxDuration time.Duration
}

// NewTransmitter returns a Transmitter pacing writes delay apart. A zero delay
// disables pacing. maxDuration bounds the total pacing time of one
// transmission; non-positive values select DefaultMaxDuration.
func NewTransmitter(delay, maxDuration time.Duration) (*Transmitter, error) {
	if delay < 0 {
		return nil, errors.New("stream: delay must not be negative")
	}
	if maxDuration <= 0 {
		maxDuration = DefaultMaxDuration
	}
	return &Transmitter{delay: delay, maxDuration: maxDuration}, nil
}

// DelayFor returns the inter-character delay used for text. The configured
// delay applies unless the whole text would then take longer than the maximum
// duration, in which case it shrinks to fit.
func (t *Transmitter) DelayFor(text string) time.Duration {
	gaps := utf8.RuneCountInString(text) - 1
	if gaps <= 0 || t.delay == 0 {
		return t.delay
	}
	if total := t.delay * time.Duration(gaps); total > t.maxDuration {
		return t.maxDuration / time.Duration(gaps)
	}
	return t.delay
}

// Transmit writes text to w one code point per write, flushing after each write
// when w supports it. The first character is written immediately and no delay
// follows the last. Empty text produces no writes.
//
// Transmit returns the number of characters written. It stops early when ctx is
// done or a write fails, which is how a closed client connection surfaces.
func (t *Transmitter) Transmit(ctx context.Context, w io.Writer, text string) (int, error) {
	limiter := newLimiter(t.DelayFor(text))
	flush := flusherFor(w)

	sent := 0
	for _, r := range text {
		if err := limiter.Wait(ctx); err != nil {
			return sent, fmt.Errorf("stream: wait: %w", err)
		}
		if _, err := io.WriteString(w, string(r)); err != nil {
			return sent, fmt.Errorf("stream: write: %w", err)
		}
		if err := flush(); err != nil {
			return sent, fmt.Errorf("stream: flush: %w", err)
		}
		sent++
	}
	return sent, nil
}

func newLimiter(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// flusherFor returns a flush func for w. http.ResponseWriter values are flushed
// through http.ResponseController so wrapped writers keep working.
func flusherFor(w io.Writer) func() error {
	switch f := w.(type) {
	case http.ResponseWriter:
		rc := http.NewResponseController(f)
		return func() error {
			if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
				return err
			}
			return nil
		}
	case interface{ Flush() error }:
		return f.Flush
	default:
		return func() error { return nil }
	}
}
