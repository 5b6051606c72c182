// Navaar - Telegram / YouTube Music / Spotify Playlist Synchronization
// Copyright 2026 Navaar Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/navaar/navaar

// Package resilience provides the bounded exponential-backoff retry used by
// Navaar's transport adapters. Circuit breaking lives with the clients; this
// package only covers transient retry.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/navaar/navaar/internal/logging"
)

// Policy bounds a retry loop. Delay doubles after each failed attempt and is
// capped at MaxDelay.
type Policy struct {
	Attempts     int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultPolicy matches the transport retry used across all adapters:
// three attempts, 2 s initial delay, capped at 30 s.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:     3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
	}
}

// permanentError marks an error that retrying cannot fix, such as a 4xx API
// response. Retry returns it unwrapped without further attempts.
type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so Retry gives up on it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry executes fn with exponential backoff on failure. The context cancels
// backoff waits; if it is done before an attempt, the context error is
// returned immediately. Errors wrapped with Permanent are returned without
// further attempts.
func Retry(ctx context.Context, p Policy, op string, fn func() error) error {
	if p.Attempts < 1 {
		p.Attempts = 1
	}

	var err error
	delay := p.InitialDelay

	for attempt := 0; attempt < p.Attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err = fn()
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}

		if attempt < p.Attempts-1 {
			logging.Warn().
				Err(err).
				Str("operation", op).
				Int("attempt", attempt+1).
				Int("max_attempts", p.Attempts).
				Dur("delay", delay).
				Msg("Retry attempt")

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}

			delay *= 2
			if p.MaxDelay > 0 && delay > p.MaxDelay {
				delay = p.MaxDelay
			}
		}
	}

	return fmt.Errorf("%s: max retry attempts reached: %w", op, err)
}
