/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package xds

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// BackoffConfig configures the exponential backoff used between
// reconnect attempts to a management server.
type BackoffConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxElapsedTime  time.Duration
}

// DefaultBackoffConfig uses cenkalti/backoff/v4's default initial
// interval and multiplier, with a 30s interval cap and no elapsed-time
// limit.
var DefaultBackoffConfig = BackoffConfig{
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     30 * time.Second,
	Multiplier:      1.5,
	MaxElapsedTime:  0, // retry forever; server fail-over bounds practical wait
}

// reconnector is a thin, directly-testable wrapper around
// backoff.ExponentialBackOff: a pure state machine with no goroutines
// or sleeping of its own, so tests can drive NextBackOff() without a
// real clock.
type reconnector struct {
	cfg BackoffConfig
	bo  *backoff.ExponentialBackOff
}

func newReconnector(cfg BackoffConfig) *reconnector {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.InitialInterval
	bo.MaxInterval = cfg.MaxInterval
	bo.Multiplier = cfg.Multiplier
	bo.MaxElapsedTime = cfg.MaxElapsedTime
	// Zeroed, not cenkalti's default 0.5: jitter can make successive
	// delays decrease, violating the non-decreasing-until-bound
	// reconnect invariant.
	bo.RandomizationFactor = 0
	bo.Reset()
	return &reconnector{cfg: cfg, bo: bo}
}

// reset is called after every successful stream establishment.
func (r *reconnector) reset() {
	r.bo.Reset()
}

// next returns the next backoff duration, or false if MaxElapsedTime
// has been exceeded and the caller should give up.
func (r *reconnector) next() (time.Duration, bool) {
	d := r.bo.NextBackOff()
	if d == backoff.Stop {
		return 0, false
	}
	return d, true
}

// wait sleeps for the next backoff interval or returns ctx.Err() if
// cancelled first.
func (r *reconnector) wait(ctx context.Context) error {
	d, ok := r.next()
	if !ok {
		return context.DeadlineExceeded
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
