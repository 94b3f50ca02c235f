// Copyright 2025 Sharp Ireland
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ratelimit enforces a fixed window of allowed requests per
// (user, IP) key and escalates repeat offenders into timed blocks.
//
// The request-count quota and the suspicion counter are independent signals:
// a user can exhaust the window without ever being blocked, and a user can
// be blocked while well under the request quota. Only the suspicion counter
// promotes a key to Blocked.
//
// When the backing store is unreachable the limiter fails closed: the
// security property depends on the store being authoritative, so ambiguity
// is never propagated as "allowed".
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ceotind/sharpireland-sub000/shared/logger"
)

// Default policy values. All of them are configurable; none is a behavioral
// constant.
const (
	DefaultWindow             = 15 * time.Minute
	DefaultMaxRequests        = 20
	DefaultSuspicionThreshold = 5
	DefaultBlockDuration      = 60 * time.Minute
)

// Policy holds the tunable limiter parameters.
type Policy struct {
	Window             time.Duration
	MaxRequests        int
	SuspicionThreshold int
	BlockDuration      time.Duration
}

// DefaultPolicy returns the default limiter policy.
func DefaultPolicy() Policy {
	return Policy{
		Window:             DefaultWindow,
		MaxRequests:        DefaultMaxRequests,
		SuspicionThreshold: DefaultSuspicionThreshold,
		BlockDuration:      DefaultBlockDuration,
	}
}

// normalize applies defaults for zero fields.
func (p Policy) normalize() Policy {
	if p.Window <= 0 {
		p.Window = DefaultWindow
	}
	if p.MaxRequests <= 0 {
		p.MaxRequests = DefaultMaxRequests
	}
	if p.SuspicionThreshold <= 0 {
		p.SuspicionThreshold = DefaultSuspicionThreshold
	}
	if p.BlockDuration <= 0 {
		p.BlockDuration = DefaultBlockDuration
	}
	return p
}

// Result reports the quota state for a key after a check or update.
type Result struct {
	Allowed      bool       `json:"allowed"`
	CurrentCount int        `json:"current_count"`
	Remaining    int        `json:"remaining_requests"`
	WindowReset  time.Time  `json:"window_reset"`
	IsBlocked    bool       `json:"is_blocked"`
	BlockedUntil *time.Time `json:"blocked_until,omitempty"`
}

// UpdateOptions selects the mutation performed by Update. With no option
// set, Update records one allowed request.
type UpdateOptions struct {
	// IncrementSuspicious escalates the suspicion counter instead of the
	// request count; crossing the threshold blocks the key.
	IncrementSuspicious bool

	// ResetWindow restarts the window with a zero request count.
	ResetWindow bool
}

// Limiter enforces the fixed-window policy over a Store.
type Limiter struct {
	store  Store
	policy Policy
	log    *logger.Logger

	// now is injectable for tests.
	now func() time.Time
}

// NewLimiter creates a limiter over the given store.
func NewLimiter(store Store, policy Policy, log *logger.Logger) *Limiter {
	if log == nil {
		log = logger.New("ratelimit")
	}
	return &Limiter{
		store:  store,
		policy: policy.normalize(),
		log:    log,
		now:    time.Now,
	}
}

// Policy returns the limiter's normalized policy.
func (l *Limiter) Policy() Policy {
	return l.policy
}

// Check reports whether a request for the key would be allowed right now.
// It never mutates state; window expiry is detected lazily and applied by
// the next Update. On store failure the request is denied.
func (l *Limiter) Check(ctx context.Context, userID, ip string) (Result, error) {
	now := l.now()
	key := Key{UserID: userID, IP: ip}

	rec, err := l.store.Get(ctx, key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		l.log.ErrorWithCode(userID, "", "rate limit store unreachable, denying", "DATABASE_ERROR", err, nil)
		return Result{Allowed: false, WindowReset: now.Add(l.policy.Window)},
			fmt.Errorf("rate limit check: %w", err)
	}

	if rec == nil {
		// First request for this key: nothing persisted yet.
		return Result{
			Allowed:     true,
			Remaining:   l.policy.MaxRequests,
			WindowReset: now.Add(l.policy.Window),
		}, nil
	}

	return l.evaluate(rec, now), nil
}

// Update mutates the record for the key and returns the resulting state.
// Callers record an allowed request with zero-value options, escalate
// suspicion with IncrementSuspicious, or restart the window with
// ResetWindow. On store failure the request is denied.
func (l *Limiter) Update(ctx context.Context, userID, ip string, opts UpdateOptions) (Result, error) {
	now := l.now()
	key := Key{UserID: userID, IP: ip}

	var (
		rec       *Record
		err       error
		recording bool
	)

	switch {
	case opts.ResetWindow:
		rec, err = l.store.ResetWindow(ctx, key, now)
	case opts.IncrementSuspicious:
		blockedUntil := now.Add(l.policy.BlockDuration)
		rec, err = l.store.IncrementSuspicious(ctx, key, now, l.policy.SuspicionThreshold, blockedUntil)
		if err == nil && rec.BlockedUntil != nil {
			l.log.Warn(userID, "", "suspicion threshold crossed, key blocked", map[string]interface{}{
				"ip":               ip,
				"suspicious_count": rec.SuspiciousCount,
				"blocked_until":    rec.BlockedUntil.UTC().Format(time.RFC3339),
			})
		}
	default:
		recording = true
		rec, err = l.store.IncrementRequest(ctx, key, now, l.policy.Window)
	}

	if err != nil {
		l.log.ErrorWithCode(userID, "", "rate limit store update failed, denying", "DATABASE_ERROR", err, nil)
		return Result{Allowed: false, WindowReset: now.Add(l.policy.Window)},
			fmt.Errorf("rate limit update: %w", err)
	}

	result := l.evaluate(rec, now)
	if recording && !result.IsBlocked {
		// The count now includes the request just recorded: it was allowed
		// as long as it did not overshoot the quota.
		result.Allowed = rec.RequestCount <= l.policy.MaxRequests
	}
	return result, nil
}

// Reset zeroes all counters for the key and clears any block. Administrative
// operation; not part of the request path.
func (l *Limiter) Reset(ctx context.Context, userID, ip string) error {
	if err := l.store.Reset(ctx, Key{UserID: userID, IP: ip}); err != nil {
		return fmt.Errorf("rate limit reset: %w", err)
	}
	l.log.Info(userID, "", "rate limit record reset", map[string]interface{}{"ip": ip})
	return nil
}

// evaluate derives a Result from a record. State precedence follows the
// limiter state machine: Blocked beats window expiry beats quota.
func (l *Limiter) evaluate(rec *Record, now time.Time) Result {
	if rec.BlockedUntil != nil && rec.BlockedUntil.After(now) {
		blockedUntil := *rec.BlockedUntil
		return Result{
			Allowed:      false,
			CurrentCount: rec.RequestCount,
			Remaining:    0,
			WindowReset:  rec.WindowStart.Add(l.policy.Window),
			IsBlocked:    true,
			BlockedUntil: &blockedUntil,
		}
	}

	if now.Sub(rec.WindowStart) >= l.policy.Window {
		// Window expired; the reset itself happens on the next Update.
		return Result{
			Allowed:     true,
			Remaining:   l.policy.MaxRequests,
			WindowReset: now.Add(l.policy.Window),
		}
	}

	remaining := l.policy.MaxRequests - rec.RequestCount
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:      rec.RequestCount < l.policy.MaxRequests,
		CurrentCount: rec.RequestCount,
		Remaining:    remaining,
		WindowReset:  rec.WindowStart.Add(l.policy.Window),
	}
}
