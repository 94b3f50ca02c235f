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

package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Store.Get when no record exists for a key.
// Records are created lazily on the first mutating operation.
var ErrNotFound = errors.New("ratelimit: record not found")

// Key identifies a rate-limit record by user and optional client IP.
type Key struct {
	UserID string
	IP     string
}

// Record is the persisted per-key rate-limit state.
//
// RequestCount is monotonically non-decreasing within a window and resets
// only when the window rolls over or on an administrative reset.
type Record struct {
	UserID          string
	IP              string
	RequestCount    int
	WindowStart     time.Time
	BlockedUntil    *time.Time
	SuspiciousCount int
}

// Store is the persistence boundary for rate-limit records.
//
// Every mutating operation must execute as a single atomic read-modify-write
// against the backing store (one conditional statement or script, never a
// read followed by a separate write), so that concurrent requests for the
// same key cannot widen the race window beyond genuinely in-flight requests.
// Implementations must be safe for concurrent use across keys with no shared
// locking between distinct keys.
type Store interface {
	// Get returns the record for key, or ErrNotFound. It never mutates.
	Get(ctx context.Context, key Key) (*Record, error)

	// IncrementRequest rolls the window over when expired (resetting the
	// count to 1 and clearing an elapsed block; an active block survives
	// the rollover) or increments the request count, creating the record
	// when absent. Returns the post-update record.
	IncrementRequest(ctx context.Context, key Key, now time.Time, window time.Duration) (*Record, error)

	// IncrementSuspicious increments the suspicion counter and, in the same
	// statement, sets blockedUntil when the new value reaches threshold.
	// Returns the post-update record.
	IncrementSuspicious(ctx context.Context, key Key, now time.Time, threshold int, blockedUntil time.Time) (*Record, error)

	// ResetWindow zeroes the request count and restarts the window, leaving
	// the suspicion counter and any block untouched.
	ResetWindow(ctx context.Context, key Key, now time.Time) (*Record, error)

	// Reset zeroes all counters and clears any block unconditionally.
	Reset(ctx context.Context, key Key) error
}
