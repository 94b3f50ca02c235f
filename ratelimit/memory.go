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
	"sync"
	"time"
)

// MemoryStore implements Store in process memory. It is intended for
// single-instance deployments and tests; state does not survive restarts
// and is not shared across replicas.
type MemoryStore struct {
	mu      sync.Mutex
	records map[Key]*Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[Key]*Record)}
}

// Get returns a copy of the record for key, or ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, key Key) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRecord(rec), nil
}

// IncrementRequest rolls the window over or increments the request count.
func (s *MemoryStore) IncrementRequest(_ context.Context, key Key, now time.Time, window time.Duration) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		rec = &Record{UserID: key.UserID, IP: key.IP, WindowStart: now}
		s.records[key] = rec
	}

	if now.Sub(rec.WindowStart) >= window {
		rec.RequestCount = 1
		rec.WindowStart = now
		// An active block survives the rollover; only elapsed blocks clear.
		if rec.BlockedUntil != nil && !rec.BlockedUntil.After(now) {
			rec.BlockedUntil = nil
		}
	} else {
		rec.RequestCount++
	}

	return copyRecord(rec), nil
}

// IncrementSuspicious escalates the suspicion counter, blocking at threshold.
func (s *MemoryStore) IncrementSuspicious(_ context.Context, key Key, now time.Time, threshold int, blockedUntil time.Time) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		rec = &Record{UserID: key.UserID, IP: key.IP, WindowStart: now}
		s.records[key] = rec
	}

	rec.SuspiciousCount++
	if rec.SuspiciousCount >= threshold {
		t := blockedUntil
		rec.BlockedUntil = &t
	}

	return copyRecord(rec), nil
}

// ResetWindow restarts the window with a zero request count.
func (s *MemoryStore) ResetWindow(_ context.Context, key Key, now time.Time) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		rec = &Record{UserID: key.UserID, IP: key.IP}
		s.records[key] = rec
	}

	rec.RequestCount = 0
	rec.WindowStart = now

	return copyRecord(rec), nil
}

// Reset zeroes all counters and clears any block.
func (s *MemoryStore) Reset(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, key)
	return nil
}

func copyRecord(rec *Record) *Record {
	out := *rec
	if rec.BlockedUntil != nil {
		t := *rec.BlockedUntil
		out.BlockedUntil = &t
	}
	return &out
}
