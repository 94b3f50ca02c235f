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
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresStore implements Store over PostgreSQL. It is the authoritative
// backend in production deployments.
//
// Expected schema:
//
//	CREATE TABLE rate_limits (
//	    user_id          TEXT        NOT NULL,
//	    ip               TEXT        NOT NULL DEFAULT '',
//	    request_count    INTEGER     NOT NULL DEFAULT 0,
//	    window_start     TIMESTAMPTZ NOT NULL,
//	    blocked_until    TIMESTAMPTZ,
//	    suspicious_count INTEGER     NOT NULL DEFAULT 0,
//	    PRIMARY KEY (user_id, ip)
//	);
//
// Every mutation is a single INSERT ... ON CONFLICT DO UPDATE with the
// rollover/threshold conditions expressed as CASE clauses, so the
// read-modify-write happens inside one statement on the server.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const getQuery = `
	SELECT request_count, window_start, blocked_until, suspicious_count
	FROM rate_limits
	WHERE user_id = $1 AND ip = $2`

// Get returns the record for key, or ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, key Key) (*Record, error) {
	row := s.db.QueryRowContext(ctx, getQuery, key.UserID, key.IP)

	rec, err := scanRecord(row, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get rate limit record: %w", err)
	}
	return rec, nil
}

const incrementRequestQuery = `
	INSERT INTO rate_limits (user_id, ip, request_count, window_start, suspicious_count)
	VALUES ($1, $2, 1, $3, 0)
	ON CONFLICT (user_id, ip) DO UPDATE SET
	    request_count = CASE WHEN rate_limits.window_start <= $4 THEN 1
	                         ELSE rate_limits.request_count + 1 END,
	    window_start  = CASE WHEN rate_limits.window_start <= $4 THEN $3
	                         ELSE rate_limits.window_start END,
	    blocked_until = CASE WHEN rate_limits.window_start <= $4
	                              AND (rate_limits.blocked_until IS NULL OR rate_limits.blocked_until <= $3)
	                         THEN NULL
	                         ELSE rate_limits.blocked_until END
	RETURNING request_count, window_start, blocked_until, suspicious_count`

// IncrementRequest atomically rolls the window over or increments the count.
// A rollover clears the block only once it has elapsed; an active block
// always outlives an expired window.
func (s *PostgresStore) IncrementRequest(ctx context.Context, key Key, now time.Time, window time.Duration) (*Record, error) {
	expiredBefore := now.Add(-window)
	row := s.db.QueryRowContext(ctx, incrementRequestQuery, key.UserID, key.IP, now, expiredBefore)

	rec, err := scanRecord(row, key)
	if err != nil {
		return nil, fmt.Errorf("increment request count: %w", err)
	}
	return rec, nil
}

const incrementSuspiciousQuery = `
	INSERT INTO rate_limits (user_id, ip, request_count, window_start, suspicious_count, blocked_until)
	VALUES ($1, $2, 0, $3, 1, CASE WHEN 1 >= $4 THEN $5 ELSE NULL END)
	ON CONFLICT (user_id, ip) DO UPDATE SET
	    suspicious_count = rate_limits.suspicious_count + 1,
	    blocked_until    = CASE WHEN rate_limits.suspicious_count + 1 >= $4 THEN $5
	                            ELSE rate_limits.blocked_until END
	RETURNING request_count, window_start, blocked_until, suspicious_count`

// IncrementSuspicious atomically escalates the suspicion counter, blocking
// the key in the same statement once the threshold is reached.
func (s *PostgresStore) IncrementSuspicious(ctx context.Context, key Key, now time.Time, threshold int, blockedUntil time.Time) (*Record, error) {
	row := s.db.QueryRowContext(ctx, incrementSuspiciousQuery, key.UserID, key.IP, now, threshold, blockedUntil)

	rec, err := scanRecord(row, key)
	if err != nil {
		return nil, fmt.Errorf("increment suspicious count: %w", err)
	}
	return rec, nil
}

const resetWindowQuery = `
	INSERT INTO rate_limits (user_id, ip, request_count, window_start, suspicious_count)
	VALUES ($1, $2, 0, $3, 0)
	ON CONFLICT (user_id, ip) DO UPDATE SET
	    request_count = 0,
	    window_start  = $3
	RETURNING request_count, window_start, blocked_until, suspicious_count`

// ResetWindow restarts the window with a zero request count.
func (s *PostgresStore) ResetWindow(ctx context.Context, key Key, now time.Time) (*Record, error) {
	row := s.db.QueryRowContext(ctx, resetWindowQuery, key.UserID, key.IP, now)

	rec, err := scanRecord(row, key)
	if err != nil {
		return nil, fmt.Errorf("reset window: %w", err)
	}
	return rec, nil
}

const resetQuery = `
	INSERT INTO rate_limits (user_id, ip, request_count, window_start, suspicious_count, blocked_until)
	VALUES ($1, $2, 0, $3, 0, NULL)
	ON CONFLICT (user_id, ip) DO UPDATE SET
	    request_count    = 0,
	    window_start     = $3,
	    suspicious_count = 0,
	    blocked_until    = NULL`

// Reset zeroes all counters and clears any block.
func (s *PostgresStore) Reset(ctx context.Context, key Key) error {
	if _, err := s.db.ExecContext(ctx, resetQuery, key.UserID, key.IP, time.Now()); err != nil {
		return fmt.Errorf("reset rate limit record: %w", err)
	}
	return nil
}

// scanRecord reads the four record columns shared by every query above.
func scanRecord(row *sql.Row, key Key) (*Record, error) {
	var (
		rec     Record
		blocked sql.NullTime
	)
	if err := row.Scan(&rec.RequestCount, &rec.WindowStart, &blocked, &rec.SuspiciousCount); err != nil {
		return nil, err
	}
	rec.UserID = key.UserID
	rec.IP = key.IP
	if blocked.Valid {
		t := blocked.Time
		rec.BlockedUntil = &t
	}
	return &rec, nil
}
