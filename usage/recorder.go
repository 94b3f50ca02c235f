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

package usage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ceotind/sharpireland-sub000/shared/logger"
)

// Recorder persists usage events and conversation counters to PostgreSQL.
//
// Expected schema:
//
//	CREATE TABLE planner_usage (
//	    user_id    TEXT PRIMARY KEY,
//	    free_used  INTEGER     NOT NULL DEFAULT 0,
//	    paid_used  INTEGER     NOT NULL DEFAULT 0,
//	    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//
//	CREATE TABLE llm_usage_events (
//	    id                  BIGSERIAL PRIMARY KEY,
//	    user_id             TEXT        NOT NULL,
//	    request_id          TEXT        NOT NULL DEFAULT '',
//	    model               TEXT        NOT NULL,
//	    used_fallback       BOOLEAN     NOT NULL DEFAULT false,
//	    prompt_tokens       INTEGER     NOT NULL DEFAULT 0,
//	    completion_tokens   INTEGER     NOT NULL DEFAULT 0,
//	    total_tokens        INTEGER     NOT NULL DEFAULT 0,
//	    estimated_cost_cents INTEGER    NOT NULL DEFAULT 0,
//	    latency_ms          BIGINT      NOT NULL DEFAULT 0,
//	    status              TEXT        NOT NULL,
//	    created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type Recorder struct {
	db  *sql.DB
	log *logger.Logger
}

// NewRecorder creates a usage recorder over a database handle.
func NewRecorder(db *sql.DB, log *logger.Logger) *Recorder {
	if log == nil {
		log = logger.New("usage")
	}
	return &Recorder{db: db, log: log}
}

// LLMRequestEvent is one completed (or definitively failed) LLM call.
type LLMRequestEvent struct {
	UserID           string
	RequestID        string
	Model            string
	UsedFallback     bool
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	LatencyMs        int64
	Status           string // "success" or a taxonomy error code
}

const getRecordQuery = `
	SELECT free_used, paid_used, updated_at
	FROM planner_usage
	WHERE user_id = $1`

// GetRecord returns the consumption record for a user. A user with no
// persisted row gets a zero record; rows are created lazily by the first
// increment.
func (r *Recorder) GetRecord(ctx context.Context, userID string) (*Record, error) {
	rec := &Record{UserID: userID}

	err := r.db.QueryRowContext(ctx, getRecordQuery, userID).
		Scan(&rec.FreeUsed, &rec.PaidUsed, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get usage record: %w", err)
	}
	return rec, nil
}

const incrementFreeQuery = `
	INSERT INTO planner_usage (user_id, free_used, paid_used, updated_at)
	VALUES ($1, 1, 0, $2)
	ON CONFLICT (user_id) DO UPDATE SET
	    free_used  = planner_usage.free_used + 1,
	    updated_at = $2
	RETURNING free_used, paid_used, updated_at`

const incrementPaidQuery = `
	INSERT INTO planner_usage (user_id, free_used, paid_used, updated_at)
	VALUES ($1, 0, 1, $2)
	ON CONFLICT (user_id) DO UPDATE SET
	    paid_used  = planner_usage.paid_used + 1,
	    updated_at = $2
	RETURNING free_used, paid_used, updated_at`

// IncrementConversation charges one conversation against the free or paid
// allowance and returns the post-update record. The upsert is a single
// statement, so concurrent charges for the same user cannot lose updates.
func (r *Recorder) IncrementConversation(ctx context.Context, userID string, paid bool) (*Record, error) {
	query := incrementFreeQuery
	if paid {
		query = incrementPaidQuery
	}

	rec := &Record{UserID: userID}
	err := r.db.QueryRowContext(ctx, query, userID, time.Now().UTC()).
		Scan(&rec.FreeUsed, &rec.PaidUsed, &rec.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("increment conversation count: %w", err)
	}
	return rec, nil
}

const insertLLMEventQuery = `
	INSERT INTO llm_usage_events (
	    user_id, request_id, model, used_fallback,
	    prompt_tokens, completion_tokens, total_tokens,
	    estimated_cost_cents, latency_ms, status
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// RecordLLMRequest persists one LLM call event with its estimated cost.
// Failures are logged and returned; callers treat recording as best-effort
// and never fail the user-facing request over it.
func (r *Recorder) RecordLLMRequest(ctx context.Context, event LLMRequestEvent) error {
	costCents := CalculateCost(event.Model, event.PromptTokens, event.CompletionTokens)

	_, err := r.db.ExecContext(ctx, insertLLMEventQuery,
		event.UserID, event.RequestID, event.Model, event.UsedFallback,
		event.PromptTokens, event.CompletionTokens, event.TotalTokens,
		costCents, event.LatencyMs, event.Status)
	if err != nil {
		r.log.ErrorWithCode(event.UserID, event.RequestID,
			"failed to record LLM request event", "DATABASE_ERROR", err, map[string]interface{}{
				"model": event.Model,
			})
		return fmt.Errorf("record llm request event: %w", err)
	}
	return nil
}

// Statistics loads the user's record and derives the quota view under the
// given limits.
func (r *Recorder) Statistics(ctx context.Context, userID string, limits Limits) (Statistics, error) {
	rec, err := r.GetRecord(ctx, userID)
	if err != nil {
		return Statistics{}, err
	}
	return ComputeStatistics(*rec, limits), nil
}
