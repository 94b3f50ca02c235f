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

package planner

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/cors"

	"github.com/ceotind/sharpireland-sub000/gateway"
	"github.com/ceotind/sharpireland-sub000/gateway/openai"
	"github.com/ceotind/sharpireland-sub000/ratelimit"
	"github.com/ceotind/sharpireland-sub000/security"
	"github.com/ceotind/sharpireland-sub000/shared/logger"
	"github.com/ceotind/sharpireland-sub000/tokens"
	"github.com/ceotind/sharpireland-sub000/usage"
)

// Run wires the planner from configuration and serves HTTP until the
// process receives SIGINT or SIGTERM.
func Run() {
	appLog := logger.New("planner")

	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	store, err := buildRateLimitStore(ctx, cfg, db)
	if err != nil {
		log.Fatalf("Failed to build rate limit store: %v", err)
	}

	limiter := ratelimit.NewLimiter(store, cfg.RateLimit.Policy(), logger.New("ratelimit"))
	validator := security.NewValidator(security.NewCatalog(), 0)
	accountant := tokens.NewAccountant(cfg.Tokens.AccountantConfig())

	provider, err := openai.NewProvider(openai.Config{
		APIKey:  cfg.AI.APIKey,
		BaseURL: cfg.AI.BaseURL,
	})
	if err != nil {
		log.Fatalf("Failed to create AI provider: %v", err)
	}

	gw := gateway.New(provider, accountant, gateway.Config{
		PrimaryModel:   cfg.AI.PrimaryModel,
		FallbackModel:  cfg.AI.FallbackModel,
		MaxTokens:      cfg.AI.MaxTokens,
		Temperature:    cfg.AI.Temperature,
		RequestTimeout: time.Duration(cfg.AI.RequestTimeoutSeconds) * time.Second,
		MaxAttempts:    cfg.AI.MaxAttempts,
		InitialBackoff: time.Duration(cfg.AI.InitialBackoffMs) * time.Millisecond,
		MaxBackoff:     time.Duration(cfg.AI.MaxBackoffMs) * time.Millisecond,
	}, logger.New("gateway"))

	recorder := usage.NewRecorder(db, logger.New("usage"))
	service := NewService(validator, limiter, gw, recorder, cfg.Usage, appLog)
	server := NewServer(service, cfg.JWTSecret, logger.New("planner-http"))

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      c.Handler(server.Router()),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	go func() {
		appLog.Info("", "", "planner listening", map[string]interface{}{"port": cfg.Port})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	appLog.Info("", "", "shutdown signal received, draining", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLog.Error("", "", "graceful shutdown failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// openDatabase connects and verifies the PostgreSQL handle.
func openDatabase(databaseURL string) (*sql.DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// buildRateLimitStore selects the limiter backend: Redis when configured,
// otherwise the authoritative PostgreSQL store.
func buildRateLimitStore(ctx context.Context, cfg *Config, db *sql.DB) (ratelimit.Store, error) {
	if cfg.RedisURL != "" {
		return ratelimit.NewRedisStoreFromURL(ctx, cfg.RedisURL)
	}
	return ratelimit.NewPostgresStore(db), nil
}
