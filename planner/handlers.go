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
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ceotind/sharpireland-sub000/gateway"
	"github.com/ceotind/sharpireland-sub000/shared/logger"
)

// Server is the planner HTTP surface.
type Server struct {
	service   *Service
	jwtSecret []byte
	log       *logger.Logger
}

// NewServer creates the HTTP surface over a service.
func NewServer(service *Service, jwtSecret string, log *logger.Logger) *Server {
	if log == nil {
		log = logger.New("planner-http")
	}
	return &Server{
		service:   service,
		jwtSecret: []byte(jwtSecret),
		log:       log,
	}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.healthHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(s.requestIDMiddleware)
	api.Use(s.authMiddleware)

	api.HandleFunc("/chat", s.chatHandler).Methods("POST")
	api.HandleFunc("/usage", s.usageHandler).Methods("GET")
	api.HandleFunc("/admin/ratelimit/reset", s.adminResetHandler).Methods("POST")

	return r
}

// chatRequestBody is the wire shape of POST /api/v1/chat.
type chatRequestBody struct {
	Message             string            `json:"message"`
	SessionContext      string            `json:"session_context"`
	ConversationHistory []gateway.Message `json:"conversation_history,omitempty"`
}

// errorResponse is the wire shape of every error.
type errorResponse struct {
	Code         string     `json:"code"`
	Message      string     `json:"message"`
	WindowReset  *time.Time `json:"window_reset,omitempty"`
	BlockedUntil *time.Time `json:"blocked_until,omitempty"`
}

func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		promRequestDuration.WithLabelValues("chat").Observe(float64(time.Since(start).Milliseconds()))
	}()

	userID := userIDFrom(r.Context())
	requestID := requestIDFrom(r.Context())

	var body chatRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, requestID, &gateway.GatewayError{
			Code:    gateway.ErrCodeInvalidInput,
			Message: "request body is not valid JSON",
		})
		return
	}

	out, err := s.service.HandleChat(r.Context(), ChatInput{
		UserID:              userID,
		RequestID:           requestID,
		IPAddress:           clientIP(r),
		UserAgent:           r.UserAgent(),
		Message:             body.Message,
		SessionContext:      body.SessionContext,
		ConversationHistory: body.ConversationHistory,
	})
	if err != nil {
		s.writeError(w, requestID, err)
		return
	}

	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) usageHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		promRequestDuration.WithLabelValues("usage").Observe(float64(time.Since(start).Milliseconds()))
	}()

	stats, err := s.service.Statistics(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.writeError(w, requestIDFrom(r.Context()), err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// adminResetBody is the wire shape of the administrative reset.
type adminResetBody struct {
	UserID string `json:"user_id"`
	IP     string `json:"ip"`
}

func (s *Server) adminResetHandler(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r.Context())

	if roleFrom(r.Context()) != "admin" {
		s.writeError(w, requestID, &gateway.GatewayError{
			Code:    gateway.ErrCodeInvalidInput,
			Message: "administrative privileges required",
		})
		return
	}

	var body adminResetBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UserID == "" {
		s.writeError(w, requestID, &gateway.GatewayError{
			Code:    gateway.ErrCodeInvalidInput,
			Message: "user_id is required",
		})
		return
	}

	if err := s.service.ResetRateLimit(r.Context(), body.UserID, body.IP); err != nil {
		s.writeError(w, requestID, err)
		return
	}

	s.log.Info(body.UserID, requestID, "rate limit reset by administrator", map[string]interface{}{
		"admin": userIDFrom(r.Context()),
		"ip":    body.IP,
	})
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "planner",
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("", "", "failed to encode response", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// writeError maps a taxonomy error onto HTTP and emits the stable wire
// shape. Unknown errors surface as opaque internal failures.
func (s *Server) writeError(w http.ResponseWriter, requestID string, err error) {
	var gwErr *gateway.GatewayError
	if !errors.As(err, &gwErr) {
		gwErr = &gateway.GatewayError{
			Code:    gateway.ErrCodeInternalError,
			Message: "an internal error occurred",
			Err:     err,
		}
	}

	if gwErr.Code == gateway.ErrCodeInternalError || gwErr.Code == gateway.ErrCodeDatabaseError {
		s.log.ErrorWithCode("", requestID, "request failed", string(gwErr.Code), gwErr.Err, nil)
	}

	s.writeJSON(w, httpStatusFor(gwErr.Code), errorResponse{
		Code:         string(gwErr.Code),
		Message:      gwErr.Message,
		WindowReset:  gwErr.WindowReset,
		BlockedUntil: gwErr.BlockedUntil,
	})
}

// httpStatusFor maps taxonomy codes onto HTTP status codes.
func httpStatusFor(code gateway.ErrorCode) int {
	switch code {
	case gateway.ErrCodeInvalidInput, gateway.ErrCodeMessageLimitExceeded:
		return http.StatusBadRequest
	case gateway.ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case gateway.ErrCodeUserBlocked:
		return http.StatusForbidden
	case gateway.ErrCodeAIQuotaExceeded, gateway.ErrCodeAIServiceError, gateway.ErrCodeNetworkError:
		return http.StatusBadGateway
	case gateway.ErrCodeAITimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// clientIP resolves the caller address: first X-Forwarded-For hop, then
// RemoteAddr without the port.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx >= 0 {
			fwd = fwd[:idx]
		}
		return strings.TrimSpace(fwd)
	}

	addr := r.RemoteAddr
	if idx := strings.LastIndexByte(addr, ':'); idx >= 0 {
		addr = addr[:idx]
	}
	return addr
}
