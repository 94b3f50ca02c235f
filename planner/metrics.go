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

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics
var (
	promRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planner_requests_total",
			Help: "Total number of chat requests processed by the planner",
		},
		[]string{"status"},
	)
	promRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "planner_request_duration_milliseconds",
			Help:    "Request duration in milliseconds",
			Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000, 10000},
		},
		[]string{"endpoint"},
	)
	promValidationVerdicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planner_validation_verdicts_total",
			Help: "Total number of input validation verdicts by risk level",
		},
		[]string{"risk_level"},
	)
	promRateLimitDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planner_ratelimit_denials_total",
			Help: "Total number of requests denied by the rate limiter",
		},
		[]string{"reason"},
	)
	promLLMCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planner_llm_calls_total",
			Help: "Total number of LLM completion outcomes",
		},
		[]string{"model", "status"},
	)
	promFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "planner_llm_fallbacks_total",
			Help: "Total number of completions served by the fallback model",
		},
	)
)

func init() {
	prometheus.MustRegister(promRequestsTotal)
	prometheus.MustRegister(promRequestDuration)
	prometheus.MustRegister(promValidationVerdicts)
	prometheus.MustRegister(promRateLimitDenials)
	prometheus.MustRegister(promLLMCalls)
	prometheus.MustRegister(promFallbacksTotal)
}
