// Package metrics exposes the gateway's Prometheus counters.
//
// Counters register once at package init on the default registry; scrapes
// are served by the promhttp handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// LLMCalls counts started turns per provider and model.
	LLMCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_calls_total",
		Help: "Total number of LLM calls",
	}, []string{"provider", "model"})

	// LLMCallFailures counts upstream connection failures.
	LLMCallFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "llm_calls_failures_total",
		Help: "Total number of failed LLM calls",
	})

	// LLMValidationErrors counts shield violations.
	LLMValidationErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "llm_calls_validation_errors_total",
		Help: "Total number of LLM calls blocked by a safety shield",
	})

	// TokensSent counts input tokens per provider and model.
	TokensSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_token_sent_total",
		Help: "Total number of tokens sent to the LLM",
	}, []string{"provider", "model"})

	// TokensReceived counts output tokens per provider and model.
	TokensReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_token_received_total",
		Help: "Total number of tokens received from the LLM",
	}, []string{"provider", "model"})
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
