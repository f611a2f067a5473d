package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"exchange-order-worker/internal/observability"
	"exchange-order-worker/internal/processor"
	"exchange-order-worker/internal/stream"
)

// consumerStatus is the part of the consumer /status reports on.
type consumerStatus interface {
	Name() string
	Running() bool
	Stats() stream.Stats
}

// StatusResponse is the JSON response for the /status endpoint.
type StatusResponse struct {
	Status   string                 `json:"status"`
	Uptime   string                 `json:"uptime"`
	Consumer string                 `json:"consumer"`
	Running  bool                   `json:"running"`
	Stats    stream.Stats           `json:"stats"`
	Breaker  processor.BreakerState `json:"breaker"`
}

type statusHandler struct {
	consumer consumerStatus
	breaker  *processor.CircuitBreaker
	started  time.Time
}

func newStatusMux(consumer consumerStatus, breaker *processor.CircuitBreaker) *http.ServeMux {
	h := &statusHandler{consumer: consumer, breaker: breaker, started: time.Now()}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/status", h.handleStatus)
	return mux
}

func newStatusServer(addr string, consumer consumerStatus, breaker *processor.CircuitBreaker, logger *slog.Logger) *http.Server {
	logger.Info("starting HTTP server", "addr", addr)
	return &http.Server{
		Addr:              addr,
		Handler:           newStatusMux(consumer, breaker),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// handleStatus returns consumer and breaker state as JSON.
func (h *statusHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status:   "stopped",
		Uptime:   time.Since(h.started).Truncate(time.Second).String(),
		Consumer: h.consumer.Name(),
		Running:  h.consumer.Running(),
		Stats:    h.consumer.Stats(),
		Breaker:  h.breaker.State(),
	}
	if resp.Running {
		resp.Status = "running"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
