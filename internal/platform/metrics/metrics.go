// Package metrics provides observability for the garden server.
package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Collector gathers performance metrics.
type Collector struct {
	// Growth tick metrics
	TickCount      int64
	TickLatencySum int64 // nanoseconds
	TickLatencyMax int64
	LastTickTime   time.Time

	// Event metrics
	EventsWritten    int64
	EventWriteLatSum int64
	EventWriteLatMax int64
	EventWriteErrors int64

	// WebSocket metrics
	WSConnectionsActive int64
	WSMessagesOut       int64
	WSErrors            int64

	// Garden operation counters
	OpsPlant   int64
	OpsWater   int64
	OpsHarvest int64
	OpsBuy     int64
	OpsSell    int64
	OpsTrade   int64
	OpsGift    int64

	// System
	StartTime time.Time
	mu        sync.RWMutex
}

// Global collector instance
var collector = &Collector{
	StartTime: time.Now(),
}

// Get returns the global collector.
func Get() *Collector {
	return collector
}

// RecordTick records a growth tick completion.
func (c *Collector) RecordTick(latency time.Duration) {
	atomic.AddInt64(&c.TickCount, 1)
	atomic.AddInt64(&c.TickLatencySum, int64(latency))

	// Update max (non-atomic but acceptable for metrics)
	if int64(latency) > atomic.LoadInt64(&c.TickLatencyMax) {
		atomic.StoreInt64(&c.TickLatencyMax, int64(latency))
	}

	c.mu.Lock()
	c.LastTickTime = time.Now()
	c.mu.Unlock()
}

// RecordEventWrite records an event write to the database.
func (c *Collector) RecordEventWrite(latency time.Duration, err error) {
	atomic.AddInt64(&c.EventsWritten, 1)
	atomic.AddInt64(&c.EventWriteLatSum, int64(latency))

	if int64(latency) > atomic.LoadInt64(&c.EventWriteLatMax) {
		atomic.StoreInt64(&c.EventWriteLatMax, int64(latency))
	}

	if err != nil {
		atomic.AddInt64(&c.EventWriteErrors, 1)
	}
}

// RecordWSConnection records WebSocket connection changes.
func (c *Collector) RecordWSConnection(delta int64) {
	atomic.AddInt64(&c.WSConnectionsActive, delta)
}

// RecordWSMessage records an outgoing WebSocket broadcast.
func (c *Collector) RecordWSMessage() {
	atomic.AddInt64(&c.WSMessagesOut, 1)
}

// RecordWSError records a WebSocket error.
func (c *Collector) RecordWSError() {
	atomic.AddInt64(&c.WSErrors, 1)
}

// RecordOp bumps the counter for one garden operation.
func (c *Collector) RecordOp(op string) {
	switch op {
	case "plant":
		atomic.AddInt64(&c.OpsPlant, 1)
	case "water":
		atomic.AddInt64(&c.OpsWater, 1)
	case "harvest":
		atomic.AddInt64(&c.OpsHarvest, 1)
	case "buy":
		atomic.AddInt64(&c.OpsBuy, 1)
	case "sell":
		atomic.AddInt64(&c.OpsSell, 1)
	case "trade":
		atomic.AddInt64(&c.OpsTrade, 1)
	case "gift":
		atomic.AddInt64(&c.OpsGift, 1)
	}
}

// Snapshot returns current metrics as a map.
func (c *Collector) Snapshot() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tickCount := atomic.LoadInt64(&c.TickCount)
	eventsWritten := atomic.LoadInt64(&c.EventsWritten)

	// Calculate averages
	var tickAvg, eventAvg float64
	if tickCount > 0 {
		tickAvg = float64(atomic.LoadInt64(&c.TickLatencySum)) / float64(tickCount) / 1e6 // ms
	}
	if eventsWritten > 0 {
		eventAvg = float64(atomic.LoadInt64(&c.EventWriteLatSum)) / float64(eventsWritten) / 1e6
	}

	return map[string]interface{}{
		"uptime_seconds": time.Since(c.StartTime).Seconds(),

		"growth_tick": map[string]interface{}{
			"count":          tickCount,
			"avg_latency_ms": tickAvg,
			"max_latency_ms": float64(atomic.LoadInt64(&c.TickLatencyMax)) / 1e6,
			"last_tick":      c.LastTickTime.Format(time.RFC3339),
		},

		"events": map[string]interface{}{
			"written":          eventsWritten,
			"avg_write_lat_ms": eventAvg,
			"max_write_lat_ms": float64(atomic.LoadInt64(&c.EventWriteLatMax)) / 1e6,
			"errors":           atomic.LoadInt64(&c.EventWriteErrors),
		},

		"websocket": map[string]interface{}{
			"active_connections": atomic.LoadInt64(&c.WSConnectionsActive),
			"messages_out":       atomic.LoadInt64(&c.WSMessagesOut),
			"errors":             atomic.LoadInt64(&c.WSErrors),
		},

		"operations": map[string]interface{}{
			"plant":   atomic.LoadInt64(&c.OpsPlant),
			"water":   atomic.LoadInt64(&c.OpsWater),
			"harvest": atomic.LoadInt64(&c.OpsHarvest),
			"buy":     atomic.LoadInt64(&c.OpsBuy),
			"sell":    atomic.LoadInt64(&c.OpsSell),
			"trade":   atomic.LoadInt64(&c.OpsTrade),
			"gift":    atomic.LoadInt64(&c.OpsGift),
		},
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")

		snapshot := collector.Snapshot()
		json.NewEncoder(w).Encode(snapshot)
	}
}

// PrometheusHandler returns metrics in Prometheus format.
func PrometheusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		c := collector

		fmt.Fprintf(w, "# HELP garden_tick_count Total growth ticks\n")
		fmt.Fprintf(w, "# TYPE garden_tick_count counter\n")
		fmt.Fprintf(w, "garden_tick_count %d\n\n", atomic.LoadInt64(&c.TickCount))

		fmt.Fprintf(w, "# HELP garden_tick_latency_max_ms Maximum growth tick latency\n")
		fmt.Fprintf(w, "# TYPE garden_tick_latency_max_ms gauge\n")
		fmt.Fprintf(w, "garden_tick_latency_max_ms %.2f\n\n", float64(atomic.LoadInt64(&c.TickLatencyMax))/1e6)

		fmt.Fprintf(w, "# HELP garden_events_written Total ledger events written\n")
		fmt.Fprintf(w, "# TYPE garden_events_written counter\n")
		fmt.Fprintf(w, "garden_events_written %d\n\n", atomic.LoadInt64(&c.EventsWritten))

		fmt.Fprintf(w, "# HELP garden_event_write_errors Total ledger write errors\n")
		fmt.Fprintf(w, "# TYPE garden_event_write_errors counter\n")
		fmt.Fprintf(w, "garden_event_write_errors %d\n\n", atomic.LoadInt64(&c.EventWriteErrors))

		fmt.Fprintf(w, "# HELP garden_ws_connections Active WebSocket connections\n")
		fmt.Fprintf(w, "# TYPE garden_ws_connections gauge\n")
		fmt.Fprintf(w, "garden_ws_connections %d\n\n", atomic.LoadInt64(&c.WSConnectionsActive))

		fmt.Fprintf(w, "# HELP garden_ws_messages_total Total WebSocket broadcasts\n")
		fmt.Fprintf(w, "# TYPE garden_ws_messages_total counter\n")
		fmt.Fprintf(w, "garden_ws_messages_total %d\n\n", atomic.LoadInt64(&c.WSMessagesOut))

		fmt.Fprintf(w, "# HELP garden_ops_total Garden operations by kind\n")
		fmt.Fprintf(w, "# TYPE garden_ops_total counter\n")
		fmt.Fprintf(w, "garden_ops_total{op=\"plant\"} %d\n", atomic.LoadInt64(&c.OpsPlant))
		fmt.Fprintf(w, "garden_ops_total{op=\"water\"} %d\n", atomic.LoadInt64(&c.OpsWater))
		fmt.Fprintf(w, "garden_ops_total{op=\"harvest\"} %d\n", atomic.LoadInt64(&c.OpsHarvest))
		fmt.Fprintf(w, "garden_ops_total{op=\"buy\"} %d\n", atomic.LoadInt64(&c.OpsBuy))
		fmt.Fprintf(w, "garden_ops_total{op=\"sell\"} %d\n", atomic.LoadInt64(&c.OpsSell))
		fmt.Fprintf(w, "garden_ops_total{op=\"trade\"} %d\n", atomic.LoadInt64(&c.OpsTrade))
		fmt.Fprintf(w, "garden_ops_total{op=\"gift\"} %d\n", atomic.LoadInt64(&c.OpsGift))
	}
}
