package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/drewstaylor/fomo/internal/game"
)

// Metrics collects basic application metrics as JSON counters.
type Metrics struct {
	wsConnections    atomic.Int64
	deposits         atomic.Int64
	claims           atomic.Int64
	unlocks          atomic.Int64
	adminOps         atomic.Int64
	rejected         atomic.Int64
	transfersSettled atomic.Int64
	startTime        time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

func (m *Metrics) IncrWSConn()   { m.wsConnections.Add(1) }
func (m *Metrics) DecrWSConn()   { m.wsConnections.Add(-1) }
func (m *Metrics) IncrRejected() { m.rejected.Add(1) }
func (m *Metrics) IncrSettled()  { m.transfersSettled.Add(1) }

// Observe counts a committed operation by action.
func (m *Metrics) Observe(action string) {
	switch action {
	case game.ActionDeposit:
		m.deposits.Add(1)
	case game.ActionClaim:
		m.claims.Add(1)
	case game.ActionUnlockStale:
		m.unlocks.Add(1)
	default:
		m.adminOps.Add(1)
	}
}

// ServeHTTP exposes metrics as JSON at /metrics.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	data := map[string]any{
		"uptime_seconds":    int(time.Since(m.startTime).Seconds()),
		"ws_connections":    m.wsConnections.Load(),
		"deposits":          m.deposits.Load(),
		"claims":            m.claims.Load(),
		"unlocks":           m.unlocks.Load(),
		"admin_operations":  m.adminOps.Load(),
		"rejected":          m.rejected.Load(),
		"transfers_settled": m.transfersSettled.Load(),
		"goroutines":        runtime.NumGoroutine(),
		"heap_alloc_mb":     mem.HeapAlloc / 1024 / 1024,
		"sys_mb":            mem.Sys / 1024 / 1024,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
}
