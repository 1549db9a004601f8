package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"monpecule/internal/database"
)

// SystemHandlers exposes health and status endpoints.
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	startupTime time.Time
	portfolioDB *database.DB
	cacheDB     *database.DB
}

// NewSystemHandlers creates the system handlers.
func NewSystemHandlers(log zerolog.Logger, dataDir string, portfolioDB, cacheDB *database.DB) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("handler", "system").Logger(),
		dataDir:     dataDir,
		startupTime: time.Now(),
		portfolioDB: portfolioDB,
		cacheDB:     cacheDB,
	}
}

// HandleHealth pings both databases and runs a quick integrity check.
// GET /api/system/health
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	type dbHealth struct {
		Name    string `json:"name"`
		Healthy bool   `json:"healthy"`
		Error   string `json:"error,omitempty"`
	}

	checks := make([]dbHealth, 0, 2)
	allHealthy := true
	for _, db := range []*database.DB{h.portfolioDB, h.cacheDB} {
		check := dbHealth{Name: db.Name(), Healthy: true}
		if err := db.HealthCheck(r.Context()); err != nil {
			check.Healthy = false
			check.Error = err.Error()
			allHealthy = false
		}
		checks = append(checks, check)
	}

	status := http.StatusOK
	if !allHealthy {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"healthy":   allHealthy,
		"databases": checks,
	})
}

// HandleStatus reports process and database statistics.
// GET /api/system/status
func (h *SystemHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	cpuPct := 0.0
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		cpuPct = percents[0]
	}
	ramPct := 0.0
	if vm, err := mem.VirtualMemory(); err == nil {
		ramPct = vm.UsedPercent
	}

	dbSizes := map[string]int64{}
	for _, db := range []*database.DB{h.portfolioDB, h.cacheDB} {
		dbSizes[db.Name()] = db.SizeBytes()
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"uptime_seconds":   int64(time.Since(h.startupTime).Seconds()),
		"goroutines":       runtime.NumGoroutine(),
		"heap_alloc_bytes": memStats.HeapAlloc,
		"cpu_percent":      cpuPct,
		"ram_used_percent": ramPct,
		"database_sizes":   dbSizes,
		"data_dir":         h.dataDir,
	})
}
