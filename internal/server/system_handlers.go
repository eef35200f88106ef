package server

import (
	"net/http"
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/aristath/capitol/internal/config"
	"github.com/aristath/capitol/internal/database"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemStatusResponse is returned by GET /api/system/status
type SystemStatusResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	TradingMode   string  `json:"trading_mode"`
	Schedule      string  `json:"schedule"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	Goroutines    int     `json:"goroutines"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	DiskFreeMB    float64 `json:"disk_free_mb"`
	DiskPercent   float64 `json:"disk_percent"`
	BackupEnabled bool    `json:"backup_enabled"`
}

// DatabaseStat describes one database on disk
type DatabaseStat struct {
	Name      string  `json:"name"`
	Path      string  `json:"path"`
	Profile   string  `json:"profile"`
	SizeMB    float64 `json:"size_mb"`
	Reachable bool    `json:"reachable"`
}

// SystemHandlers handles system monitoring endpoints
type SystemHandlers struct {
	log       zerolog.Logger
	cfg       *config.Config
	databases map[string]*database.DB
	startedAt time.Time
}

// NewSystemHandlers creates system handlers
func NewSystemHandlers(log zerolog.Logger, cfg *config.Config, databases map[string]*database.DB) *SystemHandlers {
	return &SystemHandlers{
		log:       log.With().Str("handler", "system").Logger(),
		cfg:       cfg,
		databases: databases,
		startedAt: time.Now(),
	}
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := h.getSystemStats()

	response := SystemStatusResponse{
		Status:        "ok",
		Version:       Version,
		TradingMode:   string(h.cfg.Broker.Mode),
		Schedule:      h.cfg.Schedule,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		BackupEnabled: h.cfg.Backup != nil && h.cfg.Backup.Enabled,
	}

	if usage, err := disk.UsageWithContext(r.Context(), h.cfg.DataDir); err != nil {
		h.log.Warn().Err(err).Msg("Failed to get disk usage")
	} else {
		response.DiskFreeMB = float64(usage.Free) / 1024 / 1024
		response.DiskPercent = usage.UsedPercent
	}

	writeJSON(w, h.log, http.StatusOK, response)
}

// HandleDatabaseStats handles GET /api/system/database/stats
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.databases))
	for name := range h.databases {
		names = append(names, name)
	}
	sort.Strings(names)

	stats := make([]DatabaseStat, 0, len(names))
	for _, name := range names {
		db := h.databases[name]
		if db == nil {
			continue
		}
		stats = append(stats, DatabaseStat{
			Name:      name,
			Path:      db.Path(),
			Profile:   string(db.Profile()),
			SizeMB:    float64(db.SizeBytes()) / 1024 / 1024,
			Reachable: db.Conn().PingContext(r.Context()) == nil,
		})
	}

	writeJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"databases": stats,
		"count":     len(stats),
		"pid":       os.Getpid(),
	})
}

// getSystemStats returns CPU and RAM usage percentages
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	// 100ms sample keeps the endpoint responsive
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}
