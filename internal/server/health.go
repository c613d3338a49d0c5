package server

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

type HealthResponse struct {
	Status     string  `json:"status"`
	Uptime     string  `json:"uptime"`
	Goroutines int     `json:"goroutines"`
	RSSBytes   uint64  `json:"rss_bytes,omitempty"`
	MemUsage   float64 `json:"mem_usage_percent,omitempty"`
	Catalog    string  `json:"catalog,omitempty"`
	Archive    string  `json:"archive,omitempty"`
	Budget     *Usage  `json:"budget,omitempty"`
}

type Usage struct {
	Used  int `json:"used_tokens"`
	Limit int `json:"limit_tokens"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:     "ok",
		Uptime:     time.Since(s.started).Round(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
	}

	if proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		if info, err := proc.MemoryInfoWithContext(ctx); err == nil {
			resp.RSSBytes = info.RSS
		}
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		resp.MemUsage = vm.UsedPercent
	}

	status := http.StatusOK
	if s.catalog != nil {
		if err := s.catalog.DB().PingContext(ctx); err != nil {
			resp.Status = "degraded"
			resp.Catalog = "unreachable"
			status = http.StatusServiceUnavailable
		} else {
			resp.Catalog = "ok"
		}
	}

	// the archive is an optional sink; losing it does not degrade answers
	if s.archive != nil {
		resp.Archive = "ok"
		if !s.archive.Healthy(ctx) {
			resp.Archive = "unreachable"
		}
	}

	if s.budget != nil {
		used, limit := s.budget.Usage()
		resp.Budget = &Usage{Used: used, Limit: limit}
	}

	writeJSON(w, status, resp)
}
