// Package monitor reads runtime memory statistics for the stats
// surface and the table cache's pressure checks.
package monitor

import (
	"runtime"
	"time"
)

// HighPressureRatio is the alloc-to-sys ratio above which the process
// counts as under memory pressure.
const HighPressureRatio = 0.8

// Snapshot is a point-in-time view of process memory
type Snapshot struct {
	AllocMB       float64   `json:"alloc_mb"`
	TotalAllocMB  float64   `json:"total_alloc_mb"`
	SysMB         float64   `json:"sys_mb"`
	HeapObjects   uint64    `json:"heap_objects"`
	NumGC         uint32    `json:"num_gc"`
	GCCPUFraction float64   `json:"gc_cpu_fraction"`
	Goroutines    int       `json:"goroutines"`
	Taken         time.Time `json:"taken"`
}

// Read takes a snapshot of the running process
func Read() Snapshot {
	var ms runtime.MemStats

	runtime.ReadMemStats(&ms)

	return Snapshot{
		AllocMB:       mb(ms.Alloc),
		TotalAllocMB:  mb(ms.TotalAlloc),
		SysMB:         mb(ms.Sys),
		HeapObjects:   ms.HeapObjects,
		NumGC:         ms.NumGC,
		GCCPUFraction: ms.GCCPUFraction,
		Goroutines:    runtime.NumGoroutine(),
		Taken:         time.Now(),
	}
}

// Pressure is allocated memory over system memory, clamped to [0, 1]
func (s Snapshot) Pressure() float64 {
	if s.SysMB <= 0 {
		return 0
	}

	p := s.AllocMB / s.SysMB
	if p > 1 {
		p = 1
	}

	return p
}

// High reports whether the process is under memory pressure
func (s Snapshot) High() bool {
	return s.Pressure() > HighPressureRatio
}

func mb(b uint64) float64 {
	return float64(b) / 1024 / 1024
}
