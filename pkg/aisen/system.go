// system.go captures process state for the contexts.system packet entry.

package aisen

import (
	"os"
	"runtime"
	"time"
)

// SystemState is the process snapshot attached by WithSystemState.
type SystemState struct {
	// MemoryBytes is the current heap allocation in bytes.
	MemoryBytes int64 `json:"memory_bytes"`

	GoroutineCount int `json:"goroutine_count"`

	// UptimeMs is the client's age in milliseconds.
	UptimeMs int64 `json:"uptime_ms"`

	GoVersion string `json:"go_version"`
	NumCPU    int    `json:"num_cpu"`

	HostName string `json:"host_name,omitempty"`
}

// CaptureSystemState snapshots the process. Uptime is measured from
// startTime and never negative.
func CaptureSystemState(startTime time.Time) *SystemState {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	hostname, _ := os.Hostname() // empty hostname is acceptable

	return &SystemState{
		MemoryBytes:    int64(memStats.Alloc),
		GoroutineCount: runtime.NumGoroutine(),
		UptimeMs:       max(time.Since(startTime).Milliseconds(), 0),
		GoVersion:      runtime.Version(),
		NumCPU:         runtime.NumCPU(),
		HostName:       hostname,
	}
}
