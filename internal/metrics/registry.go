// Package metrics implements the Metrics Registry: a process-wide,
// concurrency-safe set of monotonically-increasing counters with an
// optional periodic JSON snapshot, alongside a parallel Prometheus
// exposition for the admin dashboard's out-of-scope consumers.
package metrics

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Registry is a concurrency-safe, O(1)-increment counter set.
type Registry struct {
	mu        sync.Mutex
	counters  map[string]int64
	startedAt time.Time
}

func NewRegistry() *Registry {
	return &Registry{counters: make(map[string]int64), startedAt: time.Now()}
}

// Increment adds delta (default 1) to key. Concurrency-safe and O(1).
func (r *Registry) Increment(key string, delta int64) {
	r.mu.Lock()
	r.counters[key] += delta
	r.mu.Unlock()
	promEvents.WithLabelValues(key).Add(float64(delta))
}

// Snapshot returns a consistent point-in-time copy of every counter plus
// uptime and a last-updated timestamp.
func (r *Registry) Snapshot() map[string]any {
	r.mu.Lock()
	out := make(map[string]any, len(r.counters)+2)
	for k, v := range r.counters {
		out[k] = v
	}
	r.mu.Unlock()

	out["service_uptime_seconds"] = time.Since(r.startedAt).Seconds()
	out["last_updated_utc"] = time.Now().UTC().Format(time.RFC3339)
	return out
}

// StartScheduledSnapshot periodically writes the snapshot to path as
// JSON, using a write-to-temp + atomic-rename so a concurrent reader
// never observes a truncated file. Returns a stop function.
func (r *Registry) StartScheduledSnapshot(path string, interval time.Duration) func() {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := r.dumpJSON(path); err != nil {
					slog.Error("metrics: snapshot dump failed", "path", path, "error", err)
				}
			case <-stop:
				return
			}
		}
	}()
	return func() { close(stop) }
}

func (r *Registry) dumpJSON(path string) error {
	payload, err := json.MarshalIndent(r.Snapshot(), "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".metrics-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
