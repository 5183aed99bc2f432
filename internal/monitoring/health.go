package monitoring

import (
	"context"
	"database/sql"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/process"
)

// Health is a point-in-time view of the running process.
type Health struct {
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	Uptime     float64   `json:"uptime"` // seconds
	Memory     Memory    `json:"memory"`
	Goroutines int       `json:"goroutines"`
	Database   string    `json:"database"`
}

// Memory reports process memory in bytes.
type Memory struct {
	RSS       uint64 `json:"rss"`
	HeapAlloc uint64 `json:"heapAlloc"`
}

// HealthStatus values.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// StatUpdater periodically samples process statistics so /health can answer
// without touching the OS on every request.
type StatUpdater struct {
	db       *sql.DB
	proc     *process.Process
	interval time.Duration
	started  time.Time
	done     chan struct{}
	stopOnce sync.Once

	mu   sync.RWMutex
	last Health
}

// NewStatUpdater creates a new StatUpdater. db may be nil.
func NewStatUpdater(db *sql.DB, interval time.Duration) *StatUpdater {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn().Err(err).Msg("StatUpdater: process stats unavailable")
	}
	su := &StatUpdater{
		db:       db,
		proc:     proc,
		interval: interval,
		started:  time.Now(),
		done:     make(chan struct{}),
	}
	su.update(context.Background())
	return su
}

// Run starts the periodic updates. It returns when ctx is cancelled or Stop
// is called.
func (su *StatUpdater) Run(ctx context.Context) error {
	log.Info().Msg("Starting background stat updater...")
	ticker := time.NewTicker(su.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Stopping background stat updater.")
			return nil
		case <-su.done:
			log.Info().Msg("Stopping background stat updater.")
			return nil
		case <-ticker.C:
			su.update(ctx)
		}
	}
}

// Stop halts the periodic updates. It is safe to call more than once.
func (su *StatUpdater) Stop() {
	su.stopOnce.Do(func() { close(su.done) })
}

// Snapshot returns the most recent sample with a fresh timestamp.
func (su *StatUpdater) Snapshot() Health {
	su.mu.RLock()
	h := su.last
	su.mu.RUnlock()
	h.Timestamp = time.Now().UTC()
	return h
}

func (su *StatUpdater) update(ctx context.Context) {
	h := Health{
		Status:     StatusOK,
		Timestamp:  time.Now().UTC(),
		Uptime:     time.Since(su.started).Seconds(),
		Goroutines: runtime.NumGoroutine(),
		Database:   StatusOK,
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	h.Memory.HeapAlloc = ms.HeapAlloc

	if su.proc != nil {
		if created, err := su.proc.CreateTimeWithContext(ctx); err == nil {
			h.Uptime = time.Since(time.UnixMilli(created)).Seconds()
		}
		if mem, err := su.proc.MemoryInfoWithContext(ctx); err == nil {
			h.Memory.RSS = mem.RSS
		} else {
			log.Warn().Err(err).Msg("StatUpdater: Could not read process memory")
		}
	}

	if su.db != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := su.db.PingContext(pingCtx)
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("StatUpdater: Database ping failed")
			h.Status = StatusDegraded
			h.Database = "unreachable"
		}
	}

	su.mu.Lock()
	su.last = h
	su.mu.Unlock()
}
