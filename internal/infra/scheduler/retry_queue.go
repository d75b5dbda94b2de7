// Package scheduler retries task status changes that a workflow step
// triggered but could not persist inline.
//
// Entries are ordered by their next attempt time in a min-heap, with
// exponential backoff per attempt. At most one entry exists per task: a
// newer target status replaces the pending one.
package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/propdesk/turnover/internal/domain"
	"github.com/propdesk/turnover/internal/infra/metrics"
)

// ─── Retry Queue ────────────────────────────────────────────────────────────

// RetryConfig configures the retry queue behavior.
type RetryConfig struct {
	MaxRetries   int           // Attempts before the change is dropped
	BaseDelay    time.Duration // Initial backoff delay (doubles each retry)
	MaxDelay     time.Duration // Cap on backoff delay
	PollInterval time.Duration // How often Run looks for due entries
}

// DefaultRetryConfig returns production retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   8,
		BaseDelay:    1 * time.Second,
		MaxDelay:     5 * time.Minute,
		PollInterval: 1 * time.Second,
	}
}

// RetryEntry is one deferred task status change. From is the status the
// change was computed against; it must still hold when the retry runs.
type RetryEntry struct {
	TaskID    string            `json:"task_id"`
	From      domain.TaskStatus `json:"from"`
	To        domain.TaskStatus `json:"to"`
	Actor     string            `json:"actor"`
	Attempt   int               `json:"attempt"`
	NextRetry time.Time         `json:"next_retry"`
	FailedAt  time.Time         `json:"failed_at"`
	Error     string            `json:"error,omitempty"`

	index int
}

// ApplyFunc performs one retry. A nil error removes the entry.
type ApplyFunc func(ctx context.Context, e RetryEntry) error

// RetryQueue schedules task status repairs with exponential backoff.
type RetryQueue struct {
	mu     sync.Mutex
	config RetryConfig
	heap   entryHeap
	byTask map[string]*RetryEntry
	log    *zap.Logger
	now    func() time.Time

	// Stats
	totalRetries   int64
	totalExhausted int64
}

// NewRetryQueue creates an empty retry queue.
func NewRetryQueue(cfg RetryConfig, log *zap.Logger) *RetryQueue {
	def := DefaultRetryConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = max(def.MaxDelay, cfg.BaseDelay)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RetryQueue{
		config: cfg,
		byTask: make(map[string]*RetryEntry),
		log:    log,
		now:    time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (rq *RetryQueue) SetClock(now func() time.Time) {
	rq.mu.Lock()
	rq.now = now
	rq.mu.Unlock()
}

// ScheduleRetry queues a failed change with exponential backoff.
// Returns false if the entry has exceeded MaxRetries.
func (rq *RetryQueue) ScheduleRetry(entry RetryEntry) bool {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	entry.Attempt++
	if entry.Attempt > rq.config.MaxRetries {
		rq.totalExhausted++
		metrics.StatusRetries.WithLabelValues("exhausted").Inc()
		return false
	}

	// Exponential backoff: baseDelay * 2^(attempt-1)
	delay := rq.config.BaseDelay
	for i := 1; i < entry.Attempt; i++ {
		delay *= 2
		if delay > rq.config.MaxDelay {
			delay = rq.config.MaxDelay
			break
		}
	}
	now := rq.now()
	entry.FailedAt = now
	entry.NextRetry = now.Add(delay)

	if cur, ok := rq.byTask[entry.TaskID]; ok {
		idx := cur.index
		*cur = entry
		cur.index = idx
		heap.Fix(&rq.heap, idx)
	} else {
		e := entry
		heap.Push(&rq.heap, &e)
		rq.byTask[e.TaskID] = &e
	}

	rq.totalRetries++
	metrics.StatusRetries.WithLabelValues("scheduled").Inc()
	metrics.StatusRetryQueue.Set(float64(len(rq.heap)))
	return true
}

// NextReady returns the next entry whose NextRetry has passed, if any.
func (rq *RetryQueue) NextReady() (*RetryEntry, bool) {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	if len(rq.heap) == 0 || rq.now().Before(rq.heap[0].NextRetry) {
		return nil, false
	}
	e := heap.Pop(&rq.heap).(*RetryEntry)
	delete(rq.byTask, e.TaskID)
	metrics.StatusRetryQueue.Set(float64(len(rq.heap)))
	out := *e
	return &out, true
}

// DrainReady drains all due entries in NextRetry order.
func (rq *RetryQueue) DrainReady() []RetryEntry {
	var ready []RetryEntry
	for {
		entry, ok := rq.NextReady()
		if !ok {
			break
		}
		ready = append(ready, *entry)
	}
	return ready
}

// RunOnce applies every due entry and reschedules the ones that fail again.
func (rq *RetryQueue) RunOnce(ctx context.Context, apply ApplyFunc) {
	for _, e := range rq.DrainReady() {
		err := apply(ctx, e)
		if err == nil {
			metrics.StatusRetries.WithLabelValues("applied").Inc()
			rq.log.Info("task status repaired",
				zap.String("task_id", e.TaskID),
				zap.String("status", string(e.To)),
				zap.Int("attempt", e.Attempt))
			continue
		}
		e.Error = err.Error()
		if !rq.ScheduleRetry(e) {
			rq.log.Error("giving up on task status change",
				zap.String("task_id", e.TaskID),
				zap.String("status", string(e.To)),
				zap.Int("attempts", e.Attempt),
				zap.Error(err))
		}
	}
}

// Run polls for due entries until ctx is done. Call in a goroutine.
func (rq *RetryQueue) Run(ctx context.Context, apply ApplyFunc) {
	ticker := time.NewTicker(rq.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rq.RunOnce(ctx, apply)
		}
	}
}

// Len returns the number of entries pending retry.
func (rq *RetryQueue) Len() int {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	return len(rq.heap)
}

// RetryStats holds retry queue statistics.
type RetryStats struct {
	PendingRetries int   `json:"pending_retries"`
	TotalRetries   int64 `json:"total_retries"`
	TotalExhausted int64 `json:"total_exhausted"` // Exceeded MaxRetries
}

// RetryStats returns current retry queue statistics.
func (rq *RetryQueue) RetryStats() RetryStats {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	return RetryStats{
		PendingRetries: len(rq.heap),
		TotalRetries:   rq.totalRetries,
		TotalExhausted: rq.totalExhausted,
	}
}

// ─── Heap ───────────────────────────────────────────────────────────────────

type entryHeap []*RetryEntry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].NextRetry.Equal(h[j].NextRetry) {
		return h[i].TaskID < h[j].TaskID
	}
	return h[i].NextRetry.Before(h[j].NextRetry)
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*RetryEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
