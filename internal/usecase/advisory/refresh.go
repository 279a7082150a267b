package advisory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// refreshTimeout bounds a single dataset reload.
const refreshTimeout = 5 * time.Minute

// Refreshable is a dataset that can be reloaded in place.
type Refreshable interface {
	Refresh(ctx context.Context) error
}

// Refresher reloads datasets on cron expressions or fixed intervals.
type Refresher struct {
	cron    *cron.Cron
	entries map[string]cron.EntryID
	logger  *slog.Logger
	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewRefresher creates an idle refresher.
func NewRefresher(logger *slog.Logger) *Refresher {
	return &Refresher{
		cron:    cron.New(),
		entries: make(map[string]cron.EntryID),
		logger:  logger,
	}
}

// Add schedules target for reload. schedule is a cron expression ("0 */6 * * *")
// or a duration ("6h").
func (r *Refresher) Add(name, schedule string, target Refreshable) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("refresher: dataset %q already scheduled", name)
	}
	sched, err := ParseSchedule(schedule)
	if err != nil {
		return fmt.Errorf("refresher: invalid schedule %q for %q: %w", schedule, name, err)
	}

	logger := r.logger
	r.entries[name] = r.cron.Schedule(sched, cron.FuncJob(func() {
		r.mu.Lock()
		ctx := r.ctx
		r.mu.Unlock()

		if ctx == nil {
			logger.Debug("refresher stopped, skipping reload", "dataset", name)
			return
		}

		reloadCtx, cancel := context.WithTimeout(ctx, refreshTimeout)
		defer cancel()

		start := time.Now()
		if err := target.Refresh(reloadCtx); err != nil {
			logger.Warn("dataset reload failed", "dataset", name, "error", err, "duration", time.Since(start))
			return
		}
		logger.Info("dataset reloaded", "dataset", name, "duration", time.Since(start))
	}))

	logger.Info("dataset reload scheduled", "dataset", name, "schedule", schedule)
	return nil
}

// Next returns the next reload time for name, or nil if it is not scheduled
// or the refresher has not started.
func (r *Refresher) Next(name string) *time.Time {
	r.mu.Lock()
	id, ok := r.entries[name]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	entry := r.cron.Entry(id)
	if entry.ID == 0 || entry.Next.IsZero() {
		return nil
	}
	t := entry.Next
	return &t
}

// Start begins running scheduled reloads.
func (r *Refresher) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.cron.Start()
	r.started = true
}

// Stop cancels in-flight reloads and waits for them to return.
func (r *Refresher) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.cancel()
	r.ctx = nil
	r.started = false
	r.mu.Unlock()

	<-r.cron.Stop().Done()
}

// ParseSchedule parses a cron expression, falling back to a positive duration.
func ParseSchedule(schedule string) (cron.Schedule, error) {
	if schedule == "" {
		return nil, fmt.Errorf("empty schedule")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if sched, err := parser.Parse(schedule); err == nil {
		return sched, nil
	}

	dur, err := time.ParseDuration(schedule)
	if err != nil {
		return nil, fmt.Errorf("not a valid cron expression or duration: %q", schedule)
	}
	if dur <= 0 {
		return nil, fmt.Errorf("duration must be positive: %q", schedule)
	}
	return constantDelay(dur), nil
}

// constantDelay fires at a fixed interval. Unlike cron.Every it keeps sub-second precision.
type constantDelay time.Duration

func (d constantDelay) Next(t time.Time) time.Time { return t.Add(time.Duration(d)) }
