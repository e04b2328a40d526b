package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/3leaps/gobeacon/pkg/remote"
	"github.com/3leaps/gobeacon/pkg/sched"
	"github.com/3leaps/gobeacon/pkg/sink"
)

// Config configures engine behavior.
type Config struct {
	// PollInterval is the base tick cadence shared by both regimes.
	// Default: 5s
	PollInterval time.Duration

	// SlowEvery makes the idle regime poll on every Nth tick, counting
	// the polling tick itself. Default: 6 (effectively one poll per
	// 25s of idle time at the default cadence).
	SlowEvery int

	// InitialFetchLimit is how many recent notifications Initialize pulls.
	// Default: 50
	InitialFetchLimit int

	// RetainRead is how long read notifications are kept before pruning.
	// Unread notifications are never pruned. Default: 24h
	RetainRead time.Duration

	// RequestTimeout bounds each remote call issued by the engine.
	// Default: 10s
	RequestTimeout time.Duration

	// RateLimit is the maximum remote fetches per second.
	// Zero means unlimited (the dual-regime cadence already bounds load,
	// and the server caches the unread-count endpoint briefly).
	// Default: 0
	RateLimit float64
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval:      5 * time.Second,
		SlowEvery:         6,
		InitialFetchLimit: 50,
		RetainRead:        24 * time.Hour,
		RequestTimeout:    10 * time.Second,
		RateLimit:         0,
	}
}

// Engine drives the shared notification poll loop.
//
// One engine instance serves every consumer in the process; Initialize is
// latched and StartPolling is idempotent, so redundant wiring is harmless.
// The store is mutated only inside the engine's tick and mark-read
// handlers; consumers read copies via the snapshot methods.
type Engine struct {
	api     remote.NotificationAPI
	snk     sink.Sink
	sched   sched.Scheduler
	logger  *zap.Logger
	cfg     Config
	policy  Policy
	limiter *rate.Limiter

	// activity, when set, is an authoritative has-active-jobs signal.
	// Without it the engine falls back to the batch-derived heuristic.
	activity func() bool

	mu          sync.Mutex
	store       *Store
	timer       sched.Handle
	polling     bool
	sinceLast   int
	activeHint  bool
	initialized bool
}

// New creates a notification polling engine.
//
// Parameters:
//   - api: remote notification service
//   - snk: presentation channel for surfaced notifications
//   - scheduler: timer source; nil uses the wall clock
//   - logger: nil uses a no-op logger
func New(api remote.NotificationAPI, snk sink.Sink, scheduler sched.Scheduler, logger *zap.Logger, cfg Config) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.SlowEvery < 1 {
		cfg.SlowEvery = DefaultConfig().SlowEvery
	}
	if cfg.InitialFetchLimit <= 0 {
		cfg.InitialFetchLimit = DefaultConfig().InitialFetchLimit
	}
	if cfg.RetainRead <= 0 {
		cfg.RetainRead = DefaultConfig().RetainRead
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultConfig().RequestTimeout
	}
	if scheduler == nil {
		scheduler = sched.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		api:    api,
		snk:    snk,
		sched:  scheduler,
		logger: logger,
		cfg:    cfg,
		policy: DefaultPolicy(),
		store:  NewStore(),
	}
	if cfg.RateLimit > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	// First tick after StartPolling always polls.
	e.sinceLast = cfg.SlowEvery
	return e
}

// WithPolicy overrides the surface policy.
// Returns the engine for method chaining.
func (e *Engine) WithPolicy(p Policy) *Engine {
	e.policy = p
	return e
}

// WithActivitySource wires an authoritative has-active-jobs signal,
// typically jobtrack.Engine.HasActiveJobs.
// Returns the engine for method chaining.
func (e *Engine) WithActivitySource(fn func() bool) *Engine {
	e.activity = fn
	return e
}

// Initialize performs first-run setup: fetch the most recent
// notifications, start the poll loop, then prune stale read records —
// in that order. Latched: later calls are no-ops.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	if e.initialized {
		e.mu.Unlock()
		return nil
	}
	e.initialized = true
	e.mu.Unlock()

	if _, err := e.FetchNotifications(ctx, remote.ListOptions{Limit: e.cfg.InitialFetchLimit}); err != nil {
		// Polling still starts: the loop will catch up once the service
		// recovers.
		e.logger.Warn("initial notification fetch failed", zap.Error(err))
	}
	e.StartPolling()
	e.ClearOldNotifications()
	return nil
}

// Initialized reports whether Initialize has run.
func (e *Engine) Initialized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initialized
}

// StartPolling starts the shared poll loop. No-op if already running.
func (e *Engine) StartPolling() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.polling {
		return
	}
	e.polling = true
	e.sinceLast = e.cfg.SlowEvery
	e.scheduleNextLocked()
}

// StopPolling stops the shared poll loop and its timer.
func (e *Engine) StopPolling() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.polling = false
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// Close stops the poll loop. The store remains readable.
func (e *Engine) Close() {
	e.StopPolling()
}

// PollingActive reports whether the shared loop is running.
func (e *Engine) PollingActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.polling
}

func (e *Engine) scheduleNextLocked() {
	e.timer = e.sched.AfterFunc(e.cfg.PollInterval, e.tick)
}

// tick is one cycle of the shared loop. The loop is never torn down by a
// failure: it re-arms unconditionally after the tick's work settles.
func (e *Engine) tick() {
	// Query the authoritative activity signal outside the lock; it may
	// call into another engine.
	authActive := e.activity != nil && e.activity()

	e.mu.Lock()
	if !e.polling {
		e.mu.Unlock()
		return
	}
	e.sinceLast++
	fast := authActive || e.activeHint || e.store.Unread() > 0
	eligible := fast || e.sinceLast >= e.cfg.SlowEvery-1
	if eligible {
		e.sinceLast = 0
	}
	e.mu.Unlock()

	if eligible {
		e.poll()
	}

	e.mu.Lock()
	if e.polling {
		e.scheduleNextLocked()
	}
	e.mu.Unlock()
}

// poll fetches the unread counter and, when it is positive, the unread
// batch. Transport failures here are transient background noise: logged,
// never alerted, retried on the next eligible tick.
func (e *Engine) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.RequestTimeout)
	defer cancel()

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return
		}
	}

	uc, err := e.api.GetUnreadCount(ctx)
	if err != nil {
		e.logger.Debug("unread count fetch failed", zap.Error(err))
		return
	}

	if uc.Count <= 0 {
		e.mu.Lock()
		e.store.SetUnread(0)
		e.activeHint = false
		e.mu.Unlock()
		return
	}

	list, err := e.api.GetNotifications(ctx, remote.ListOptions{UnreadOnly: true})
	if err != nil {
		e.logger.Debug("notification fetch failed", zap.Error(err))
		return
	}

	fresh := e.ingest(list)
	e.surface(fresh)
}

// FetchNotifications fetches a page on demand, merges it, and surfaces any
// freshly-seen presentable records. Unlike background polling, a failure
// here is a user-visible action failure.
func (e *Engine) FetchNotifications(ctx context.Context, opts remote.ListOptions) ([]remote.Notification, error) {
	list, err := e.api.GetNotifications(ctx, opts)
	if err != nil {
		_ = e.snk.Error(ctx, "Notifications unavailable", "could not fetch notifications", sink.Options{})
		return nil, fmt.Errorf("fetch notifications: %w", err)
	}

	fresh := e.ingest(list)
	e.surface(fresh)
	return list.Notifications, nil
}

// ingest merges a fetched page into the store, adopts the server's unread
// counter, and rederives the job-activity hint from the batch.
func (e *Engine) ingest(list *remote.NotificationList) []remote.Notification {
	hint := false
	for _, n := range list.Notifications {
		if suggestsActiveJobs(n.Type) {
			hint = true
			break
		}
	}

	e.mu.Lock()
	fresh := e.store.Merge(list.Notifications)
	e.store.SetUnread(list.UnreadCount)
	e.activeHint = hint
	e.mu.Unlock()
	return fresh
}

// surface forwards freshly merged, unread, presentable records to the sink.
// Dedup in the merge guarantees each record is shown at most once.
func (e *Engine) surface(fresh []remote.Notification) {
	now := e.sched.Now()
	for _, n := range fresh {
		if n.IsRead || !e.policy.ShouldShow(n, now) {
			continue
		}
		e.show(n)
	}
}

func (e *Engine) show(n remote.Notification) {
	pres := PresentationFor(n.Type)
	opts := sink.Options{Persistent: pres.Persistent, Duration: pres.Duration}
	ctx := context.Background()

	var err error
	switch pres.Kind {
	case sink.KindSuccess:
		err = e.snk.Success(ctx, n.Title, n.Message, opts)
	case sink.KindError:
		err = e.snk.Error(ctx, n.Title, n.Message, opts)
	case sink.KindWarning:
		err = e.snk.Warning(ctx, n.Title, n.Message, opts)
	default:
		err = e.snk.Info(ctx, n.Title, n.Message, opts)
	}
	if err != nil {
		e.logger.Warn("sink rejected notification",
			zap.String("notification_id", n.ID),
			zap.Error(err))
	}
}

// MarkAsRead marks one notification read, server first. On failure the
// local record is left unchanged.
func (e *Engine) MarkAsRead(ctx context.Context, id string) error {
	if err := e.api.MarkRead(ctx, id); err != nil {
		_ = e.snk.Error(ctx, "Notification update failed", "could not mark notification as read", sink.Options{})
		return fmt.Errorf("mark read %s: %w", id, err)
	}

	now := e.sched.Now()
	e.mu.Lock()
	e.store.MarkRead(id, now)
	e.mu.Unlock()
	return nil
}

// MarkMultipleAsRead marks a batch read, server first.
func (e *Engine) MarkMultipleAsRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := e.api.MarkManyRead(ctx, ids); err != nil {
		_ = e.snk.Error(ctx, "Notification update failed", "could not mark notifications as read", sink.Options{})
		return fmt.Errorf("mark %d read: %w", len(ids), err)
	}

	now := e.sched.Now()
	e.mu.Lock()
	e.store.MarkManyRead(ids, now)
	e.mu.Unlock()
	return nil
}

// MarkAllAsRead marks everything read, server first.
func (e *Engine) MarkAllAsRead(ctx context.Context) error {
	if err := e.api.MarkAllRead(ctx); err != nil {
		_ = e.snk.Error(ctx, "Notification update failed", "could not mark notifications as read", sink.Options{})
		return fmt.Errorf("mark all read: %w", err)
	}

	now := e.sched.Now()
	e.mu.Lock()
	e.store.MarkAllRead(now)
	e.mu.Unlock()
	return nil
}

// ClearOldNotifications prunes read records older than the retention
// window. Unread records are exempt regardless of age.
func (e *Engine) ClearOldNotifications() {
	cutoff := e.sched.Now().Add(-e.cfg.RetainRead)
	e.mu.Lock()
	dropped := e.store.PruneRead(cutoff)
	e.mu.Unlock()
	if dropped > 0 {
		e.logger.Debug("pruned read notifications", zap.Int("count", dropped))
	}
}

// Notifications returns copies of every stored record, first-seen order.
func (e *Engine) Notifications() []remote.Notification {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.All()
}

// UnreadNotifications returns copies of the unread records.
func (e *Engine) UnreadNotifications() []remote.Notification {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.UnreadOnly()
}

// PersistentUnreadNotifications returns copies of the unread records
// flagged persistent.
func (e *Engine) PersistentUnreadNotifications() []remote.Notification {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.PersistentUnread()
}

// UnreadCount returns the current unread counter.
func (e *Engine) UnreadCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Unread()
}
