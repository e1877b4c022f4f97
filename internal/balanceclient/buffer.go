package balanceclient

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Defaults for Options.
const (
	DefaultFlushInterval = 30 * time.Second
	DefaultStaleWindow   = 10 * time.Second
	DefaultStaleWait     = 3 * time.Second
	DefaultWarnAfter     = 3
	DefaultBlockAfter    = 10

	finalFlushTimeout = 5 * time.Second
)

// Level is how loudly the UI should warn about unflushed changes.
type Level int

const (
	LevelOK Level = iota
	// LevelWarning is a dismissible banner.
	LevelWarning
	// LevelBlocking is a modal: changes are piling up that no other device can see.
	LevelBlocking
)

func (l Level) String() string {
	switch l {
	case LevelOK:
		return "ok"
	case LevelWarning:
		return "warning"
	case LevelBlocking:
		return "blocking"
	default:
		return "unknown"
	}
}

// API is the part of Client the buffer uses.
type API interface {
	GetBalance(ctx context.Context, userID string) (*Snapshot, error)
	WriteBalance(ctx context.Context, userID string, netChange int64) (int64, error)
}

// Options tune a Buffer. Zero values take the defaults.
type Options struct {
	FlushInterval time.Duration
	StaleWindow   time.Duration
	StaleWait     time.Duration
	WarnAfter     int
	BlockAfter    int
}

func (o Options) withDefaults() Options {
	if o.FlushInterval <= 0 {
		o.FlushInterval = DefaultFlushInterval
	}
	if o.StaleWindow <= 0 {
		o.StaleWindow = DefaultStaleWindow
	}
	if o.StaleWait <= 0 {
		o.StaleWait = DefaultStaleWait
	}
	if o.WarnAfter <= 0 {
		o.WarnAfter = DefaultWarnAfter
	}
	if o.BlockAfter <= 0 {
		o.BlockAfter = DefaultBlockAfter
	}
	return o
}

// State is what a subscriber sees after every change.
type State struct {
	UserID    string
	Guest     bool
	Baseline  int64
	Pending   int64
	Display   int64
	Failures  int
	Level     Level
	LastError string
	LastFlush time.Time
}

// Buffer is one user's net-change accumulator. It is safe for concurrent use.
// The pending total is saved to the store under the same lock that changes it,
// so the store never ends up behind the in-memory total.
type Buffer struct {
	api    API
	store  PendingStore
	userID string
	opts   Options
	logger *slog.Logger

	now  func() time.Time
	wait func(ctx context.Context, d time.Duration) error

	kick chan struct{}

	mu        sync.Mutex
	baseline  int64
	pending   int64
	flushing  bool
	failures  int
	lastErr   string
	lastFlush time.Time
	subs      map[int]func(State)
	nextSub   int
}

// NewBuffer creates a buffer for userID. An empty userID is guest mode and api
// may then be nil.
func NewBuffer(api API, store PendingStore, userID string, logger *slog.Logger, opts Options) *Buffer {
	return &Buffer{
		api:    api,
		store:  store,
		userID: userID,
		opts:   opts.withDefaults(),
		logger: logger.With(slog.String("user_id", userID)),
		now:    time.Now,
		wait:   sleep,
		kick:   make(chan struct{}, 1),
		subs:   make(map[int]func(State)),
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Guest reports whether the buffer is local-only.
func (b *Buffer) Guest() bool { return b.userID == "" }

func (b *Buffer) storeKey() string {
	if b.Guest() {
		return GuestKey
	}
	return b.userID
}

// Load restores the pending total and reads the server baseline. A record
// written within StaleWindow may be a sync still in flight from another device,
// so it is read again after StaleWait.
func (b *Buffer) Load(ctx context.Context) error {
	pending, err := b.store.Load(b.storeKey())
	if err != nil {
		b.logger.Warn("pending net change unreadable, starting from zero", slog.String("error", err.Error()))
		pending = 0
	}

	if b.Guest() {
		b.mu.Lock()
		b.pending = pending
		b.mu.Unlock()
		b.publish()
		return nil
	}

	snap, err := b.api.GetBalance(ctx, b.userID)
	if err != nil {
		return fmt.Errorf("balanceclient: loading balance: %w", err)
	}
	if !snap.LastUpdated.IsZero() && b.now().Sub(snap.LastUpdated) < b.opts.StaleWindow {
		b.logger.Debug("balance modified very recently, re-reading",
			slog.Duration("wait", b.opts.StaleWait),
		)
		if err := b.wait(ctx, b.opts.StaleWait); err != nil {
			return err
		}
		if snap, err = b.api.GetBalance(ctx, b.userID); err != nil {
			return fmt.Errorf("balanceclient: re-reading balance: %w", err)
		}
	}

	b.mu.Lock()
	b.baseline = snap.Balance
	b.pending = pending
	b.mu.Unlock()
	b.publish()
	return nil
}

// Add records a credit (positive) or spend (negative) and returns the new
// optimistic state. The pending total is persisted before returning.
func (b *Buffer) Add(delta int64) (State, error) {
	b.mu.Lock()
	b.pending += delta
	err := b.store.Save(b.storeKey(), b.pending)
	b.mu.Unlock()

	if err != nil {
		b.logger.Error("persisting pending net change", slog.String("error", err.Error()))
		err = fmt.Errorf("balanceclient: persisting pending change: %w", err)
	}
	return b.publish(), err
}

// Flush sends the pending total. It reports whether anything was sent. Guest
// buffers, an empty pending total and a flush already in progress are no-ops.
// On failure the pending total is kept for the next attempt.
func (b *Buffer) Flush(ctx context.Context) (bool, error) {
	if b.Guest() {
		return false, nil
	}

	b.mu.Lock()
	if b.flushing || b.pending == 0 {
		b.mu.Unlock()
		return false, nil
	}
	b.flushing = true
	snapshot := b.pending
	b.mu.Unlock()

	balance, err := b.api.WriteBalance(ctx, b.userID, snapshot)

	b.mu.Lock()
	b.flushing = false
	if err != nil {
		b.failures++
		b.lastErr = err.Error()
		failures := b.failures
		b.mu.Unlock()

		b.logger.Warn("net change flush failed",
			slog.Int64("pending", snapshot),
			slog.Int("failures", failures),
			slog.String("error", err.Error()),
		)
		b.publish()
		return false, fmt.Errorf("balanceclient: flushing: %w", err)
	}

	// Deltas added while the request was in flight stay pending.
	b.baseline = balance
	b.pending -= snapshot
	b.failures = 0
	b.lastErr = ""
	b.lastFlush = b.now()
	err = b.store.Save(b.storeKey(), b.pending)
	b.mu.Unlock()

	if err != nil {
		b.logger.Error("persisting pending net change", slog.String("error", err.Error()))
	}
	b.logger.Debug("net change flushed", slog.Int64("sent", snapshot), slog.Int64("balance", balance))
	b.publish()
	return true, nil
}

// Kick requests a flush from Run without waiting for the timer, for events such
// as the window losing focus.
func (b *Buffer) Kick() {
	select {
	case b.kick <- struct{}{}:
	default:
	}
}

// Run flushes every FlushInterval and on Kick until ctx is cancelled, then
// makes one final attempt with a short timeout of its own.
func (b *Buffer) Run(ctx context.Context) {
	if b.Guest() {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(b.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalFlushTimeout)
			b.Flush(final)
			cancel()
			return
		case <-ticker.C:
		case <-b.kick:
		}
		b.Flush(ctx)
	}
}

// Subscribe calls fn with the current state now and after every change. The
// returned func removes the subscription.
func (b *Buffer) Subscribe(fn func(State)) func() {
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = fn
	st := b.stateLocked()
	b.mu.Unlock()

	fn(st)
	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// State returns the current state.
func (b *Buffer) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked()
}

func (b *Buffer) stateLocked() State {
	lvl := LevelOK
	switch {
	case b.failures >= b.opts.BlockAfter:
		lvl = LevelBlocking
	case b.failures >= b.opts.WarnAfter:
		lvl = LevelWarning
	}
	return State{
		UserID:    b.userID,
		Guest:     b.Guest(),
		Baseline:  b.baseline,
		Pending:   b.pending,
		Display:   b.baseline + b.pending,
		Failures:  b.failures,
		Level:     lvl,
		LastError: b.lastErr,
		LastFlush: b.lastFlush,
	}
}

// publish notifies subscribers outside the lock so they may call back in.
func (b *Buffer) publish() State {
	b.mu.Lock()
	st := b.stateLocked()
	subs := make([]func(State), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.Unlock()

	for _, fn := range subs {
		fn(st)
	}
	return st
}
