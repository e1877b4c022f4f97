package balanceclient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

var testNow = time.Unix(1_760_000_000, 0)

type fakeAPI struct {
	mu          sync.Mutex
	balance     int64
	lastUpdated time.Time
	writeErr    error
	writes      []int64
	gets        int

	// when set, WriteBalance blocks until release is closed
	entered chan struct{}
	release chan struct{}
}

func (f *fakeAPI) GetBalance(_ context.Context, _ string) (*Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	return &Snapshot{Balance: f.balance, LastUpdated: f.lastUpdated}, nil
}

func (f *fakeAPI) WriteBalance(_ context.Context, _ string, netChange int64) (int64, error) {
	if f.release != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	f.writes = append(f.writes, netChange)
	f.balance += netChange
	return f.balance, nil
}

func newTestBuffer(api API, store PendingStore, userID string) *Buffer {
	b := NewBuffer(api, store, userID, slog.New(slog.NewTextHandler(io.Discard, nil)), Options{})
	b.now = func() time.Time { return testNow }
	b.wait = func(context.Context, time.Duration) error { return nil }
	return b
}

// =========================================================================
// LOAD
// =========================================================================

func TestLoad_RestoresPendingOverBaseline(t *testing.T) {
	api := &fakeAPI{balance: 100, lastUpdated: testNow.Add(-time.Hour)}
	store := NewMemoryPendingStore()
	store.Save("42-alice", 7)

	b := newTestBuffer(api, store, "42-alice")
	if err := b.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	st := b.State()
	if st.Baseline != 100 || st.Pending != 7 || st.Display != 107 {
		t.Fatalf("state = %+v, want baseline 100 pending 7 display 107", st)
	}
	if api.gets != 1 {
		t.Fatalf("gets = %d, want 1", api.gets)
	}
}

func TestLoad_RecentRecordIsReadAgain(t *testing.T) {
	api := &fakeAPI{balance: 100, lastUpdated: testNow.Add(-2 * time.Second)}
	b := newTestBuffer(api, NewMemoryPendingStore(), "42-alice")

	var waited time.Duration
	b.wait = func(_ context.Context, d time.Duration) error {
		waited = d
		api.mu.Lock()
		api.balance = 120
		api.mu.Unlock()
		return nil
	}

	if err := b.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if waited != DefaultStaleWait {
		t.Fatalf("waited %v, want %v", waited, DefaultStaleWait)
	}
	if api.gets != 2 {
		t.Fatalf("gets = %d, want 2", api.gets)
	}
	if got := b.State().Baseline; got != 120 {
		t.Fatalf("baseline = %d, want the re-read value 120", got)
	}
}

func TestLoad_WaitCancelled(t *testing.T) {
	api := &fakeAPI{lastUpdated: testNow}
	b := newTestBuffer(api, NewMemoryPendingStore(), "42-alice")
	b.wait = sleep

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.Load(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Load err = %v, want context.Canceled", err)
	}
}

// =========================================================================
// ADD / FLUSH
// =========================================================================

func TestAddThenFlush(t *testing.T) {
	api := &fakeAPI{balance: 10}
	store := NewMemoryPendingStore()
	b := newTestBuffer(api, store, "42-alice")
	if err := b.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	b.Add(5)
	st, err := b.Add(3)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if st.Display != 18 {
		t.Fatalf("display = %d, want 18", st.Display)
	}
	if p, _ := store.Load("42-alice"); p != 8 {
		t.Fatalf("persisted pending = %d, want 8", p)
	}

	sent, err := b.Flush(context.Background())
	if err != nil || !sent {
		t.Fatalf("Flush = %v, %v; want true, nil", sent, err)
	}
	if len(api.writes) != 1 || api.writes[0] != 8 {
		t.Fatalf("writes = %v, want one write of 8", api.writes)
	}

	st = b.State()
	if st.Baseline != 18 || st.Pending != 0 || st.Display != 18 {
		t.Fatalf("after flush state = %+v", st)
	}
	if p, _ := store.Load("42-alice"); p != 0 {
		t.Fatalf("persisted pending after flush = %d, want 0", p)
	}

	// nothing pending: no request
	if sent, _ := b.Flush(context.Background()); sent {
		t.Fatal("empty flush sent a request")
	}
}

func TestFlush_FailureKeepsPendingAndEscalates(t *testing.T) {
	api := &fakeAPI{writeErr: errors.New("connection refused")}
	b := newTestBuffer(api, NewMemoryPendingStore(), "42-alice")
	b.Add(4)

	for i := 1; i <= DefaultBlockAfter; i++ {
		if _, err := b.Flush(context.Background()); err == nil {
			t.Fatalf("flush %d succeeded", i)
		}
		st := b.State()
		if st.Pending != 4 {
			t.Fatalf("pending = %d after failure, want 4", st.Pending)
		}
		want := LevelOK
		switch {
		case i >= DefaultBlockAfter:
			want = LevelBlocking
		case i >= DefaultWarnAfter:
			want = LevelWarning
		}
		if st.Level != want {
			t.Fatalf("after %d failures level = %s, want %s", i, st.Level, want)
		}
	}

	api.mu.Lock()
	api.writeErr = nil
	api.mu.Unlock()
	if _, err := b.Flush(context.Background()); err != nil {
		t.Fatalf("recovery flush: %v", err)
	}
	if st := b.State(); st.Level != LevelOK || st.Failures != 0 || st.LastError != "" {
		t.Fatalf("after recovery state = %+v", st)
	}
}

func TestFlush_GuardAndInFlightDeltas(t *testing.T) {
	api := &fakeAPI{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	b := newTestBuffer(api, NewMemoryPendingStore(), "42-alice")
	b.Add(10)

	done := make(chan error)
	go func() {
		_, err := b.Flush(context.Background())
		done <- err
	}()
	<-api.entered

	// a second flush while the first is in flight does nothing
	if sent, err := b.Flush(context.Background()); sent || err != nil {
		t.Fatalf("concurrent flush = %v, %v; want false, nil", sent, err)
	}
	b.Add(2)

	close(api.release)
	if err := <-done; err != nil {
		t.Fatalf("Flush: %v", err)
	}

	st := b.State()
	if st.Baseline != 10 || st.Pending != 2 || st.Display != 12 {
		t.Fatalf("state = %+v, want baseline 10 pending 2", st)
	}
}

// stallingStore parks the first Save after arm until release is closed.
type stallingStore struct {
	*MemoryPendingStore

	mu      sync.Mutex
	armed   bool
	entered chan struct{}
	release chan struct{}
}

func (s *stallingStore) arm() {
	s.mu.Lock()
	s.armed = true
	s.mu.Unlock()
}

func (s *stallingStore) Save(key string, pending int64) error {
	s.mu.Lock()
	stall := s.armed
	s.armed = false
	s.mu.Unlock()
	if stall {
		s.entered <- struct{}{}
		<-s.release
	}
	return s.MemoryPendingStore.Save(key, pending)
}

func TestFlush_DuringSlowSaveIsNotSentTwice(t *testing.T) {
	api := &fakeAPI{balance: 100}
	store := &stallingStore{
		MemoryPendingStore: NewMemoryPendingStore(),
		entered:            make(chan struct{}),
		release:            make(chan struct{}),
	}
	b := newTestBuffer(api, store, "42-alice")
	if err := b.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	store.arm()
	added := make(chan struct{})
	go func() {
		b.Add(5)
		close(added)
	}()
	<-store.entered

	flushed := make(chan error)
	go func() {
		_, err := b.Flush(context.Background())
		flushed <- err
	}()
	close(store.release)
	<-added
	if err := <-flushed; err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if p, _ := store.Load("42-alice"); p != 0 {
		t.Fatalf("persisted pending = %d after flush, want 0", p)
	}

	// a later session restores nothing and sends nothing
	again := newTestBuffer(api, store, "42-alice")
	if err := again.Load(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if sent, err := again.Flush(context.Background()); sent || err != nil {
		t.Fatalf("reload flush = %v, %v; want false, nil", sent, err)
	}
	if api.balance != 105 {
		t.Fatalf("server balance = %d, want 105", api.balance)
	}
}

func TestFlush_OrderOfDeltasDoesNotMatter(t *testing.T) {
	run := func(deltas ...int64) int64 {
		api := &fakeAPI{balance: 50}
		b := newTestBuffer(api, NewMemoryPendingStore(), "42-alice")
		for _, d := range deltas {
			b.Add(d)
		}
		b.Flush(context.Background())
		return api.balance
	}
	if a, c := run(5, 3), run(3, 5); a != c || a != 58 {
		t.Fatalf("balances %d and %d, want both 58", a, c)
	}
}

// =========================================================================
// GUEST MODE
// =========================================================================

func TestGuest_NeverFlushes(t *testing.T) {
	store := NewMemoryPendingStore()
	store.Save(GuestKey, 3)
	b := newTestBuffer(nil, store, "")

	if err := b.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	st, _ := b.Add(2)
	if !st.Guest || st.Display != 5 {
		t.Fatalf("guest state = %+v, want display 5", st)
	}
	if sent, err := b.Flush(context.Background()); sent || err != nil {
		t.Fatalf("guest flush = %v, %v", sent, err)
	}
	if p, _ := store.Load(GuestKey); p != 5 {
		t.Fatalf("guest pending = %d, want 5", p)
	}
}

// =========================================================================
// RUN / SUBSCRIBE
// =========================================================================

func TestRun_FinalFlushOnCancel(t *testing.T) {
	api := &fakeAPI{}
	b := newTestBuffer(api, NewMemoryPendingStore(), "42-alice")
	b.opts.FlushInterval = time.Hour
	b.Add(6)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	if len(api.writes) != 1 || api.writes[0] != 6 {
		t.Fatalf("writes = %v, want the final flush of 6", api.writes)
	}
}

func TestRun_KickFlushes(t *testing.T) {
	api := &fakeAPI{}
	b := newTestBuffer(api, NewMemoryPendingStore(), "42-alice")
	b.opts.FlushInterval = time.Hour

	flushed := make(chan State, 4)
	unsubscribe := b.Subscribe(func(st State) {
		if st.Pending == 0 && st.Baseline == 9 {
			flushed <- st
		}
	})
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	b.Add(9)
	b.Kick()

	select {
	case <-flushed:
	case <-time.After(2 * time.Second):
		t.Fatal("kick did not trigger a flush")
	}
}

func TestSubscribe(t *testing.T) {
	b := newTestBuffer(&fakeAPI{}, NewMemoryPendingStore(), "42-alice")

	var seen []int64
	unsubscribe := b.Subscribe(func(st State) { seen = append(seen, st.Display) })
	b.Add(1)
	b.Add(1)
	unsubscribe()
	b.Add(1)

	want := []int64{0, 1, 2}
	if len(seen) != len(want) {
		t.Fatalf("seen = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("seen = %v, want %v", seen, want)
		}
	}
}
