package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/clickforcharity/internal/apperror"
	"github.com/sakif/clickforcharity/internal/model"
	"github.com/sakif/clickforcharity/internal/profilesource"
	"github.com/sakif/clickforcharity/internal/repository"
)

// =========================================================================
// FAKE REPOSITORIES
// =========================================================================
//
// In-memory implementations of the repository interfaces. Records are copied
// in and out so a test cannot mutate stored state by accident.

var testNow = time.Unix(1_760_000_000, 0)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeBalances struct {
	mu        sync.Mutex
	recs      map[string]*model.Balance
	updateErr error
}

var _ repository.BalanceRepository = (*fakeBalances)(nil)

func newFakeBalances() *fakeBalances {
	return &fakeBalances{recs: make(map[string]*model.Balance)}
}

func (f *fakeBalances) Get(_ context.Context, userID string) (*model.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[userID]
	if !ok {
		return nil, apperror.NotFound("balance", userID)
	}
	return rec.Clone(), nil
}

func (f *fakeBalances) Exists(_ context.Context, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.recs[userID]
	return ok, nil
}

func (f *fakeBalances) Create(_ context.Context, userID string, rec *model.Balance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.recs[userID]; ok {
		return apperror.Conflict("balance", userID)
	}
	f.recs[userID] = rec.Clone()
	return nil
}

func (f *fakeBalances) Update(_ context.Context, userID string, fn repository.BalanceUpdateFunc) (*model.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	rec := model.NewBalance()
	if cur, ok := f.recs[userID]; ok {
		rec = cur.Clone()
	}
	if err := fn(rec); err != nil {
		if errors.Is(err, repository.ErrNoChange) {
			return rec, nil
		}
		return nil, err
	}
	f.recs[userID] = rec.Clone()
	return rec, nil
}

type fakeProfiles struct {
	mu        sync.Mutex
	profiles  map[string][]byte
	updateErr error
}

var _ repository.ProfileRepository = (*fakeProfiles)(nil)

func newFakeProfiles(ps ...*model.Profile) *fakeProfiles {
	f := &fakeProfiles{profiles: make(map[string][]byte)}
	for _, p := range ps {
		f.put(p)
	}
	return f
}

func (f *fakeProfiles) put(p *model.Profile) {
	data, _ := json.Marshal(p)
	f.profiles[p.UserID] = data
}

func (f *fakeProfiles) load(userID string) (*model.Profile, bool) {
	data, ok := f.profiles[userID]
	if !ok {
		return nil, false
	}
	var p model.Profile
	_ = json.Unmarshal(data, &p)
	return &p, true
}

func (f *fakeProfiles) Get(_ context.Context, userID string) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.load(userID)
	if !ok {
		return nil, apperror.NotFound("profile", userID)
	}
	return p, nil
}

func (f *fakeProfiles) Save(_ context.Context, p *model.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.put(p)
	return nil
}

func (f *fakeProfiles) Update(_ context.Context, userID string, fn repository.ProfileUpdateFunc) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	p, ok := f.load(userID)
	if !ok {
		return nil, apperror.NotFound("profile", userID)
	}
	if err := fn(p); err != nil {
		if errors.Is(err, repository.ErrNoChange) {
			return p, nil
		}
		return nil, err
	}
	f.put(p)
	return p, nil
}

type fakeContent struct {
	mu      sync.Mutex
	items   map[model.Kind]map[model.ItemID]model.Item
	next    map[model.Kind]int
	deleted []model.ItemID
}

var _ repository.ContentRepository = (*fakeContent)(nil)

func newFakeContent() *fakeContent {
	return &fakeContent{
		items: make(map[model.Kind]map[model.ItemID]model.Item),
		next:  make(map[model.Kind]int),
	}
}

func (f *fakeContent) add(kind model.Kind, it model.Item) {
	if f.items[kind] == nil {
		f.items[kind] = make(map[model.ItemID]model.Item)
	}
	f.items[kind][it.ID] = it
	if n, ok := kind.SequenceOf(it.ID); ok && n > f.next[kind] {
		f.next[kind] = n
	}
}

func (f *fakeContent) List(_ context.Context, kind model.Kind) ([]model.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Item{}
	for _, it := range f.items[kind] {
		out = append(out, it)
	}
	return out, nil
}

func (f *fakeContent) Get(_ context.Context, kind model.Kind, id model.ItemID) (*model.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[kind][id]
	if !ok {
		return nil, apperror.NotFound(string(kind), string(id))
	}
	return &it, nil
}

func (f *fakeContent) Create(_ context.Context, kind model.Kind, item *model.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item.ID = kind.FormatID(f.next[kind] + 1)
	f.add(kind, *item)
	return nil
}

func (f *fakeContent) Save(_ context.Context, kind model.Kind, item *model.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.add(kind, *item)
	return nil
}

func (f *fakeContent) Delete(_ context.Context, kind model.Kind, id model.ItemID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items[kind], id)
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeFetcher struct {
	profiles map[string]*profilesource.RemoteProfile
	err      error
	calls    int
}

func (f *fakeFetcher) Fetch(_ context.Context, userID string) (*profilesource.RemoteProfile, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.profiles[userID]
	if !ok {
		return nil, profilesource.ErrUnknownUser
	}
	return p, nil
}

// =========================================================================
// WIRING
// =========================================================================

type testServices struct {
	balances    *fakeBalances
	profileRepo *fakeProfiles
	contentRepo *fakeContent
	fetcher     *fakeFetcher

	profiles  *ProfileService
	balance   *BalanceService
	content   *ContentService
	tasks     *TaskService
	platforms *PlatformService
}

func newTestServices(ps ...*model.Profile) *testServices {
	ts := &testServices{
		balances:    newFakeBalances(),
		profileRepo: newFakeProfiles(ps...),
		contentRepo: newFakeContent(),
		fetcher:     &fakeFetcher{profiles: map[string]*profilesource.RemoteProfile{}},
	}
	clock := func() time.Time { return testNow }
	log := discardLogger()

	ts.profiles = NewProfileService(ts.profileRepo, ts.balances, ts.fetcher, log)
	ts.profiles.now = clock
	ts.balance = NewBalanceService(ts.balances, ts.profileRepo, ts.profiles, 50, log)
	ts.balance.now = clock
	ts.content = NewContentService(ts.contentRepo, 30*time.Minute, 23*time.Hour, log)
	ts.content.now = clock
	ts.tasks = NewTaskService(ts.content, ts.profileRepo, ts.balance, log)
	ts.platforms = NewPlatformService(ts.profileRepo, ts.balance, RewardPerPlatform, log)
	return ts
}

func profile(userID string) *model.Profile {
	return &model.Profile{UserID: userID, Username: userID, Level: 1}
}
