package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/yuqie6/eco-signal/internal/eventbus"
	"github.com/yuqie6/eco-signal/internal/notion"
	"github.com/yuqie6/eco-signal/internal/pkg/config"
	"github.com/yuqie6/eco-signal/internal/repository"
	"github.com/yuqie6/eco-signal/internal/testutil"
)

type fakeSource struct {
	recent   []notion.Page
	fetched  map[string]*notion.Page
	queryErr error
}

func (f *fakeSource) QueryRecent(ctx context.Context, limit int) ([]notion.Page, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.recent, nil
}

func (f *fakeSource) FetchPage(ctx context.Context, pageID string) (*notion.Page, error) {
	if p, ok := f.fetched[pageID]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("page not found: %s", pageID)
}

type fakeLabeler struct {
	labels []string
	err    error
}

func (f *fakeLabeler) DetectLabels(ctx context.Context, imageURL string) ([]string, error) {
	return f.labels, f.err
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

type pollerFixture struct {
	poller     *Poller
	source     *fakeSource
	labeler    *fakeLabeler
	clock      *fakeClock
	users      *repository.UserRepository
	activities *repository.ActivityRepository
	pages      *repository.PageRepository
	signal     *SignalState
	hub        *eventbus.Hub
}

func newPollerFixture(t *testing.T) *pollerFixture {
	t.Helper()
	db := testutil.OpenTestDB(t)

	f := &pollerFixture{
		source:     &fakeSource{fetched: map[string]*notion.Page{}},
		labeler:    &fakeLabeler{labels: []string{"tumbler"}},
		clock:      &fakeClock{t: time.Now()},
		users:      repository.NewUserRepository(db),
		activities: repository.NewActivityRepository(db),
		pages:      repository.NewPageRepository(db),
		signal:     NewSignalState(testSignalConfig()),
		hub:        eventbus.NewHub(),
	}

	badges := NewBadgeService(repository.NewBadgeRepository(db), f.activities)
	f.poller = NewPoller(
		f.source, f.labeler, f.users, f.activities, f.pages,
		badges, f.signal, f.hub,
		NewPointPolicy([]config.PolicyEntry{
			{Label: "tumbler", Points: 20},
			{Label: "stairs", Points: 30},
		}),
		PollerConfig{PageSize: 20, PendingTimeoutSec: 300, BootstrapPageLimit: 100},
	)
	f.poller.SetClock(f.clock.Now)
	return f
}

func TestPollerScoresNewPage(t *testing.T) {
	f := newPollerFixture(t)
	ctx := context.Background()
	f.source.recent = []notion.Page{
		{ID: "p1", CreatorName: "김철수", PhotoURL: "https://files.notion.so/a.jpg"},
	}

	n, err := f.poller.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if n != 1 {
		t.Fatalf("processed=%d, want 1", n)
	}

	userID, _ := f.users.GetOrCreate(ctx, "김철수")
	count, _ := f.activities.CountByUser(ctx, userID)
	if count != 1 {
		t.Fatalf("activity count=%d, want 1", count)
	}

	processed, _ := f.pages.ProcessedIDSet(ctx)
	if _, ok := processed["p1"]; !ok {
		t.Fatal("p1 not in processed set")
	}

	snap := f.signal.Recompute(f.clock.t)
	if snap.CurrentPoints != 120 || snap.SignalLevel != LevelYellow {
		t.Fatalf("signal points=%d level=%s, want 120/yellow", snap.CurrentPoints, snap.SignalLevel)
	}

	// second round sees the same page and must not score it again
	if _, err := f.poller.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	count, _ = f.activities.CountByUser(ctx, userID)
	if count != 1 {
		t.Fatalf("activity count after rerun=%d, want 1", count)
	}
}

func TestPollerPendingLifecycle(t *testing.T) {
	f := newPollerFixture(t)
	ctx := context.Background()
	f.source.recent = []notion.Page{
		{ID: "p2", CreatorName: "이영희"}, // photo not uploaded yet
	}

	if _, err := f.poller.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}

	pending, _ := f.pages.PendingIDSet(ctx)
	if _, ok := pending["p2"]; !ok {
		t.Fatal("p2 not queued as pending")
	}

	// photo shows up on recheck
	f.source.fetched["p2"] = &notion.Page{ID: "p2", CreatorName: "이영희", PhotoURL: "https://files.notion.so/b.jpg"}

	n, err := f.poller.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if n != 1 {
		t.Fatalf("processed=%d, want 1", n)
	}

	pending, _ = f.pages.PendingIDSet(ctx)
	if len(pending) != 0 {
		t.Fatalf("pending set not drained: %v", pending)
	}
	processed, _ := f.pages.ProcessedIDSet(ctx)
	if _, ok := processed["p2"]; !ok {
		t.Fatal("p2 not in processed set after recheck")
	}

	userID, _ := f.users.GetOrCreate(ctx, "이영희")
	count, _ := f.activities.CountByUser(ctx, userID)
	if count != 1 {
		t.Fatalf("activity count=%d, want 1", count)
	}
}

func TestPollerPendingTimeout(t *testing.T) {
	f := newPollerFixture(t)
	ctx := context.Background()
	f.source.recent = []notion.Page{{ID: "p3", CreatorName: "박민수"}}
	f.source.fetched["p3"] = &notion.Page{ID: "p3", CreatorName: "박민수"} // photo never arrives

	if _, err := f.poller.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}

	// inside the window: stays pending, retry bumped
	if _, err := f.poller.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	pending, _ := f.pages.ListPending(ctx)
	if len(pending) != 1 || pending[0].RetryCount < 1 {
		t.Fatalf("pending=%v, want one entry with bumped retry", pending)
	}

	// past the window: give up for good, never analyzed
	f.clock.t = f.clock.t.Add(301 * time.Second)
	n, err := f.poller.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if n != 1 {
		t.Fatalf("processed=%d, want 1 (the abandoned page)", n)
	}

	pendingSet, _ := f.pages.PendingIDSet(ctx)
	if len(pendingSet) != 0 {
		t.Fatalf("pending set not drained: %v", pendingSet)
	}
	processed, _ := f.pages.ProcessedIDSet(ctx)
	if _, ok := processed["p3"]; !ok {
		t.Fatal("abandoned page not marked processed")
	}

	userID, _ := f.users.GetOrCreate(ctx, "박민수")
	count, _ := f.activities.CountByUser(ctx, userID)
	if count != 0 {
		t.Fatalf("abandoned page was scored: count=%d", count)
	}
}

func TestPollerPendingPhotoWithoutCreatorSkippedAtOnce(t *testing.T) {
	f := newPollerFixture(t)
	ctx := context.Background()
	f.source.recent = []notion.Page{{ID: "p8"}} // neither photo nor creator yet

	if _, err := f.poller.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	pending, _ := f.pages.PendingIDSet(ctx)
	if _, ok := pending["p8"]; !ok {
		t.Fatal("p8 not queued as pending")
	}

	// photo arrives but the creator stays unresolvable: same rule as
	// dispatch, permanent skip right away instead of waiting out the timeout
	f.source.fetched["p8"] = &notion.Page{ID: "p8", PhotoURL: "https://files.notion.so/i.jpg"}

	n, err := f.poller.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if n != 1 {
		t.Fatalf("processed=%d, want 1", n)
	}

	pending, _ = f.pages.PendingIDSet(ctx)
	if len(pending) != 0 {
		t.Fatalf("pending set not drained: %v", pending)
	}
	processed, _ := f.pages.ProcessedIDSet(ctx)
	if _, ok := processed["p8"]; !ok {
		t.Fatal("p8 not marked processed")
	}

	// no creator means nothing to score
	if names, _ := f.users.AllNames(ctx); len(names) != 0 {
		t.Fatalf("users created for creator-less page: %v", names)
	}
}

func TestPollerSkipsPageWithoutCreator(t *testing.T) {
	f := newPollerFixture(t)
	ctx := context.Background()
	f.source.recent = []notion.Page{
		{ID: "p4", PhotoURL: "https://files.notion.so/c.jpg"}, // no resolvable creator
	}

	n, err := f.poller.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if n != 1 {
		t.Fatalf("processed=%d, want 1", n)
	}

	processed, _ := f.pages.ProcessedIDSet(ctx)
	if _, ok := processed["p4"]; !ok {
		t.Fatal("creator-less page not marked processed")
	}
	pending, _ := f.pages.PendingIDSet(ctx)
	if len(pending) != 0 {
		t.Fatalf("creator-less page queued as pending: %v", pending)
	}
}

func TestPollerNoPolicyHitStillProcessed(t *testing.T) {
	f := newPollerFixture(t)
	f.labeler.labels = []string{"tree", "sky"}
	ctx := context.Background()
	f.source.recent = []notion.Page{
		{ID: "p5", CreatorName: "김철수", PhotoURL: "https://files.notion.so/d.jpg"},
	}

	if _, err := f.poller.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}

	processed, _ := f.pages.ProcessedIDSet(ctx)
	if _, ok := processed["p5"]; !ok {
		t.Fatal("zero-hit page not marked processed")
	}

	userID, _ := f.users.GetOrCreate(ctx, "김철수")
	count, _ := f.activities.CountByUser(ctx, userID)
	if count != 0 {
		t.Fatalf("zero-hit page was scored: count=%d", count)
	}
}

func TestPollerBootstrapMarksBacklog(t *testing.T) {
	f := newPollerFixture(t)
	ctx := context.Background()
	f.source.recent = []notion.Page{
		{ID: "old1", CreatorName: "김철수", PhotoURL: "https://files.notion.so/e.jpg"},
		{ID: "old2", CreatorName: "이영희", PhotoURL: "https://files.notion.so/f.jpg"},
	}

	if err := f.poller.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap error: %v", err)
	}

	processed, _ := f.pages.ProcessedIDSet(ctx)
	if len(processed) != 2 {
		t.Fatalf("processed set=%v, want both backlog pages", processed)
	}

	// subsequent polling must not score the backlog
	if _, err := f.poller.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	userID, _ := f.users.GetOrCreate(ctx, "김철수")
	count, _ := f.activities.CountByUser(ctx, userID)
	if count != 0 {
		t.Fatalf("backlog was scored: count=%d", count)
	}
}

func TestPollerPublishesEvents(t *testing.T) {
	f := newPollerFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := f.hub.Subscribe(ctx, 8)
	f.source.recent = []notion.Page{
		{ID: "p6", CreatorName: "김철수", PhotoURL: "https://files.notion.so/g.jpg"},
	}

	if _, err := f.poller.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}

	seen := map[string]bool{}
	for {
		select {
		case evt := <-sub:
			seen[evt.Type] = true
		default:
			if !seen["activity_recorded"] {
				t.Fatal("missing activity_recorded event")
			}
			if !seen["signal_changed"] {
				t.Fatal("missing signal_changed event")
			}
			return
		}
	}
}

func TestPollerRecomputeAnnouncesDecay(t *testing.T) {
	f := newPollerFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.source.recent = []notion.Page{
		{ID: "p7", CreatorName: "김철수", PhotoURL: "https://files.notion.so/h.jpg"},
	}
	if _, err := f.poller.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}

	sub := f.hub.Subscribe(ctx, 8)

	// bonus window is 60s in the test config; the refresh tick must notice the drop
	f.clock.t = f.clock.t.Add(61 * time.Second)
	f.poller.Recompute()

	select {
	case evt := <-sub:
		if evt.Type != "signal_changed" {
			t.Fatalf("event type=%s, want signal_changed", evt.Type)
		}
		if lvl, _ := evt.Data["signal_level"].(string); lvl != LevelOrange {
			t.Fatalf("signal_level=%v, want orange", evt.Data["signal_level"])
		}
	default:
		t.Fatal("no signal_changed event after decay")
	}
}
