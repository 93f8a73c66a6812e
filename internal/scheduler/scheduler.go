// Package scheduler drains due subscriptions on a fixed tick and fans
// them out to the Processor with bounded concurrency (C6 of the
// specification, §4.5/§5). Grounded in the teacher's Poller: a
// stop-channel-and-WaitGroup background loop, generalized from a single
// global interval to the per-feed tiered cadence and from a plain
// sequential/parallel split to a bounded worker pool plus a per-feed
// lock table.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sparrowreader/microsub/internal/model"
	"github.com/sparrowreader/microsub/internal/processor"
	"github.com/sparrowreader/microsub/internal/store"
)

// DefaultBatchConcurrency bounds how many feeds are processed concurrently
// within a single tick (§5: "up to BATCH_CONCURRENCY = 5 concurrent
// Processor invocations").
const DefaultBatchConcurrency = 5

// feedLocks hands out a per-feed mutex so two polls of the same feed (a
// scheduled tick and a manual RefreshFeedNow) never run concurrently
// (§9, resolved Open Question: layered with the scheduler's own
// non-reentrant tick guard). The WebSub push path does not take these
// locks; a push racing a poll relies on the store's (channel, uid)
// dedup.
type feedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newFeedLocks() *feedLocks {
	return &feedLocks{locks: make(map[string]*sync.Mutex)}
}

func (fl *feedLocks) lockFor(feedID string) *sync.Mutex {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	l, ok := fl.locks[feedID]
	if !ok {
		l = &sync.Mutex{}
		fl.locks[feedID] = l
	}
	return l
}

// Scheduler runs the tiered poll tick and the WebSub lease renewal
// sweep from the same background loop, at independent cadences.
type Scheduler struct {
	store       *store.SQLStore
	processor   *processor.Processor
	concurrency int
	tickEvery   time.Duration
	leaseEvery  time.Duration
	leaseBefore time.Duration

	locks   *feedLocks
	ticking sync.Mutex // non-reentrant guard: a slow tick is never overlapped by the next

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New builds a Scheduler. tickEvery is how often due feeds are drained
// (typically 60s); leaseBefore is how far ahead of expiry a WebSub
// lease is renewed (§4.7).
func New(st *store.SQLStore, p *processor.Processor, concurrency int, tickEvery, leaseBefore time.Duration) *Scheduler {
	if concurrency <= 0 {
		concurrency = DefaultBatchConcurrency
	}
	return &Scheduler{
		store:       st,
		processor:   p,
		concurrency: concurrency,
		tickEvery:   tickEvery,
		leaseEvery:  5 * time.Minute,
		leaseBefore: leaseBefore,
		locks:       newFeedLocks(),
		stopChan:    make(chan struct{}),
	}
}

// Start begins the scheduler's background loops.
func (s *Scheduler) Start() {
	s.wg.Add(2)
	go s.runTickLoop()
	go s.runLeaseLoop()
}

// Stop stops both loops and waits for any in-flight tick to finish.
func (s *Scheduler) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}

func (s *Scheduler) runTickLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.tickEvery)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick drains due feeds and fans them out with bounded concurrency.
// The ticking mutex makes the tick non-reentrant: if a previous tick is
// still draining its batch when the ticker fires again, the new tick is
// skipped rather than piling concurrent ticks on top of each other.
func (s *Scheduler) tick() {
	if !s.ticking.TryLock() {
		log.Printf("scheduler: previous tick still running, skipping")
		return
	}
	defer s.ticking.Unlock()

	ctx := context.Background()
	feeds, err := s.store.GetFeedsToFetch(ctx, time.Now(), 500)
	if err != nil {
		log.Printf("scheduler: list due feeds: %v", err)
		return
	}
	if len(feeds) == 0 {
		return
	}

	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	for i := range feeds {
		f := feeds[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			s.RefreshFeedNow(ctx, &f)
		}()
	}
	wg.Wait()
}

// RefreshFeedNow runs the processor pipeline for a single feed,
// serialized against any other RefreshFeedNow call (including the
// tick's) for the same feed.
func (s *Scheduler) RefreshFeedNow(ctx context.Context, f *model.Feed) {
	lock := s.locks.lockFor(f.ID)
	lock.Lock()
	defer lock.Unlock()

	n, err := s.processor.ProcessFeed(ctx, f)
	if err != nil {
		log.Printf("scheduler: process feed %s (%s): %v", f.ID, f.URL, err)
		return
	}
	if n > 0 {
		log.Printf("scheduler: %d new item(s) from %s, next fetch %s", n, f.URL, humanize.Time(f.NextFetchAt))
	}
}

func (s *Scheduler) runLeaseLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.leaseEvery)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.renewLeases()
		}
	}
}

// renewLeases finds feeds whose WebSub lease is near expiry and
// re-subscribes, per §4.7. Renewal itself is performed by the
// processor's HubSubscriber; the scheduler only identifies candidates
// and marks them pending so a slow hub cannot pile up duplicate
// subscribe requests.
func (s *Scheduler) renewLeases() {
	ctx := context.Background()
	deadline := time.Now().Add(s.leaseBefore)
	feeds, err := s.store.FeedsWithExpiringLease(ctx, deadline)
	if err != nil {
		log.Printf("scheduler: list expiring leases: %v", err)
		return
	}
	for i := range feeds {
		f := feeds[i]
		if s.processor.Subscriber == nil || f.WebSub == nil {
			continue
		}
		ws := *f.WebSub
		ws.Pending = true
		if err := s.store.UpdateFeedWebSub(ctx, f.ID, &ws); err != nil {
			log.Printf("scheduler: mark lease pending for %s: %v", f.URL, err)
			continue
		}
		if err := s.processor.Subscriber.EnsureSubscribed(ctx, &f, ws.Hub, ws.Topic); err != nil {
			log.Printf("scheduler: renew lease for %s: %v", f.URL, err)
		}
	}
}
