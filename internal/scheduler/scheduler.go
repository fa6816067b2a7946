// Package scheduler is the earliest-deadline-first zone scheduler of
// spec.md §5: a fixed worker pool drains a priority queue of (zone,
// wakeup) entries, holding a per-zone mutex for the duration of each run
// so two workers never process the same zone concurrently. Grounded on
// the teacher's ticker-driven select loop (music/syncengine.go), widened
// from one goroutine servicing one queue to N workers.
package scheduler

import (
	"container/heap"
	"context"
	"log"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/johanix/keyenforcer/internal/model"
)

// RunFunc processes one zone tick and returns the next time it should be
// reconsidered.
type RunFunc func(ctx context.Context, zone model.ID) (nextWakeup time.Time, err error)

// entry is one scheduled zone in the EDF queue.
type entry struct {
	zone    model.ID
	wakeup  time.Time
	index   int
}

type queue []*entry

func (q queue) Len() int            { return len(q) }
func (q queue) Less(i, j int) bool  { return q[i].wakeup.Before(q[j].wakeup) }
func (q queue) Swap(i, j int)       { q[i], q[j] = q[j], q[i]; q[i].index, q[j].index = i, j }
func (q *queue) Push(x any)         { e := x.(*entry); e.index = len(*q); *q = append(*q, e) }
func (q *queue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return e
}

// Scheduler runs RunFunc for each zone at its scheduled time, using a fixed
// pool of worker goroutines and a mutex per zone so concurrent re-entrancy
// into the same zone's update is impossible (spec.md §5).
type Scheduler struct {
	run     RunFunc
	workers int
	logger  *log.Logger

	mu      sync.Mutex
	q       queue
	entries map[model.ID]*entry
	wake    chan struct{}

	zoneMu cmap.ConcurrentMap[string, *sync.Mutex]

	stop chan struct{}
	wg   sync.WaitGroup
}

// New constructs a Scheduler with the given worker pool size.
func New(run RunFunc, workers int, logger *log.Logger) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	s := &Scheduler{
		run:     run,
		workers: workers,
		logger:  logger,
		entries: make(map[model.ID]*entry),
		wake:    make(chan struct{}, 1),
		zoneMu:  cmap.New[*sync.Mutex](),
		stop:    make(chan struct{}),
	}
	heap.Init(&s.q)
	return s
}

// Schedule adds or reschedules zone to run at wakeup.
func (s *Scheduler) Schedule(zone model.ID, wakeup time.Time) {
	s.mu.Lock()
	if e, ok := s.entries[zone]; ok {
		e.wakeup = wakeup
		heap.Fix(&s.q, e.index)
	} else {
		e := &entry{zone: zone, wakeup: wakeup}
		s.entries[zone] = e
		heap.Push(&s.q, e)
	}
	s.mu.Unlock()
	s.nudge()
}

func (s *Scheduler) nudge() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Start launches the worker pool. It returns immediately; call Stop to
// shut down.
func (s *Scheduler) Start(ctx context.Context) {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}
}

// Stop signals all workers to exit and waits for them.
func (s *Scheduler) Stop() {
	close(s.stop)
	s.wg.Wait()
}

func (s *Scheduler) worker(ctx context.Context, id int) {
	defer s.wg.Done()
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		wait := s.nextWait()
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-timer.C:
			s.runDue(ctx)
		case <-s.wake:
			s.runDue(ctx)
		}
	}
}

// nextWait returns how long to sleep until the earliest queued entry is
// due, capped so a Schedule call during the wait is noticed reasonably
// promptly.
func (s *Scheduler) nextWait() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.q) == 0 {
		return time.Hour
	}
	d := time.Until(s.q[0].wakeup)
	if d < 0 {
		return 0
	}
	if d > time.Hour {
		return time.Hour
	}
	return d
}

// runDue pops and runs every entry whose wakeup has passed.
func (s *Scheduler) runDue(ctx context.Context) {
	for {
		zone, ok := s.popDue()
		if !ok {
			return
		}
		s.runOne(ctx, zone)
	}
}

func (s *Scheduler) popDue() (model.ID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.q) == 0 || s.q[0].wakeup.After(time.Now()) {
		return "", false
	}
	e := heap.Pop(&s.q).(*entry)
	delete(s.entries, e.zone)
	return e.zone, true
}

func (s *Scheduler) runOne(ctx context.Context, zone model.ID) {
	lock, _ := s.zoneMu.Get(string(zone))
	if lock == nil {
		lock = &sync.Mutex{}
		s.zoneMu.SetIfAbsent(string(zone), lock)
		lock, _ = s.zoneMu.Get(string(zone))
	}
	lock.Lock()
	defer lock.Unlock()

	next, err := s.run(ctx, zone)
	if err != nil {
		if s.logger != nil {
			s.logger.Printf("scheduler: zone %s: %v", zone, err)
		}
		next = time.Now().Add(time.Minute) // retry soon on error
	}
	s.Schedule(zone, next)
}
