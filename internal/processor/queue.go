package processor

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vincentbai/stepcoach/internal/database"
	"github.com/vincentbai/stepcoach/internal/logging"
)

const DefaultQueueSize = 64

// Queue hands walkthrough ids to a single worker. An id already waiting is
// not queued twice.
type Queue struct {
	ids chan string

	mu      sync.Mutex
	pending map[string]bool
}

func NewQueue(size int) *Queue {
	if size < 1 {
		size = DefaultQueueSize
	}
	return &Queue{
		ids:     make(chan string, size),
		pending: make(map[string]bool),
	}
}

// Enqueue reports false when the queue is full.
func (q *Queue) Enqueue(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending[id] {
		return true
	}
	select {
	case q.ids <- id:
		q.pending[id] = true
		return true
	default:
		return false
	}
}

func (q *Queue) Len() int {
	return len(q.ids)
}

// Run calls process for each queued id until ctx is done.
func (q *Queue) Run(ctx context.Context, process func(context.Context, string) error) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-q.ids:
			q.mu.Lock()
			delete(q.pending, id)
			q.mu.Unlock()

			if err := process(ctx, id); err != nil {
				logging.Errorf("queued walkthrough %s: %v", id, err)
			}
		}
	}
}

// Sweeper re-enqueues walkthroughs that have been processing for too long,
// which covers full queues, crashed workers and restarts.
type Sweeper struct {
	db         *database.Database
	queue      *Queue
	stuckAfter time.Duration
	scheduler  *cron.Cron
	now        func() time.Time
}

func NewSweeper(db *database.Database, queue *Queue, stuckAfter time.Duration) *Sweeper {
	return &Sweeper{
		db:         db,
		queue:      queue,
		stuckAfter: stuckAfter,
		scheduler:  cron.New(),
		now:        time.Now,
	}
}

// Start schedules Sweep using a cron spec such as "@every 5m".
func (s *Sweeper) Start(schedule string) error {
	if _, err := s.scheduler.AddFunc(schedule, func() {
		if _, err := s.Sweep(context.Background()); err != nil {
			logging.Errorf("sweep failed: %v", err)
		}
	}); err != nil {
		return err
	}
	s.scheduler.Start()
	return nil
}

func (s *Sweeper) Stop() {
	<-s.scheduler.Stop().Done()
}

func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	return s.SweepBefore(ctx, s.now().Add(-s.stuckAfter))
}

// SweepBefore enqueues everything still processing since before cutoff.
func (s *Sweeper) SweepBefore(ctx context.Context, cutoff time.Time) (int, error) {
	ids, err := s.db.ListStuck(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	queued := 0
	for _, id := range ids {
		if !s.queue.Enqueue(id) {
			logging.Warnf("processing queue full, %d walkthroughs left for the next sweep", len(ids)-queued)
			break
		}
		queued++
	}
	if queued > 0 {
		logging.Infof("re-enqueued %d stuck walkthroughs", queued)
	}
	return queued, nil
}
