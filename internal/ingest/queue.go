package ingest

import (
	"sync"
	"time"
)

// FrameJob is one captured frame on its way to analysis. A job is consumed
// at most once: it is either popped by the consumer or evicted unprocessed.
type FrameJob struct {
	CameraID string
	Payload  []byte
	Captured time.Time
	Index    int64
}

// FrameQueue is a small bounded queue between the frame producer and the
// analysis consumer. When full, pushing evicts the oldest job so the
// producer never waits on a slow consumer. Eviction and pop are atomic
// with respect to each other.
type FrameQueue struct {
	mu       sync.Mutex
	jobs     []FrameJob
	capacity int
}

// NewFrameQueue creates a queue holding at most capacity jobs.
func NewFrameQueue(capacity int) *FrameQueue {
	if capacity <= 0 {
		capacity = 2
	}
	return &FrameQueue{
		jobs:     make([]FrameJob, 0, capacity),
		capacity: capacity,
	}
}

// Push adds a job, evicting the oldest entry first if the queue is full.
// It returns the evicted job and whether an eviction happened.
func (q *FrameQueue) Push(job FrameJob) (evicted FrameJob, dropped bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) >= q.capacity {
		evicted = q.jobs[0]
		copy(q.jobs, q.jobs[1:])
		q.jobs = q.jobs[:len(q.jobs)-1]
		dropped = true
	}
	q.jobs = append(q.jobs, job)
	return evicted, dropped
}

// TryPop removes and returns the oldest job without blocking.
func (q *FrameQueue) TryPop() (FrameJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return FrameJob{}, false
	}
	job := q.jobs[0]
	copy(q.jobs, q.jobs[1:])
	q.jobs = q.jobs[:len(q.jobs)-1]
	return job, true
}

// Len returns the number of queued jobs.
func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}
