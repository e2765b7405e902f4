// README: Queue abstraction with lmstfy and in-memory implementations.
package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bitleak/lmstfy/client"
	"github.com/google/uuid"

	"dashr/internal/config"
)

type Job struct {
	ID   string
	Body []byte
}

// Queue is at-least-once: a consumed job that is not acked is redelivered after its TTR.
type Queue interface {
	Publish(ctx context.Context, body []byte) (string, error)
	// Consume blocks up to the poll timeout and returns nil when no job is ready.
	Consume(ctx context.Context) (*Job, error)
	Ack(ctx context.Context, jobID string) error
}

type LmstfyQueue struct {
	cli   *client.LmstfyClient
	name  string
	ttl   uint32
	tries uint16
	ttr   uint32
	poll  uint32
}

func NewLmstfyQueue(cfg config.QueueConfig) *LmstfyQueue {
	return &LmstfyQueue{
		cli:   client.NewLmstfyClient(cfg.Host, cfg.Port, cfg.Namespace, cfg.Token),
		name:  cfg.Name,
		ttl:   cfg.TTLSeconds,
		tries: cfg.Tries,
		ttr:   cfg.TTRSeconds,
		poll:  cfg.PollTimeout,
	}
}

func (q *LmstfyQueue) Publish(_ context.Context, body []byte) (string, error) {
	id, err := q.cli.Publish(q.name, body, q.ttl, q.tries, 0)
	if err != nil {
		return "", fmt.Errorf("lmstfy publish: %w", err)
	}
	return id, nil
}

func (q *LmstfyQueue) Consume(_ context.Context) (*Job, error) {
	job, err := q.cli.Consume(q.name, q.ttr, q.poll)
	if err != nil {
		return nil, fmt.Errorf("lmstfy consume: %w", err)
	}
	if job == nil {
		return nil, nil
	}
	return &Job{ID: job.ID, Body: job.Data}, nil
}

func (q *LmstfyQueue) Ack(_ context.Context, jobID string) error {
	if err := q.cli.Ack(q.name, jobID); err != nil {
		return fmt.Errorf("lmstfy ack: %w", err)
	}
	return nil
}

type memJob struct {
	job      Job
	tries    int
	deadline time.Time
}

// MemoryQueue is a process-local Queue for development and tests.
type MemoryQueue struct {
	mu       sync.Mutex
	ready    []*memJob
	inflight map[string]*memJob
	notify   chan struct{}
	tries    int
	ttr      time.Duration
	poll     time.Duration
}

func NewMemoryQueue(tries int, ttr, poll time.Duration) *MemoryQueue {
	if tries <= 0 {
		tries = 1
	}
	if ttr <= 0 {
		ttr = 30 * time.Second
	}
	if poll <= 0 {
		poll = time.Second
	}
	return &MemoryQueue{
		inflight: make(map[string]*memJob),
		notify:   make(chan struct{}, 1),
		tries:    tries,
		ttr:      ttr,
		poll:     poll,
	}
}

func (q *MemoryQueue) Publish(_ context.Context, body []byte) (string, error) {
	id := uuid.NewString()
	q.mu.Lock()
	q.ready = append(q.ready, &memJob{job: Job{ID: id, Body: body}, tries: q.tries})
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return id, nil
}

func (q *MemoryQueue) Consume(ctx context.Context) (*Job, error) {
	timer := time.NewTimer(q.poll)
	defer timer.Stop()
	for {
		if j := q.next(); j != nil {
			return j, nil
		}
		select {
		case <-ctx.Done():
			return nil, nil
		case <-timer.C:
			return q.next(), nil
		case <-q.notify:
		case <-time.After(q.ttr):
		}
	}
}

func (q *MemoryQueue) next() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	for id, j := range q.inflight {
		if now.After(j.deadline) {
			delete(q.inflight, id)
			if j.tries > 0 {
				q.ready = append(q.ready, j)
			}
		}
	}
	if len(q.ready) == 0 {
		return nil
	}
	j := q.ready[0]
	q.ready = q.ready[1:]
	j.tries--
	j.deadline = now.Add(q.ttr)
	q.inflight[j.job.ID] = j
	job := j.job
	return &job
}

func (q *MemoryQueue) Ack(_ context.Context, jobID string) error {
	q.mu.Lock()
	delete(q.inflight, jobID)
	q.mu.Unlock()
	return nil
}

// Len reports jobs that are ready or in flight.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready) + len(q.inflight)
}
