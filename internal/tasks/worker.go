// README: Worker pulls tasks from the queue and runs the registered handler per task type.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Handler func(ctx context.Context, t Task) error

// Observer receives one call per finished task; outcome is "ok", "failed" or "dropped".
type Observer interface {
	TaskDone(typ Type, outcome string, took time.Duration)
}

type WorkerConfig struct {
	Threads      int
	TaskTimeout  time.Duration
	ErrorBackoff time.Duration
}

type Worker struct {
	queue    Queue
	cfg      WorkerConfig
	log      *zap.Logger
	observer Observer
	handlers map[Type]Handler
}

func NewWorker(queue Queue, cfg WorkerConfig, log *zap.Logger, observer Observer) *Worker {
	if cfg.Threads <= 0 {
		cfg.Threads = 1
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 15 * time.Second
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = time.Second
	}
	return &Worker{
		queue:    queue,
		cfg:      cfg,
		log:      log,
		observer: observer,
		handlers: make(map[Type]Handler),
	}
}

// Handle registers h for typ. It must be called before Run.
func (w *Worker) Handle(typ Type, h Handler) {
	w.handlers[typ] = h
}

// Run consumes until ctx is cancelled, then drains the jobs already pulled and returns.
func (w *Worker) Run(ctx context.Context) {
	jobs := make(chan *Job)

	var pullers sync.WaitGroup
	for i := 0; i < w.cfg.Threads; i++ {
		pullers.Add(1)
		go func() {
			defer pullers.Done()
			w.pull(ctx, jobs)
		}()
	}

	var processors sync.WaitGroup
	for i := 0; i < w.cfg.Threads; i++ {
		processors.Add(1)
		go func() {
			defer processors.Done()
			for job := range jobs {
				w.Process(context.WithoutCancel(ctx), job)
			}
		}()
	}

	pullers.Wait()
	close(jobs)
	processors.Wait()
	w.log.Info("task worker stopped")
}

func (w *Worker) pull(ctx context.Context, jobs chan<- *Job) {
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := w.queue.Consume(ctx)
		if err != nil {
			w.log.Warn("consume failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.cfg.ErrorBackoff):
			}
			continue
		}
		if job == nil {
			continue
		}
		// Once pulled, a job is always handed over so shutdown does not strand it until its TTR.
		jobs <- job
	}
}

// Process runs one job. Undecodable and unknown tasks are acked and dropped; a failed
// handler leaves the job unacked so the queue redelivers it.
func (w *Worker) Process(ctx context.Context, job *Job) {
	start := time.Now()

	var t Task
	if err := json.Unmarshal(job.Body, &t); err != nil {
		w.log.Error("drop undecodable task", zap.String("job_id", job.ID), zap.Error(err))
		w.ack(ctx, job.ID)
		w.done("", "dropped", start)
		return
	}
	h, ok := w.handlers[t.Type]
	if !ok {
		w.log.Warn("drop task without handler", zap.String("job_id", job.ID), zap.String("type", string(t.Type)))
		w.ack(ctx, job.ID)
		w.done(t.Type, "dropped", start)
		return
	}

	hctx, cancel := context.WithTimeout(ctx, w.cfg.TaskTimeout)
	defer cancel()
	err := h(hctx, t)
	if errors.Is(err, ErrUndecodable) {
		w.log.Error("drop task with bad payload", zap.String("job_id", job.ID), zap.String("type", string(t.Type)), zap.Error(err))
		w.ack(ctx, job.ID)
		w.done(t.Type, "dropped", start)
		return
	}
	if err != nil {
		w.log.Error("task failed",
			zap.String("job_id", job.ID),
			zap.String("task_id", t.ID),
			zap.String("type", string(t.Type)),
			zap.Error(err),
		)
		w.done(t.Type, "failed", start)
		return
	}
	w.ack(ctx, job.ID)
	w.done(t.Type, "ok", start)
}

func (w *Worker) ack(ctx context.Context, jobID string) {
	if err := w.queue.Ack(ctx, jobID); err != nil {
		w.log.Warn("ack failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (w *Worker) done(typ Type, outcome string, start time.Time) {
	if w.observer != nil {
		w.observer.TaskDone(typ, outcome, time.Since(start))
	}
}
