package engine

import (
	"context"
	"sync"
	"time"

	"github.com/ofircohen205/aura-sub001/apierr"
	"github.com/ofircohen205/aura-sub001/logging"
)

// Runtime drives Jobs through their kind's Graph using a pool of
// goroutines, one per configured (kind, worker-slot) pair.
//
// A worker never blocks the whole pool while a Job is suspended: a node
// awaiting I/O just occupies its own goroutine, leaving every other
// worker free to dequeue and run other Jobs, which is what "the runtime
// can run other jobs while one is suspended" means at the process level.
type Runtime struct {
	queue       *Queue
	checkpoints *CheckpointStore
	graphs      map[string]*Graph
	logger      *logging.ContextLogger

	mu        sync.Mutex
	cancels   map[string]context.CancelFunc
	stop      chan struct{}
	wg        sync.WaitGroup
	grace     time.Duration
}

// NewRuntime creates a Runtime. graphs maps a Job Kind to the static
// Graph that drives it; Start launches workers only for the kinds in
// graphs, so Jobs of any other Kind are never dequeued. NewRuntime does
// not call Graph.Validate.
func NewRuntime(queue *Queue, checkpoints *CheckpointStore, graphs map[string]*Graph, grace time.Duration, logger *logging.ContextLogger) *Runtime {
	return &Runtime{
		queue:       queue,
		checkpoints: checkpoints,
		graphs:      graphs,
		logger:      logger,
		cancels:     make(map[string]context.CancelFunc),
		stop:        make(chan struct{}),
		grace:       grace,
	}
}

// Enqueue admits job onto its kind's queue for a worker to pick up.
func (r *Runtime) Enqueue(ctx context.Context, job Job) error {
	return r.queue.Enqueue(ctx, job)
}

// Start launches workersPerKind goroutines per configured Graph kind.
func (r *Runtime) Start(workersPerKind int) {
	for kind := range r.graphs {
		for i := 0; i < workersPerKind; i++ {
			r.wg.Add(1)
			go r.workerLoop(kind)
		}
	}
}

// Stop signals every worker to exit after its current Job and waits for
// them to drain.
func (r *Runtime) Stop() {
	close(r.stop)
	r.wg.Wait()
}

// Cancel requests cooperative cancellation of a running Job. The worker
// driving it observes this at the node's own suspension points and has
// up to the configured grace period to unwind before the worker is
// reclaimed regardless.
func (r *Runtime) Cancel(jobID string) {
	r.mu.Lock()
	cancel, ok := r.cancels[jobID]
	r.mu.Unlock()
	if ok {
		cancel()
	}
}

func (r *Runtime) workerLoop(kind string) {
	defer r.wg.Done()
	log := r.logger.WithField("kind", kind)

	for {
		select {
		case <-r.stop:
			return
		default:
		}

		job, err := r.queue.Dequeue(context.Background(), kind, 5*time.Second)
		if err != nil {
			log.WithError(err).Warn("dequeue failed")
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}

		r.runJob(kind, job)
	}
}

func (r *Runtime) runJob(kind string, job *Job) {
	log := r.logger.WithField("job_id", job.ID)
	graph, ok := r.graphs[kind]
	if !ok {
		log.Errorf("no graph registered for kind %q", kind)
		_ = r.queue.FailJob(context.Background(), *job, false)
		return
	}

	deadline := time.Now().Add(10 * time.Minute)
	if err := r.queue.MarkProcessing(context.Background(), job.ID, deadline); err != nil {
		log.WithError(err).Warn("failed to mark job processing")
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.cancels[job.ID] = cancel
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.cancels, job.ID)
		r.mu.Unlock()
		cancel()
	}()

	state := NewState(job)
	if cp, err := r.checkpoints.Load(ctx, job.ID); err == nil && cp != nil {
		state.Set("__resume_node", cp.Node)
	}

	done := make(chan error, 1)
	go func() { done <- r.drive(ctx, graph, state, log) }()
	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		state.Cancel()
		select {
		case err = <-done:
		case <-time.After(r.grace):
			err = apierr.Cancelled("job %s did not stop within the cancellation grace period", job.ID)
		}
	}
	if err != nil {
		if apierr.KindOf(err) == apierr.KindTransient {
			log.WithError(err).Warn("job failed transiently, requeueing")
			_ = r.queue.FailJob(context.Background(), *job, true)
			return
		}
		log.WithError(err).Error("job failed")
		_ = r.queue.FailJob(context.Background(), *job, false)
		return
	}

	_ = r.checkpoints.Clear(context.Background(), job.ID)
	if err := r.queue.CompleteJob(context.Background(), job.ID); err != nil {
		log.WithError(err).Warn("failed to mark job complete")
	}
}

// drive walks the graph from Start (or a resumed checkpoint) to
// Terminal, checkpointing before every Externalizing node and retrying
// per the node's RetryConfig.
func (r *Runtime) drive(ctx context.Context, graph *Graph, state *State, log *logging.ContextLogger) error {
	current := graph.Start
	if resume, ok := state.Get("__resume_node"); ok {
		if id, ok := resume.(NodeID); ok {
			current = id
		}
	}

	for current != Terminal {
		if state.Cancelled() {
			return apierr.Cancelled("job %s cancelled", state.Job.ID)
		}

		node, ok := graph.Nodes[current]
		if !ok {
			return apierr.Internal(nil)
		}

		if node.Externalizing {
			if err := r.checkpoints.Save(ctx, state.Job.ID, current, state.Values); err != nil {
				log.WithError(err).Warn("checkpoint save failed")
			}
		}

		var next NodeID
		retryCfg := node.Retry
		if retryCfg.MaxAttempts == 0 {
			retryCfg = RetryConfig{MaxAttempts: 1}
		}

		runErr := Retry(ctx, retryCfg, func(ctx context.Context) error {
			n, err := node.Run(ctx, state)
			if err != nil {
				return err
			}
			next = n
			return nil
		})
		if runErr != nil {
			return runErr
		}

		current = next
	}

	return nil
}
