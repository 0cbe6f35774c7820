package admission

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/agentmesh/substrate/config"
	"github.com/agentmesh/substrate/observability"
	"github.com/agentmesh/substrate/types"
)

// ema is a simple exponential moving average, used for the scheduler's wait-
// and processing-time stats (spec.md §4.2).
type ema struct {
	mu          sync.Mutex
	value       float64
	alpha       float64
	initialized bool
}

func newEMA(alpha float64) *ema { return &ema{alpha: alpha} }

func (e *ema) update(sample float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		e.value = sample
		e.initialized = true
		return
	}
	e.value = e.alpha*sample + (1-e.alpha)*e.value
}

func (e *ema) get() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value
}

// Status is a point-in-time snapshot of scheduler state.
type Status struct {
	QueueLength       int
	InFlight          int
	MaxConcurrent     int
	Paused            bool
	TotalProcessed    int64
	TotalFailed       int64
	AvgWaitMillis     float64
	AvgProcessMillis  float64
}

// QueuedTaskInfo describes one task still waiting in the heap, for details().
type QueuedTaskInfo struct {
	ID           string
	OriginatorID string
	Priority     types.Priority
	Waiting      time.Duration
}

// Scheduler is the Admission Queue.
type Scheduler struct {
	cfg  *config.Config
	sink observability.Sink
	seq  *types.Sequencer
	bo   *jitteredBackoff

	queueMu sync.Mutex
	queue   *taskQueue

	sem chan struct{}

	pauseMu sync.Mutex
	pauseCh chan struct{}

	wake   chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup

	inFlight       atomic.Int64
	totalProcessed atomic.Int64
	totalFailed    atomic.Int64
	waitEMA        *ema
	procEMA        *ema
}

// New constructs a Scheduler bounded at cfg.MaxConcurrentAdmissions.
func New(cfg *config.Config, sink observability.Sink) *Scheduler {
	if sink == nil {
		sink = observability.NopSink{}
	}
	max := cfg.MaxConcurrentAdmissions
	if max <= 0 {
		max = 1
	}
	s := &Scheduler{
		cfg:     cfg,
		sink:    sink,
		seq:     types.NewSequencer(),
		bo:      newJitteredBackoff(time.Now().UnixNano()),
		queue:   newTaskQueue(),
		sem:     make(chan struct{}, max),
		wake:    make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		waitEMA: newEMA(0.2),
		procEMA: newEMA(0.2),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Close stops the dispatcher. Queued tasks are abandoned and their Handles
// never receive a Result; Close waits for in-flight producers to return.
func (s *Scheduler) Close() {
	close(s.stopCh)
	s.wg.Wait()
}

// Submit admits task for scheduling and returns a Handle for its outcome.
func (s *Scheduler) Submit(task Task) (*Handle, error) {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.Producer == nil {
		return nil, types.NewError(types.ErrValidationError, "task producer is required").WithRetryable(false)
	}

	h := newHandle()
	e := &taskEnvelope{task: task, seq: s.seq.Next(), enqueuedAt: time.Now(), handle: h}

	s.queueMu.Lock()
	s.queue.push(e)
	s.queueMu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}

	s.sink.Emit("task_enqueued", map[string]any{"id": task.ID, "priority": task.Priority.String()})
	return h, nil
}

// Pause stops the dispatcher from admitting new tasks; in-flight tasks run
// to completion.
func (s *Scheduler) Pause() {
	s.pauseMu.Lock()
	defer s.pauseMu.Unlock()
	if s.pauseCh == nil {
		s.pauseCh = make(chan struct{})
	}
}

// Resume releases a Pause.
func (s *Scheduler) Resume() {
	s.pauseMu.Lock()
	defer s.pauseMu.Unlock()
	if s.pauseCh != nil {
		close(s.pauseCh)
		s.pauseCh = nil
	}
}

func (s *Scheduler) waitIfPaused() bool {
	s.pauseMu.Lock()
	ch := s.pauseCh
	s.pauseMu.Unlock()
	if ch == nil {
		return true
	}
	select {
	case <-ch:
		return true
	case <-s.stopCh:
		return false
	}
}

// SetPriorityForUser retroactively reprioritizes every queued task submitted
// by originatorID, returning how many were changed.
func (s *Scheduler) SetPriorityForUser(originatorID string, p types.Priority) int {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	return s.queue.reprioritizeOriginator(originatorID, p)
}

func (s *Scheduler) run() {
	defer s.wg.Done()
	for {
		if !s.waitIfPaused() {
			return
		}

		s.queueMu.Lock()
		e := s.queue.pop()
		s.queueMu.Unlock()

		if e == nil {
			select {
			case <-s.wake:
				continue
			case <-s.stopCh:
				return
			}
		}

		select {
		case s.sem <- struct{}{}:
		case <-s.stopCh:
			return
		}

		s.waitEMA.update(float64(time.Since(e.enqueuedAt).Milliseconds()))

		s.wg.Add(1)
		go func(e *taskEnvelope) {
			defer s.wg.Done()
			defer func() { <-s.sem }()
			s.execute(e)
		}(e)
	}
}

func (s *Scheduler) execute(e *taskEnvelope) {
	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	deadline := 2 * e.task.EstimatedDuration
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()

	start := time.Now()
	value, err := e.task.Producer(ctx)
	s.procEMA.update(float64(time.Since(start).Milliseconds()))

	if err == nil {
		s.totalProcessed.Add(1)
		s.sink.Emit("task_completed", map[string]any{"id": e.task.ID})
		e.handle.done <- Result{Value: value}
		return
	}

	maxRetries := e.task.MaxRetries
	if maxRetries == 0 {
		maxRetries = s.cfg.MaxRetries
	}
	// Plain errors are retried by default; only a *types.Error can opt out.
	retryable := types.CodeOf(err) == "" || types.IsRetryable(err)

	if retryable && e.attempt < maxRetries {
		e.attempt++
		e.lastErr = err
		delay := s.bo.delay(e.attempt)
		time.AfterFunc(delay, func() {
			e.enqueuedAt = time.Now()
			s.queueMu.Lock()
			s.queue.push(e)
			s.queueMu.Unlock()
			select {
			case s.wake <- struct{}{}:
			default:
			}
		})
		s.sink.Emit("task_retry_scheduled", map[string]any{"id": e.task.ID, "attempt": e.attempt})
		return
	}

	s.totalFailed.Add(1)
	s.sink.Emit("task_failed", map[string]any{"id": e.task.ID, "error": err.Error()})
	e.handle.done <- Result{Err: err}
}

// Status returns a snapshot of scheduler state.
func (s *Scheduler) Status() Status {
	s.queueMu.Lock()
	qlen := s.queue.len()
	s.queueMu.Unlock()

	s.pauseMu.Lock()
	paused := s.pauseCh != nil
	s.pauseMu.Unlock()

	return Status{
		QueueLength:      qlen,
		InFlight:         int(s.inFlight.Load()),
		MaxConcurrent:    cap(s.sem),
		Paused:           paused,
		TotalProcessed:   s.totalProcessed.Load(),
		TotalFailed:      s.totalFailed.Load(),
		AvgWaitMillis:    s.waitEMA.get(),
		AvgProcessMillis: s.procEMA.get(),
	}
}

// Details lists every task currently waiting in the heap.
func (s *Scheduler) Details() []QueuedTaskInfo {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	now := time.Now()
	snap := s.queue.snapshot()
	out := make([]QueuedTaskInfo, len(snap))
	for i, e := range snap {
		out[i] = QueuedTaskInfo{
			ID:           e.task.ID,
			OriginatorID: e.task.OriginatorID,
			Priority:     e.task.Priority,
			Waiting:      now.Sub(e.enqueuedAt),
		}
	}
	return out
}
