// Package bus implements the Message Bus (spec.md §4.1): a priority-ordered,
// best-effort delivery fabric between named participants, with per-
// participant circuit breaking, bounded retry with backoff, and a
// dead-letter log for terminal failures.
//
// Concurrency model (spec.md §5): a single dispatcher goroutine drains the
// priority holding area and hands each envelope to its own delivery
// goroutine, so one slow or suspended handler never blocks dispatch of the
// next message. The dispatcher itself never suspends inside a heap
// operation — retries are scheduled out-of-line with time.AfterFunc and
// re-enter the holding area only once their backoff has elapsed.
package bus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/agentmesh/substrate/config"
	"github.com/agentmesh/substrate/observability"
	"github.com/agentmesh/substrate/types"
)

// Stats is a point-in-time snapshot of bus state, for operator inspection.
type Stats struct {
	QueueLength      int
	SubscriberCount  int
	DeadLetterCount  int
	ParticipantState map[string]string
	Processing       bool
}

// Bus is the Message Bus. The zero value is not usable; construct with New.
type Bus struct {
	cfg  *config.Config
	sink observability.Sink
	seq  *types.Sequencer

	mu            sync.RWMutex
	subscriptions map[string][]Handler
	routingRules  map[types.MessageKind][]string

	breakersMu sync.Mutex
	breakers   map[string]*participantBreaker

	holdingMu sync.Mutex
	holding   *holdingArea

	deadLetters *deadLetterQueue

	wake    chan struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
}

// New constructs a Bus from cfg. A nil sink defaults to observability.NopSink{}.
func New(cfg *config.Config, sink observability.Sink) *Bus {
	if sink == nil {
		sink = observability.NopSink{}
	}
	b := &Bus{
		cfg:           cfg,
		sink:          sink,
		seq:           types.NewSequencer(),
		subscriptions: make(map[string][]Handler),
		routingRules:  make(map[types.MessageKind][]string),
		breakers:      make(map[string]*participantBreaker),
		holding:       newHoldingArea(),
		deadLetters:   newDeadLetterQueue(1000),
		wake:          make(chan struct{}, 1),
		stopCh:        make(chan struct{}),
	}
	b.wg.Add(1)
	go b.run()
	b.started = true
	return b
}

// Close stops the dispatcher. Envelopes still in the holding area or a
// pending retry timer are abandoned.
func (b *Bus) Close() {
	if !b.started {
		return
	}
	close(b.stopCh)
	b.wg.Wait()
}

// Subscribe registers handler to receive messages addressed to participant.
// Idempotent for pointer-backed handlers already subscribed to participant;
// see Handler's doc comment for the comparability caveat.
func (b *Bus) Subscribe(participant string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, h := range b.subscriptions[participant] {
		if safeHandlerEqual(h, handler) {
			return
		}
	}
	b.subscriptions[participant] = append(b.subscriptions[participant], handler)
	b.sink.Emit("participant_subscribed", map[string]any{
		"participant": participant, "handlerCount": len(b.subscriptions[participant]),
	})
}

// Unsubscribe removes handler from participant's delivery set, if present.
// When the set becomes empty, the participant's circuit breaker is
// destroyed along with it (Data Model: "Circuit Breaker State ... destroyed
// with last unsubscribe").
func (b *Bus) Unsubscribe(participant string, handler Handler) {
	b.mu.Lock()
	handlers := b.subscriptions[participant]
	emptied := false
	for i, h := range handlers {
		if safeHandlerEqual(h, handler) {
			handlers = append(handlers[:i], handlers[i+1:]...)
			if len(handlers) == 0 {
				delete(b.subscriptions, participant)
				emptied = true
			} else {
				b.subscriptions[participant] = handlers
			}
			b.sink.Emit("participant_unsubscribed", map[string]any{"participant": participant})
			break
		}
	}
	b.mu.Unlock()

	if emptied {
		b.breakersMu.Lock()
		delete(b.breakers, participant)
		b.breakersMu.Unlock()
	}
}

// SetRoutingRule replaces the participant set a broadcast of kind fans out
// to. An empty or never-set rule falls back to every currently subscribed
// participant (spec.md §4.1).
func (b *Bus) SetRoutingRule(kind types.MessageKind, participants ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.routingRules[kind] = append([]string(nil), participants...)
}

// Publish enqueues msg for delivery. Validation failures are returned
// synchronously and never enter the holding area.
func (b *Bus) Publish(msg types.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	b.holdingMu.Lock()
	if b.cfg.MaxQueueSize > 0 && b.holding.len() >= b.cfg.MaxQueueSize {
		b.holdingMu.Unlock()
		return types.NewError(types.ErrQueueOverflow, "bus holding area is full").
			WithContext("max_queue_size", b.cfg.MaxQueueSize).WithRetryable(false)
	}
	b.holdingMu.Unlock()

	e := newEnvelope(msg, b.seq.Next(), time.Now())
	b.enqueue(e)

	b.holdingMu.Lock()
	qlen := b.holding.len()
	b.holdingMu.Unlock()

	b.sink.Emit("message_enqueued", map[string]any{
		"id": msg.ID, "recipient": msg.Recipient, "queueSize": qlen, "priority": msg.Priority.String(),
	})
	return nil
}

// enqueue pushes e into the holding area unconditionally — used both for
// first-time publish (already bound-checked above) and for retry
// re-enqueue, which must never be rejected by the same hard bound.
func (b *Bus) enqueue(e *envelope) {
	b.holdingMu.Lock()
	b.holding.push(e)
	b.holdingMu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Bus) run() {
	defer b.wg.Done()
	for {
		b.holdingMu.Lock()
		e := b.holding.pop()
		b.holdingMu.Unlock()

		if e == nil {
			select {
			case <-b.wake:
				continue
			case <-b.stopCh:
				return
			}
		}

		b.wg.Add(1)
		go func(e *envelope) {
			defer b.wg.Done()
			b.deliver(e)
		}(e)

		select {
		case <-b.stopCh:
			return
		default:
		}
	}
}

func (b *Bus) deliver(e *envelope) {
	if e.msg.Recipient == types.RecipientControl {
		b.sink.Emit("control_message", map[string]any{"id": e.msg.ID, "message": e.msg.Payload})
		return
	}

	timeout := e.msg.Timeout
	if timeout <= 0 {
		timeout = b.cfg.DefaultHandlerTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	var err error
	if e.msg.Recipient == types.RecipientBroadcast {
		err = b.deliverBroadcast(ctx, e)
	} else {
		err = b.deliverPointToPoint(ctx, e)
	}

	if err == nil {
		b.sink.Emit("message_delivered", map[string]any{
			"id": e.msg.ID, "recipient": e.msg.Recipient, "elapsedMs": time.Since(start).Milliseconds(),
		})
		return
	}

	if e.msg.Recipient == types.RecipientBroadcast || !b.retryable(err) || e.attempt >= b.cfg.MaxRetries {
		b.deadLetter(e, err)
		return
	}

	e.retry(err, time.Now())
	delay := backoffDelay(e.attempt)
	time.AfterFunc(delay, func() { b.enqueue(e) })
}

func (b *Bus) retryable(err error) bool {
	if types.CodeOf(err) != "" {
		return types.IsRetryable(err)
	}
	return !types.IsNonRetryableText(err.Error())
}

func (b *Bus) deadLetter(e *envelope, err error) {
	b.deadLetterMessage(e.msg, e.attempt+1, err)
}

// deadLetterMessage appends msg to the dead-letter log, honoring the
// EnableDeadLetter guard — shared by point-to-point exhaustion and
// per-recipient broadcast failures alike, per spec.md §7: "If false,
// terminal failures are discarded" applies uniformly regardless of
// delivery mode.
func (b *Bus) deadLetterMessage(msg types.Message, attempts int, err error) {
	if !b.cfg.EnableDeadLetter {
		return
	}
	b.deadLetters.add(DeadLetter{Message: msg, Attempts: attempts, LastErr: err, DiedAt: time.Now()})
	b.sink.Emit("message_dead_lettered", map[string]any{
		"id": msg.ID, "recipient": msg.Recipient, "error": err.Error(), "dequeLength": b.deadLetters.len(),
	})
}

// deliverPointToPoint gates delivery through the recipient's circuit
// breaker and, when multiple handlers are subscribed to the same
// participant, delivers to exactly one — the first subscribed — for a
// deterministic single-handler outcome.
func (b *Bus) deliverPointToPoint(ctx context.Context, e *envelope) error {
	handlers := b.handlersFor(e.msg.Recipient)
	if len(handlers) == 0 {
		return types.NewError(types.ErrParticipantNotFound, "no subscription for recipient").
			WithContext("recipient", e.msg.Recipient).WithRetryable(false)
	}

	breaker := b.breakerFor(e.msg.Recipient)
	if !breaker.allow(time.Now()) {
		return types.NewError(types.ErrBreakerOpen, "circuit breaker open").
			WithContext("recipient", e.msg.Recipient)
	}

	err := handlers[0].Handle(ctx, e.msg)
	if err != nil {
		breaker.recordFailure(time.Now())
		b.sink.Emit("message_delivery_failed", map[string]any{
			"id": e.msg.ID, "recipient": e.msg.Recipient, "attempt": e.attempt, "error": err.Error(),
		})
		return err
	}
	breaker.recordSuccess()
	return nil
}

// deliverBroadcast fans out to every subscribed participant concurrently,
// best-effort: a failing participant is dead-lettered independently and
// never blocks delivery to the rest. When a participant has more than one
// handler subscribed, they race and the first success wins.
func (b *Bus) deliverBroadcast(ctx context.Context, e *envelope) error {
	targets := b.broadcastTargets(e.msg.Kind)

	if len(targets) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(context.Background())
	for participant, handlers := range targets {
		participant, handlers := participant, handlers
		g.Go(func() error {
			if err := b.raceHandlers(gctx, ctx, handlers, e.msg); err != nil {
				b.sink.Emit("message_delivery_failed", map[string]any{
					"id": e.msg.ID, "recipient": participant, "error": err.Error(),
				})
				recipientCopy := e.msg
				recipientCopy.Recipient = participant
				b.deadLetterMessage(recipientCopy, 1, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return nil
}

// raceHandlers invokes every handler concurrently and returns nil on the
// first success, or a combined error once all have failed.
func (b *Bus) raceHandlers(parent, deadline context.Context, handlers []Handler, msg types.Message) error {
	if len(handlers) == 1 {
		return handlers[0].Handle(deadline, msg)
	}

	type result struct{ err error }
	results := make(chan result, len(handlers))
	for _, h := range handlers {
		h := h
		go func() {
			results <- result{h.Handle(deadline, msg)}
		}()
	}

	var lastErr error
	for i := 0; i < len(handlers); i++ {
		r := <-results
		if r.err == nil {
			return nil
		}
		lastErr = r.err
	}
	return lastErr
}

// broadcastTargets resolves the participant set a broadcast of kind fans out
// to: the routing table's set for kind if one was configured and non-empty,
// restricted to participants currently subscribed; otherwise every
// currently subscribed participant.
func (b *Bus) broadcastTargets(kind types.MessageKind) map[string][]Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	targets := make(map[string][]Handler, len(b.subscriptions))
	if rule, ok := b.routingRules[kind]; ok && len(rule) > 0 {
		for _, p := range rule {
			if h, exists := b.subscriptions[p]; exists && len(h) > 0 {
				targets[p] = append([]Handler(nil), h...)
			}
		}
		return targets
	}
	for p, h := range b.subscriptions {
		targets[p] = append([]Handler(nil), h...)
	}
	return targets
}

func (b *Bus) handlersFor(participant string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Handler(nil), b.subscriptions[participant]...)
}

func (b *Bus) breakerFor(participant string) *participantBreaker {
	b.breakersMu.Lock()
	defer b.breakersMu.Unlock()
	br, ok := b.breakers[participant]
	if !ok {
		br = newParticipantBreaker(b.cfg.BreakerFailureThreshold, b.cfg.BreakerRecoveryInterval)
		b.breakers[participant] = br
	}
	return br
}

// Stats returns a snapshot of the bus's current state.
func (b *Bus) Stats() Stats {
	b.holdingMu.Lock()
	qlen := b.holding.len()
	b.holdingMu.Unlock()

	b.mu.RLock()
	subs := 0
	for _, h := range b.subscriptions {
		subs += len(h)
	}
	b.mu.RUnlock()

	b.breakersMu.Lock()
	states := make(map[string]string, len(b.breakers))
	for p, br := range b.breakers {
		states[p] = br.stateString()
	}
	b.breakersMu.Unlock()

	return Stats{
		QueueLength:      qlen,
		SubscriberCount:  subs,
		DeadLetterCount:  b.deadLetters.len(),
		ParticipantState: states,
		Processing:       qlen > 0,
	}
}

// DeadLetters returns a snapshot of the dead-letter log.
func (b *Bus) DeadLetters() []DeadLetter {
	return b.deadLetters.snapshot()
}
