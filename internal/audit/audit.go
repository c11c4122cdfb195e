// Package audit records administrative and balance-affecting actions.
// Emission is fire-and-forget: a slow or failing sink never blocks or fails the ledger.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/richardliu001/ledger-core/internal/metrics"
	"go.uber.org/zap"
)

const (
	ActionDepositApproved    = "deposit_approved"
	ActionDepositRejected    = "deposit_rejected"
	ActionWithdrawalApproved = "withdrawal_approved"
	ActionWithdrawalRejected = "withdrawal_rejected"
	ActionStakeOpened        = "stake_opened"
	ActionUnstaked           = "unstaked"
	ActionInvestmentOpened   = "investment_opened"
	ActionInvestmentClosed   = "investment_completed"
)

type Event struct {
	UserID    string                 `json:"user_id"`
	Action    string                 `json:"action"`
	Details   map[string]interface{} `json:"details,omitempty"`
	ActorID   string                 `json:"actor_id,omitempty"`
	IP        string                 `json:"ip,omitempty"`
	UserAgent string                 `json:"user_agent,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

type Emitter interface {
	Emit(ctx context.Context, e Event)
}

// Sink delivers one event to a backend.
type Sink interface {
	Name() string
	Write(ctx context.Context, e Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Emit(context.Context, Event) {}

// AsyncEmitter buffers events and fans them out to sinks on a worker goroutine.
// When the buffer is full the event is dropped with a warning.
type AsyncEmitter struct {
	sinks   []Sink
	log     *zap.SugaredLogger
	ch      chan Event
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewAsyncEmitter(logger *zap.SugaredLogger, buffer int, sinks ...Sink) *AsyncEmitter {
	if buffer <= 0 {
		buffer = 1024
	}
	e := &AsyncEmitter{
		sinks:   sinks,
		log:     logger,
		ch:      make(chan Event, buffer),
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *AsyncEmitter) Emit(_ context.Context, ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	select {
	case e.ch <- ev:
	default:
		metrics.AuditDropped.Inc()
		e.log.Warnw("audit buffer full, dropping event", "action", ev.Action, "user_id", ev.UserID)
	}
}

func (e *AsyncEmitter) run() {
	defer close(e.done)
	for ev := range e.ch {
		for _, s := range e.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
			if err := s.Write(ctx, ev); err != nil {
				e.log.Warnw("audit sink failed", "sink", s.Name(), "action", ev.Action, "err", err)
			}
			cancel()
		}
	}
}

// Close stops accepting events and waits until the buffer is drained.
func (e *AsyncEmitter) Close() {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
	e.mu.Unlock()
	<-e.done
}
