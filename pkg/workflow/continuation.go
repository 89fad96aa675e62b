package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/dukex/automation/pkg/models"
	"github.com/jonboulle/clockwork"
)

// Continuation is a pipeline suspended at a delayed action. The first element
// of Remaining is the action whose delay is pending.
type Continuation struct {
	ExecutionID string
	Workflow    *models.Workflow
	Remaining   []models.WorkflowAction
	Context     map[string]any
	Record      *models.WorkflowExecution
	ResumeAt    time.Time
}

// ResumeFunc continues a suspended pipeline.
type ResumeFunc func(ctx context.Context, continuation *Continuation)

// DelayScheduler runs continuations once their resume time is reached.
type DelayScheduler interface {
	Schedule(continuation *Continuation, resume ResumeFunc) error

	// Pending lists continuations that have not resumed yet.
	Pending() []*Continuation

	// Stop cancels every pending continuation and returns them.
	Stop() []*Continuation
}

// TimerScheduler keeps one clock timer per suspended execution, so no
// goroutine waits for the delay.
type TimerScheduler struct {
	clock   clockwork.Clock
	mu      sync.Mutex
	pending map[string]*pendingTimer
	stopped bool
}

type pendingTimer struct {
	continuation *Continuation
	timer        clockwork.Timer
}

func NewTimerScheduler(clock clockwork.Clock) *TimerScheduler {
	return &TimerScheduler{
		clock:   clock,
		pending: make(map[string]*pendingTimer),
	}
}

func (s *TimerScheduler) Schedule(continuation *Continuation, resume ResumeFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrDelaySchedulerStopped
	}

	delay := max(continuation.ResumeAt.Sub(s.clock.Now()), 0)
	id := continuation.ExecutionID

	timer := s.clock.AfterFunc(delay, func() {
		s.mu.Lock()
		_, ok := s.pending[id]
		delete(s.pending, id)
		s.mu.Unlock()

		if ok {
			resume(context.Background(), continuation)
		}
	})

	s.pending[id] = &pendingTimer{continuation: continuation, timer: timer}

	return nil
}

func (s *TimerScheduler) Pending() []*Continuation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Continuation, 0, len(s.pending))
	for _, p := range s.pending {
		out = append(out, p.continuation)
	}

	return out
}

func (s *TimerScheduler) Stop() []*Continuation {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true

	out := make([]*Continuation, 0, len(s.pending))
	for id, p := range s.pending {
		p.timer.Stop()
		out = append(out, p.continuation)
		delete(s.pending, id)
	}

	return out
}
