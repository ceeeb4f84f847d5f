package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/Nussi649/ShellyManager/internal/fetch"
	"github.com/Nussi649/ShellyManager/internal/infrastructure/logging"
)

// State is the scheduler's lifecycle state.
type State int

const (
	// Idle means no timer is armed.
	Idle State = iota
	// Armed means exactly one timer waits for the next boundary.
	Armed
)

// String returns the lower-case state name.
func (s State) String() string {
	if s == Armed {
		return "armed"
	}
	return "idle"
}

// MarshalText encodes the state as its name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a snapshot of the scheduler.
type Status struct {
	State      State      `json:"state"`
	NextFireAt *time.Time `json:"next_fire_at,omitempty"`
}

// CycleFunc runs one fetch cycle over the current set of meters.
type CycleFunc func(ctx context.Context) fetch.CycleResult

// Options configures a Scheduler.
type Options struct {
	// Cycle is run on every tick and once on Stop. Required.
	Cycle CycleFunc

	// Clock defaults to the system clock.
	Clock Clock

	Logger *logging.Logger

	// OnStatus, if set, is called after every state change or re-arm.
	OnStatus func(Status)
}

// Scheduler fires fetch cycles on quarter-hour boundaries.
//
// Thread Safety: All methods are safe for concurrent use.
type Scheduler struct {
	cycle    CycleFunc
	clock    Clock
	logger   *logging.Logger
	onStatus func(Status)

	// cycleMu is held for the whole of every cycle.
	cycleMu sync.Mutex

	mu     sync.Mutex
	state  State
	next   time.Time
	timer  Timer
	stopCh chan struct{}
	done   chan struct{}
	last   *fetch.CycleResult
}

// New creates an idle scheduler.
func New(opts Options) *Scheduler {
	s := &Scheduler{
		cycle:    opts.Cycle,
		clock:    opts.Clock,
		logger:   opts.Logger,
		onStatus: opts.OnStatus,
	}
	if s.clock == nil {
		s.clock = realClock{}
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	return s
}

// Start arms the timer for the next boundary.
//
// Returns the resulting status and true when the scheduler was idle, or
// the unchanged status and false when it was already armed. Cycles run
// with ctx; pass a context that outlives the caller's request.
func (s *Scheduler) Start(ctx context.Context) (Status, bool) {
	s.mu.Lock()
	if s.state == Armed {
		st := s.statusLocked()
		s.mu.Unlock()
		return st, false
	}

	now := s.clock.Now()
	s.state = Armed
	s.next = NextBoundary(now)
	s.timer = s.clock.NewTimer(Delay(now))
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	st := s.statusLocked()

	go s.loop(ctx, s.timer, s.stopCh, s.done)
	s.mu.Unlock()

	s.logger.Info("scheduler armed", "next_fire_at", *st.NextFireAt)
	s.notify(st)
	return st, true
}

// Stop runs one final cycle, disarms the timer and goes idle.
//
// A tick in progress is waited for first. Returns false, without running
// a cycle, when the scheduler was already idle.
func (s *Scheduler) Stop(ctx context.Context) bool {
	done, ok := s.stopLocked(ctx)
	if !ok {
		return false
	}

	// The loop may be blocked on cycleMu, so wait only after releasing it.
	<-done
	s.logger.Info("scheduler stopped")
	s.notify(s.Status())
	return true
}

func (s *Scheduler) stopLocked(ctx context.Context) (<-chan struct{}, bool) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	s.mu.Lock()
	armed := s.state == Armed
	s.mu.Unlock()
	if !armed {
		return nil, false
	}

	s.logger.Info("running final cycle before stop")
	s.runCycle(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.timer.Stop()
	close(s.stopCh)
	s.state = Idle
	s.next = time.Time{}
	s.timer = nil
	return s.done, true
}

// Status returns the current state and next fire time.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

// NextFire returns the armed timer's target, or ErrNotArmed.
func (s *Scheduler) NextFire() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Armed {
		return time.Time{}, ErrNotArmed
	}
	return s.next, nil
}

// LastCycle returns the result of the most recent cycle, if any ran.
func (s *Scheduler) LastCycle() (fetch.CycleResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return fetch.CycleResult{}, false
	}
	return *s.last, true
}

func (s *Scheduler) statusLocked() Status {
	st := Status{State: s.state}
	if s.state == Armed {
		next := s.next
		st.NextFireAt = &next
	}
	return st
}

// loop waits for each tick, runs the cycle and re-arms. It exits when
// stopCh is closed or when a Stop has already moved the state to Idle.
func (s *Scheduler) loop(ctx context.Context, timer Timer, stopCh, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-stopCh:
			return
		case <-timer.C():
		}

		s.cycleMu.Lock()
		if !s.stillArmed(stopCh) {
			s.cycleMu.Unlock()
			return
		}

		s.runCycle(ctx)

		s.mu.Lock()
		now := s.clock.Now()
		s.next = NextBoundary(now)
		timer = s.clock.NewTimer(Delay(now))
		s.timer = timer
		st := s.statusLocked()
		s.mu.Unlock()
		s.cycleMu.Unlock()

		s.logger.Debug("scheduler re-armed", "next_fire_at", st.NextFireAt)
		s.notify(st)
	}
}

func (s *Scheduler) stillArmed(stopCh chan struct{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == Armed && s.stopCh == stopCh
}

// runCycle runs one cycle and records its result. The caller holds cycleMu.
func (s *Scheduler) runCycle(ctx context.Context) {
	res := s.cycle(ctx)

	s.mu.Lock()
	s.last = &res
	s.mu.Unlock()
}

func (s *Scheduler) notify(st Status) {
	if s.onStatus != nil {
		s.onStatus(st)
	}
}
