// Package scheduler runs collection cycles on a fixed period, one at a time.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/square-exporter/internal/obs"
)

// CycleFunc performs one collection cycle for the instant now.
type CycleFunc func(ctx context.Context, now time.Time) error

// Outcome values recorded per cycle.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePanic   = "panic"
)

// Status describes the most recent finished cycle.
type Status struct {
	Seq         uint64    `json:"seq"`
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	DurationMS  float64   `json:"duration_ms"`
	Outcome     string    `json:"outcome"`
	Error       string    `json:"error,omitempty"`
	LastSuccess time.Time `json:"last_success"`
}

// Options configures a Scheduler.
type Options struct {
	Interval time.Duration
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
	// Metrics is optional.
	Metrics *obs.Metrics
}

// Scheduler invokes a CycleFunc immediately and then once per Interval.
// Cycles never overlap: ticks that fire while a cycle is running are
// dropped. Errors and panics from a cycle are logged and the loop goes on.
type Scheduler struct {
	run  CycleFunc
	opts Options

	// cycleMu serialises cycles; seq is only advanced while it is held.
	cycleMu sync.Mutex
	seq     uint64

	mu     sync.Mutex
	status Status
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Scheduler.
func New(run CycleFunc, opts Options) *Scheduler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	return &Scheduler{run: run, opts: opts}
}

// Start begins the loop in the background.
func (s *Scheduler) Start(parent context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return
	}
	s.ctx, s.cancel = context.WithCancel(parent)
	s.done = make(chan struct{})
	go s.loop(s.ctx, s.done)
	obs.Logger.Info("scheduler_started", "interval_seconds", s.opts.Interval.Seconds())
}

// Stop cancels the loop and waits for an in-flight cycle to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Done is closed once the loop has exited.
func (s *Scheduler) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(s.opts.Interval)
	defer t.Stop()
	_ = s.RunNow(ctx)
	for {
		select {
		case <-ctx.Done():
			obs.Logger.Info("scheduler_stopped")
			return
		case <-t.C:
			_ = s.RunNow(ctx)
		}
	}
}

// RunNow executes one cycle synchronously and records its Status. It
// never panics and returns the cycle's error, if any.
func (s *Scheduler) RunNow(ctx context.Context) (err error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	s.seq++
	st := Status{Seq: s.seq, ID: uuid.NewString(), StartedAt: s.opts.Now()}
	log := obs.Logger.With("cycle_seq", st.Seq, "cycle_id", st.ID)
	cctx := obs.WithLogger(ctx, log)
	log.Info("cycle_started")

	start := time.Now()
	defer func() {
		outcome := OutcomeSuccess
		if r := recover(); r != nil {
			outcome = OutcomePanic
			err = fmt.Errorf("cycle panic: %v", r)
			log.Error("cycle_panic", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		} else if err != nil {
			outcome = OutcomeFailure
			log.Error("cycle_failed", "error", err)
		}
		elapsed := time.Since(start)
		st.FinishedAt = st.StartedAt.Add(elapsed)
		st.DurationMS = float64(elapsed.Microseconds()) / 1000.0
		st.Outcome = outcome
		if err != nil {
			st.Error = err.Error()
		}
		s.record(st)
		if m := s.opts.Metrics; m != nil {
			m.CyclesTotal.WithLabelValues(outcome).Inc()
			m.CycleDuration.Observe(elapsed.Seconds())
		}
		if outcome == OutcomeSuccess {
			log.Info("cycle_completed", "duration_ms", st.DurationMS)
		}
	}()

	return s.run(cctx, st.StartedAt)
}

func (s *Scheduler) record(st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.Outcome == OutcomeSuccess {
		st.LastSuccess = st.FinishedAt
	} else {
		st.LastSuccess = s.status.LastSuccess
	}
	s.status = st
}

// Status returns the most recent finished cycle; ok is false before the
// first cycle completes.
func (s *Scheduler) Status() (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.status.Seq != 0
}
