// Package generation multiplexes concurrent text-generation jobs onto one
// shared model runtime and exposes each job as an incremental stream.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Defaults applied by NewService.
const (
	DefaultMaxActiveJobs = 16
	DefaultJobTimeout    = 60 * time.Second
)

// Options configures a Service.
type Options struct {
	// MaxActiveJobs caps concurrently admitted jobs.
	MaxActiveJobs int
	// JobTimeout bounds the lifetime of a single job.
	JobTimeout time.Duration
}

// Service schedules jobs on a Runtime. One scheduler goroutine (Run) owns
// all job state; consumers only read their Stream. Without a BatchRuntime
// each sequence steps on its own goroutine, at most one step per job at a
// time, so a stalled sequence never holds back the others.
type Service struct {
	rt     Runtime
	batch  BatchRuntime
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	active  []*job
	slots   int
	nextSeq uint64
	closed  bool

	base    context.Context
	stopAll context.CancelFunc

	wake      chan struct{}
	stepped   chan stepDone
	done      chan struct{}
	halt      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	runOnce   sync.Once
}

// NewService creates a Service. Call Run to start scheduling.
func NewService(rt Runtime, opts Options, logger *slog.Logger) *Service {
	if opts.MaxActiveJobs <= 0 {
		opts.MaxActiveJobs = DefaultMaxActiveJobs
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = DefaultJobTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	base, stopAll := context.WithCancel(context.Background())
	s := &Service{
		rt:      rt,
		opts:    opts,
		logger:  logger,
		base:    base,
		stopAll: stopAll,
		wake:    make(chan struct{}, 1),
		stepped: make(chan stepDone),
		done:    make(chan struct{}),
		halt:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	if br, ok := rt.(BatchRuntime); ok {
		s.batch = br
	}
	return s
}

// Run drives the scheduler until ctx is done or Close is called. Jobs still
// active on return end with ErrServiceClosed.
func (s *Service) Run(ctx context.Context) error {
	started := false
	s.runOnce.Do(func() { started = true })
	if !started {
		return errors.New("generation service already running")
	}
	defer close(s.stopped)
	defer s.drain()
	defer close(s.halt)
	stop := context.AfterFunc(ctx, s.stopAll)
	defer stop()

	s.logger.Info("Generation scheduler started",
		"max_active_jobs", s.opts.MaxActiveJobs,
		"job_timeout", s.opts.JobTimeout,
		"batched", s.batch != nil)

	for {
		select {
		case <-s.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		ready := s.collect()
		if s.batch != nil && len(ready) > 0 {
			s.stepBatch(ctx, ready)
			continue
		}
		for _, j := range ready {
			if j.cancelled.Load() {
				s.advance(j, Token{}, nil)
				continue
			}
			go s.step(j)
		}

		select {
		case r := <-s.stepped:
			s.advance(r.j, r.tok, r.err)
		case <-s.wake:
		case <-s.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

type stepDone struct {
	j   *job
	tok Token
	err error
}

// step runs one Step for j and hands the result back to the scheduler.
func (s *Service) step(j *job) {
	tok, err := j.seq.Step(j.ctx)
	select {
	case s.stepped <- stepDone{j: j, tok: tok, err: err}:
	case <-s.halt:
		j.finish(ErrServiceClosed)
	}
}

// Close stops the scheduler and rejects further submissions.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
		s.stopAll()
	})

	ran := true
	s.runOnce.Do(func() { ran = false })
	if ran {
		<-s.stopped
	} else {
		s.drain()
	}
	return nil
}

// Submit admits a job and returns its stream.
func (s *Service) Submit(ctx context.Context, req Job) (*Stream, error) {
	if req.MaxNewTokens <= 0 {
		req.MaxNewTokens = DefaultMaxNewTokens
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %w", ErrRuntimeUnavailable, ErrServiceClosed)
	}
	if s.slots >= s.opts.MaxActiveJobs {
		n := s.slots
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %d jobs active", ErrRuntimeUnavailable, n)
	}
	s.slots++
	s.nextSeq++
	req.Seq = s.nextSeq
	s.mu.Unlock()

	seq, err := s.rt.Open(ctx, SequenceParams{
		Prompt:       req.Prompt,
		Stop:         req.Stop,
		MaxNewTokens: req.MaxNewTokens,
	})
	if err != nil {
		s.mu.Lock()
		s.slots--
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: open sequence: %w", ErrRuntimeUnavailable, err)
	}

	jctx, cancel := context.WithTimeout(s.base, s.opts.JobTimeout)
	j := &job{
		Job:      req,
		seq:      seq,
		ctx:      jctx,
		cancel:   cancel,
		deadline: time.Now().Add(s.opts.JobTimeout),
		frags:    make(chan Fragment, req.MaxNewTokens),
	}

	s.mu.Lock()
	if s.closed {
		s.slots--
		s.mu.Unlock()
		j.finish(ErrServiceClosed)
		return nil, fmt.Errorf("%w: %w", ErrRuntimeUnavailable, ErrServiceClosed)
	}
	s.active = append(s.active, j)
	s.mu.Unlock()

	s.logger.Debug("Generation job admitted", "job_id", j.ID, "seq", j.Seq, "max_new_tokens", j.MaxNewTokens)

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return &Stream{j: j, svc: s}, nil
}

// Invoke runs a job to completion and returns its trimmed output.
func (s *Service) Invoke(ctx context.Context, prompt string, stop []string, maxNewTokens int) (string, error) {
	stream, err := s.Submit(ctx, Job{Prompt: prompt, Stop: stop, MaxNewTokens: maxNewTokens})
	if err != nil {
		return "", err
	}
	defer stream.Cancel()

	var b strings.Builder
	for frag, err := range stream.All(ctx) {
		if err != nil {
			return "", fmt.Errorf("job %s: %w", stream.ID(), err)
		}
		b.WriteString(frag.Text)
	}
	return strings.TrimSpace(b.String()), nil
}

// Ready reports whether a new job would be admitted right now.
func (s *Service) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.slots < s.opts.MaxActiveJobs
}

// Ping checks the service and, when supported, the runtime behind it.
func (s *Service) Ping(ctx context.Context) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrServiceClosed
	}
	if p, ok := s.rt.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// ActiveJobs returns the number of admitted jobs that have not finished.
func (s *Service) ActiveJobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots
}

// collect expires overdue idle jobs and marks the remaining idle ones in
// flight. Jobs with a step already running are left alone; their context
// deadline ends the step.
func (s *Service) collect() []*job {
	now := time.Now()
	var expired, batch []*job

	s.mu.Lock()
	for _, j := range s.active {
		if j.inflight {
			continue
		}
		if now.After(j.deadline) {
			expired = append(expired, j)
			continue
		}
		j.inflight = true
		batch = append(batch, j)
	}
	for _, j := range expired {
		s.release(j)
	}
	s.mu.Unlock()

	for _, j := range expired {
		s.logger.Warn("Generation job timed out", "job_id", j.ID, "steps", j.steps)
		j.finish(ErrJobTimeout)
	}
	return batch
}

func (s *Service) stepBatch(ctx context.Context, batch []*job) {
	seqs := make([]Sequence, len(batch))
	for i, j := range batch {
		seqs[i] = j.seq
	}

	results := s.batch.StepBatch(ctx, seqs)
	for i, j := range batch {
		if i >= len(results) {
			s.advance(j, Token{}, errors.New("batch step returned too few results"))
			continue
		}
		s.advance(j, results[i].Token, results[i].Err)
	}
}

func (s *Service) advance(j *job, tok Token, err error) {
	s.mu.Lock()
	j.inflight = false
	cancelled := j.cancelled.Load()
	s.mu.Unlock()

	if cancelled {
		j.finish(ErrCancelled)
		return
	}

	if err != nil {
		switch {
		case s.base.Err() != nil:
			err = ErrServiceClosed
		case errors.Is(err, context.DeadlineExceeded) && j.ctx.Err() != nil:
			err = ErrJobTimeout
		default:
			err = fmt.Errorf("step: %w", err)
		}
		s.logger.Warn("Generation job failed", "job_id", j.ID, "error", err)
		s.complete(j, err)
		return
	}

	if j.consume(tok) {
		s.complete(j, nil)
	}
}

func (s *Service) complete(j *job, err error) {
	s.mu.Lock()
	s.release(j)
	s.mu.Unlock()

	j.finish(err)
	s.logger.Debug("Generation job finished", "job_id", j.ID, "steps", j.steps)
}

func (s *Service) cancel(j *job, cause error) {
	s.mu.Lock()
	if j.released {
		s.mu.Unlock()
		return
	}
	j.cancelled.Store(true)
	s.release(j)
	inflight := j.inflight
	s.mu.Unlock()

	// unblock a Step in progress; the scheduler finishes the job afterwards
	j.cancel()
	if !inflight {
		j.finish(cause)
	}
}

// release drops j from the active set. Caller holds s.mu.
func (s *Service) release(j *job) {
	if j.released {
		return
	}
	j.released = true
	s.slots--
	for i, a := range s.active {
		if a == j {
			s.active = append(s.active[:i], s.active[i+1:]...)
			break
		}
	}
}

func (s *Service) drain() {
	s.mu.Lock()
	s.closed = true
	pending := s.active
	s.active = nil
	for _, j := range pending {
		j.released = true
		s.slots--
	}
	s.mu.Unlock()

	for _, j := range pending {
		j.finish(ErrServiceClosed)
	}
}
