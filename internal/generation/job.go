package generation

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrRuntimeUnavailable is returned when a job cannot be admitted.
	ErrRuntimeUnavailable = errors.New("generation runtime unavailable")

	// ErrJobTimeout ends a stream whose job outlived Options.JobTimeout.
	ErrJobTimeout = errors.New("generation job timed out")

	// ErrCancelled ends a stream after Stream.Cancel.
	ErrCancelled = errors.New("generation job cancelled")

	// ErrServiceClosed ends streams still active when the service shuts down.
	ErrServiceClosed = errors.New("generation service closed")
)

// DefaultMaxNewTokens applies when a Job leaves MaxNewTokens unset.
const DefaultMaxNewTokens = 64

// Job is a generation request.
type Job struct {
	ID           string
	Prompt       string
	Stop         []string
	MaxNewTokens int
	// Seq is the arrival order assigned by the service.
	Seq uint64
}

// Fragment is one incremental piece of a job's output.
type Fragment struct {
	JobID string
	Step  int
	Text  string
}

type job struct {
	Job

	seq      Sequence
	ctx      context.Context
	cancel   context.CancelFunc
	deadline time.Time

	// scheduler-owned
	steps    int
	carry    string
	inflight bool

	mu     sync.Mutex
	frags  chan Fragment
	closed bool
	err    error

	cancelled atomic.Bool
	cleanup   sync.Once
	released  bool
}

func (j *job) emit(f Fragment) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return
	}
	select {
	case j.frags <- f:
	default:
		// capacity equals the step budget; unreachable unless a runtime
		// reports more steps than requested
	}
}

// finish closes the fragment channel with a terminal error. It must run
// once the scheduler no longer steps the job.
func (j *job) finish(err error) {
	j.cleanup.Do(func() {
		j.cancel()
		_ = j.seq.Close()

		j.mu.Lock()
		j.err = err
		j.closed = true
		close(j.frags)
		j.mu.Unlock()
	})
}

func (j *job) result() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// consume applies one decoded chunk. It returns true when the job is done.
func (j *job) consume(tok Token) bool {
	j.steps++
	text := j.carry + tok.Text
	j.carry = ""

	if idx := firstStop(text, j.Stop); idx >= 0 {
		j.emitText(text[:idx])
		return true
	}

	done := tok.EOS || j.steps >= j.MaxNewTokens
	if !done {
		keep := stopPrefixLen(text, j.Stop)
		j.carry = text[len(text)-keep:]
		text = text[:len(text)-keep]
	}
	j.emitText(text)
	return done
}

func (j *job) emitText(text string) {
	if text == "" {
		return
	}
	j.emit(Fragment{JobID: j.ID, Step: j.steps, Text: text})
}

// firstStop returns the earliest position in text where any stop marker
// begins, or -1.
func firstStop(text string, stops []string) int {
	first := -1
	for _, stop := range stops {
		if stop == "" {
			continue
		}
		if idx := strings.Index(text, stop); idx >= 0 && (first < 0 || idx < first) {
			first = idx
		}
	}
	return first
}

// stopPrefixLen returns the length of the longest suffix of text that is a
// proper prefix of some stop marker.
func stopPrefixLen(text string, stops []string) int {
	best := 0
	for _, stop := range stops {
		for n := min(len(stop)-1, len(text)); n > best; n-- {
			if strings.HasSuffix(text, stop[:n]) {
				best = n
				break
			}
		}
	}
	return best
}

// Stream is the consumer side of a submitted job.
type Stream struct {
	j   *job
	svc *Service
}

// ID returns the job identifier.
func (s *Stream) ID() string { return s.j.ID }

// Next blocks until the next fragment is available. It returns ok=false once
// the job has ended; err then carries the terminal cause, nil for a normal
// finish.
func (s *Stream) Next(ctx context.Context) (Fragment, bool, error) {
	if s.j.cancelled.Load() {
		return Fragment{}, false, ErrCancelled
	}
	select {
	case f, ok := <-s.j.frags:
		if !ok {
			return Fragment{}, false, s.j.result()
		}
		if s.j.cancelled.Load() {
			return Fragment{}, false, ErrCancelled
		}
		return f, true, nil
	case <-ctx.Done():
		return Fragment{}, false, ctx.Err()
	}
}

// All iterates the remaining fragments. A terminal error, if any, is yielded
// last with a zero Fragment.
func (s *Stream) All(ctx context.Context) iter.Seq2[Fragment, error] {
	return func(yield func(Fragment, error) bool) {
		for {
			f, ok, err := s.Next(ctx)
			if !ok {
				if err != nil {
					yield(Fragment{}, err)
				}
				return
			}
			if !yield(f, nil) {
				return
			}
		}
	}
}

// Cancel stops the job and releases its slot. No fragment is delivered after
// Cancel returns. Cancelling a finished job is a no-op.
func (s *Stream) Cancel() {
	s.svc.cancel(s.j, ErrCancelled)
}
