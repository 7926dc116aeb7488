package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/vk/planexec/internal/plan"
)

// Recorder accumulates results for one run. It is safe for concurrent use and
// append-only: results are never edited once recorded.
type Recorder struct {
	mu      sync.Mutex
	session Session
	seen    map[int]bool
	now     func() time.Time
}

// NewRecorder starts a session with the given id for p.
func NewRecorder(id string, p plan.Plan) *Recorder {
	return newRecorder(id, p, time.Now)
}

func newRecorder(id string, p plan.Plan, now func() time.Time) *Recorder {
	return &Recorder{
		session: Session{ID: id, Plan: p, StartedAt: now()},
		seen:    make(map[int]bool),
		now:     now,
	}
}

// ID returns the session id.
func (r *Recorder) ID() string {
	return r.session.ID
}

// Record appends res. Each step can be recorded once.
func (r *Recorder) Record(res StepResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session.Sealed {
		return ErrSealed
	}
	if r.seen[res.Index] {
		return fmt.Errorf("result for step %d already recorded", res.Index)
	}
	r.seen[res.Index] = true
	r.session.Results = append(r.session.Results, res)
	return nil
}

// Results returns a copy of the results recorded so far.
func (r *Recorder) Results() []StepResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.clone().Results
}

// Seal finalizes the session and returns an immutable copy. Calling Seal
// again returns the already sealed session unchanged.
func (r *Recorder) Seal(placeholders map[string]string, outcome Outcome) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.session.Sealed {
		r.session.Placeholders = placeholders
		r.session.Outcome = outcome
		r.session.EndedAt = r.now()
		r.session.Sealed = true
	}
	return r.session.clone()
}
