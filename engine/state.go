package engine

import "sync"

// State is the per-Job scratch space threaded through a Graph's nodes.
// It is not safe for concurrent use from multiple goroutines *except*
// the Cancel/Cancelled pair, since exactly one worker ever drives a given
// Job's nodes at a time while an external caller may call Cancel from
// another goroutine.
type State struct {
	Job    *Job
	Values map[string]interface{}

	mu        sync.Mutex
	cancelled bool
}

// NewState creates an empty State for job.
func NewState(job *Job) *State {
	return &State{Job: job, Values: make(map[string]interface{})}
}

// Set stores a value under key for later nodes in the same Job to read.
func (s *State) Set(key string, value interface{}) {
	s.Values[key] = value
}

// Get retrieves a value stored by an earlier node.
func (s *State) Get(key string) (interface{}, bool) {
	v, ok := s.Values[key]
	return v, ok
}

// Cancel marks the Job for cooperative cancellation. Nodes observe this
// via Cancelled at their own suspension points — there is no forced
// preemption, since a node mid-external-call cannot safely be killed
// without risking an orphaned side effect.
func (s *State) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = true
}

// Cancelled reports whether Cancel has been called for this Job.
func (s *State) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}
