package gatekeeper

import (
	"sort"
	"sync"
	"time"
)

// JobHandler receives the payload of a fired job
type JobHandler func(payload JobPayload)

// Scheduler is a process-wide registry of one-shot timers keyed by job id.
// Scheduling an existing id replaces the prior timer; cancelling a job that
// already fired or never existed is a no-op. A job fires at most once and a
// cancelled job never fires.
type Scheduler struct {
	mu      sync.Mutex
	handler JobHandler
	jobs    map[string]*scheduledJob
}

type scheduledJob struct {
	timer   *time.Timer
	payload JobPayload
}

// NewScheduler creates a scheduler delivering fired jobs to handler on
// their own goroutines
func NewScheduler(handler JobHandler) *Scheduler {
	return &Scheduler{
		handler: handler,
		jobs:    make(map[string]*scheduledJob),
	}
}

// Schedule arms a timer for id firing at fireAt with the given payload
// snapshot. An existing timer under the same id is replaced.
func (s *Scheduler) Schedule(id string, fireAt time.Time, payload JobPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prior, ok := s.jobs[id]; ok {
		prior.timer.Stop()
		VerboseLog("Scheduler: replacing job %s", id)
	}

	job := &scheduledJob{payload: payload}
	job.timer = time.AfterFunc(time.Until(fireAt), func() {
		s.fire(id, job)
	})
	s.jobs[id] = job
}

// Cancel removes a pending job. It returns true if a timer existed and was
// removed; cancelling an already-fired or unknown job returns false and is
// not an error.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return false
	}
	job.timer.Stop()
	delete(s.jobs, id)
	return true
}

// Pending returns the ids of all armed jobs, sorted for stable output
func (s *Scheduler) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// fire delivers a job to the handler. The job is removed from the pending
// set first, under the lock, so it can never be delivered twice; if Cancel
// won the race and already removed it (or Schedule replaced it), delivery
// is dropped.
func (s *Scheduler) fire(id string, job *scheduledJob) {
	s.mu.Lock()
	current, ok := s.jobs[id]
	if !ok || current != job {
		s.mu.Unlock()
		return
	}
	delete(s.jobs, id)
	s.mu.Unlock()

	s.handler(job.payload)
}
