package scheduler

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/robfig/cron/v3"
)

// Scheduler owns a name -> cron entry map with typed start/stop/replace
// operations. Replacing a job by name removes the prior entry before
// installing the new one, so a reload can never leave two timers firing
// for the same job.
type Scheduler struct {
	cron    *cron.Cron
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	id          cron.EntryID
	spec        string
	description string
	lastRun     time.Time
}

// JobStatus is a point-in-time view of one scheduled job.
type JobStatus struct {
	Name        string     `json:"name"`
	Spec        string     `json:"spec"`
	Description string     `json:"description"`
	LastRun     *time.Time `json:"last_run,omitempty"`
	NextRun     time.Time  `json:"next_run"`
}

// New creates a stopped scheduler with standard 5-field cron specs.
func New() *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		entries: make(map[string]*entry),
	}
}

// Start begins firing scheduled jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the timer and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Replace installs (or swaps) the named job. The spec is validated before
// the old entry is touched, so an invalid schedule never unschedules a
// working job.
func (s *Scheduler) Replace(name, spec, description string, job func()) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron spec %q for job %s: %w", spec, name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[name]; ok {
		s.cron.Remove(old.id)
		delete(s.entries, name)
		log.Infof("[Scheduler] replacing job %s", name)
	}

	e := &entry{spec: spec, description: description}
	id, err := s.cron.AddFunc(spec, func() {
		s.mu.Lock()
		e.lastRun = time.Now()
		s.mu.Unlock()

		defer func() {
			if r := recover(); r != nil {
				log.Errorf("[Scheduler] job %s panicked: %v", name, r)
			}
		}()
		job()
	})
	if err != nil {
		return fmt.Errorf("schedule job %s: %w", name, err)
	}
	e.id = id
	s.entries[name] = e

	log.Infof("[Scheduler] job %s scheduled (%s)", name, spec)
	return nil
}

// Remove cancels the named job. Removing an unknown name is a no-op.
func (s *Scheduler) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok {
		return false
	}
	s.cron.Remove(e.id)
	delete(s.entries, name)
	return true
}

// Status returns the state of all scheduled jobs, sorted by name.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.entries))
	for name, e := range s.entries {
		st := JobStatus{
			Name:        name,
			Spec:        e.spec,
			Description: e.description,
			NextRun:     s.cron.Entry(e.id).Next,
		}
		if !e.lastRun.IsZero() {
			lr := e.lastRun
			st.LastRun = &lr
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
