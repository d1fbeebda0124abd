// Package cron schedules recurring generations. Jobs persist in a JSON file
// and fire by publishing their stored command inbound, so the engine treats
// a due job exactly like a user message.
package cron

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/wavespeedai/wavebot-go/pkg/bus"
)

// The scheduler sleeps at most this long, so jobs added while it sleeps are
// noticed without a wakeup signal.
const maxSleep = 10 * time.Second

// Service owns the job store and the scheduler loop.
type Service struct {
	StorePath string
	Bus       *bus.MessageBus

	mu    sync.RWMutex
	store *fileStore
	done  chan struct{}
}

// NewService creates a service over the given store file. The bus may be nil
// for store-only use, as in the CLI's job management.
func NewService(storePath string, messageBus *bus.MessageBus) *Service {
	return &Service{
		StorePath: storePath,
		Bus:       messageBus,
		done:      make(chan struct{}),
	}
}

func (s *Service) nowMs() int64 {
	return time.Now().UnixNano() / int64(time.Millisecond)
}

// computeNextRun maps a schedule to the next fire time in epoch millis.
// Zero means the schedule yields no future run.
func (s *Service) computeNextRun(schedule Schedule, nowMs int64) int64 {
	switch schedule.Kind {
	case "at":
		return schedule.AtMs
	case "every":
		if schedule.EveryMs <= 0 {
			return 0
		}
		return nowMs + schedule.EveryMs
	case "cron":
		if schedule.Expr == "" {
			return 0
		}
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		sched, err := parser.Parse(schedule.Expr)
		if err != nil {
			zap.S().Warnf("Bad cron expression %q: %v", schedule.Expr, err)
			return 0
		}
		now := time.Unix(0, nowMs*int64(time.Millisecond))
		return sched.Next(now).UnixNano() / int64(time.Millisecond)
	}
	return 0
}

func (s *Service) loadStore() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store != nil {
		return
	}
	s.store = &fileStore{Version: 1, Jobs: []Job{}}

	data, err := os.ReadFile(s.StorePath)
	if err != nil {
		if !os.IsNotExist(err) {
			zap.S().Warnf("Failed to read job store %s: %v", s.StorePath, err)
		}
		return
	}
	if err := json.Unmarshal(data, s.store); err != nil {
		zap.S().Warnf("Failed to parse job store %s: %v", s.StorePath, err)
	}
}

func (s *Service) saveStore() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveStoreLocked()
}

func (s *Service) saveStoreLocked() {
	if s.store == nil {
		return
	}
	os.MkdirAll(filepath.Dir(s.StorePath), 0755)
	data, err := json.MarshalIndent(s.store, "", "  ")
	if err != nil {
		zap.S().Errorf("Failed to encode job store: %v", err)
		return
	}
	if err := os.WriteFile(s.StorePath, data, 0644); err != nil {
		zap.S().Errorf("Failed to write job store %s: %v", s.StorePath, err)
	}
}

// indexOfLocked finds a job by ID. Caller holds s.mu.
func (s *Service) indexOfLocked(jobID string) int {
	for i := range s.store.Jobs {
		if s.store.Jobs[i].ID == jobID {
			return i
		}
	}
	return -1
}

// Load reads the store from disk and refreshes next-run times without
// starting the scheduler. Job management from the CLI uses it directly.
func (s *Service) Load() {
	s.loadStore()
	s.recomputeNextRuns()
}

// Start loads the store and begins watching for due jobs.
func (s *Service) Start() {
	s.Load()
	s.saveStore()
	go s.loop()
	zap.S().Infof("Cron service started with %d jobs", len(s.ListJobs()))
}

// Stop ends the scheduler loop.
func (s *Service) Stop() {
	close(s.done)
}

// Stored next-run times go stale across restarts; recompute them all so a
// bot that was down for a week does not replay the backlog.
func (s *Service) recomputeNextRuns() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store == nil {
		return
	}
	now := s.nowMs()
	for i := range s.store.Jobs {
		if s.store.Jobs[i].Enabled {
			s.store.Jobs[i].State.NextRunAtMs = s.computeNextRun(s.store.Jobs[i].Schedule, now)
		}
	}
}

// nextWakeMs returns the soonest scheduled fire time, or zero when nothing
// is scheduled.
func (s *Service) nextWakeMs() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.store == nil {
		return 0
	}
	var soonest int64
	for _, job := range s.store.Jobs {
		next := job.State.NextRunAtMs
		if !job.Enabled || next <= 0 {
			continue
		}
		if soonest == 0 || next < soonest {
			soonest = next
		}
	}
	return soonest
}

func (s *Service) loop() {
	for {
		delay := maxSleep
		if wake := s.nextWakeMs(); wake > 0 {
			delay = time.Duration(wake-s.nowMs()) * time.Millisecond
			if delay < 0 {
				delay = 0
			}
		}
		if delay > maxSleep {
			delay = maxSleep
		}

		select {
		case <-s.done:
			return
		case <-time.After(delay):
			s.processJobs()
		}
	}
}

// processJobs fires every due job, then persists the updated store once.
func (s *Service) processJobs() {
	s.mu.RLock()
	if s.store == nil {
		s.mu.RUnlock()
		return
	}
	now := s.nowMs()
	var due []string
	for _, job := range s.store.Jobs {
		if job.Enabled && job.State.NextRunAtMs > 0 && now >= job.State.NextRunAtMs {
			due = append(due, job.ID)
		}
	}
	s.mu.RUnlock()

	for _, id := range due {
		s.mu.Lock()
		idx := s.indexOfLocked(id)
		if idx < 0 {
			// Removed while the lock was released.
			s.mu.Unlock()
			continue
		}
		job := s.store.Jobs[idx]
		s.mu.Unlock()

		// Fire outside the lock; publishing blocks when the engine backlog
		// fills its buffer.
		s.fireJob(&job)

		s.mu.Lock()
		if idx = s.indexOfLocked(id); idx >= 0 {
			s.store.Jobs[idx] = job
			switch {
			case job.Schedule.Kind == "at" && job.DeleteAfterRun:
				s.store.Jobs = append(s.store.Jobs[:idx], s.store.Jobs[idx+1:]...)
			case job.Schedule.Kind == "at":
				s.store.Jobs[idx].Enabled = false
				s.store.Jobs[idx].State.NextRunAtMs = 0
			default:
				s.store.Jobs[idx].State.NextRunAtMs = s.computeNextRun(job.Schedule, s.nowMs())
			}
		}
		s.mu.Unlock()
	}

	if len(due) > 0 {
		s.saveStore()
	}
}

// fireJob replays the stored command as an inbound message and records the
// run in the job state.
func (s *Service) fireJob(job *Job) {
	zap.S().Infof("Cron: firing job %q (%s)", job.Name, job.ID)
	startMs := s.nowMs()

	defer func() {
		if r := recover(); r != nil {
			zap.S().Errorf("Cron: job %s panicked: %v", job.ID, r)
			job.State.LastStatus = "error"
			job.State.LastError = fmt.Sprintf("panic: %v", r)
		}
	}()

	if s.Bus != nil {
		s.Bus.PublishInbound(bus.InboundMessage{
			Channel:   job.Payload.Channel,
			SenderID:  "cron",
			ChatID:    job.Payload.ChatID,
			Content:   job.Payload.Command,
			Timestamp: time.Now(),
			Metadata: map[string]interface{}{
				"cron_job":  job.ID,
				"cron_name": job.Name,
			},
		})
	}

	job.State.LastStatus = "ok"
	job.State.LastError = ""
	job.State.LastRunAtMs = startMs
	job.UpdatedAtMs = s.nowMs()
}

// ListJobs returns the jobs sorted by next run time, soonest first. Jobs
// with no scheduled run sort last.
func (s *Service) ListJobs() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.store == nil {
		return nil
	}
	jobs := make([]Job, len(s.store.Jobs))
	copy(jobs, s.store.Jobs)

	sort.Slice(jobs, func(i, j int) bool {
		a, b := jobs[i].State.NextRunAtMs, jobs[j].State.NextRunAtMs
		if a == 0 {
			return false
		}
		if b == 0 {
			return true
		}
		return a < b
	})
	return jobs
}

// AddJob schedules a generation command and persists it. The ID is the
// short form of a UUID, enough to address jobs from chat or the CLI.
func (s *Service) AddJob(name string, schedule Schedule, payload Payload, deleteAfterRun bool) Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store == nil {
		s.store = &fileStore{Version: 1, Jobs: []Job{}}
	}

	now := s.nowMs()
	job := Job{
		ID:             uuid.New().String()[:8],
		Name:           name,
		Enabled:        true,
		Schedule:       schedule,
		Payload:        payload,
		State:          JobState{NextRunAtMs: s.computeNextRun(schedule, now)},
		CreatedAtMs:    now,
		UpdatedAtMs:    now,
		DeleteAfterRun: deleteAfterRun,
	}
	s.store.Jobs = append(s.store.Jobs, job)
	s.saveStoreLocked()
	return job
}

// RemoveJob deletes a job by ID and reports whether it existed.
func (s *Service) RemoveJob(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store == nil {
		return false
	}
	idx := s.indexOfLocked(jobID)
	if idx < 0 {
		return false
	}
	s.store.Jobs = append(s.store.Jobs[:idx], s.store.Jobs[idx+1:]...)
	s.saveStoreLocked()
	return true
}

// SetJobEnabled flips a job on or off and reports whether it existed.
// Enabling recomputes the next run so a stale past timestamp does not fire
// immediately.
func (s *Service) SetJobEnabled(jobID string, enabled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store == nil {
		return false
	}
	idx := s.indexOfLocked(jobID)
	if idx < 0 {
		return false
	}
	s.store.Jobs[idx].Enabled = enabled
	if enabled {
		s.store.Jobs[idx].State.NextRunAtMs = s.computeNextRun(s.store.Jobs[idx].Schedule, s.nowMs())
	}
	s.saveStoreLocked()
	return true
}
