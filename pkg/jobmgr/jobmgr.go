// Package jobmgr runs named background jobs with cancellation and in-memory
// tracking of what is running.
//
//	jm := jobmgr.NewManager(ctx)
//	err := jm.Every("player-loop", time.Second, func(ctx context.Context) error {
//	    return tick(ctx)
//	})
//	// later...
//	_ = jm.Stop("player-loop")
//
// Jobs run in their own goroutines and are removed when they return.
package jobmgr

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrJobRunning    = errors.New("job is already running")
	ErrJobNotRunning = errors.New("job not running")
)

// Job is a running unit of work.
type Job struct {
	Name    string
	Started time.Time
	cancel  context.CancelFunc
	done    chan struct{}
}

// Manager starts, stops and tracks jobs. It is safe for concurrent use.
type Manager struct {
	mu     sync.Mutex
	jobs   map[string]*Job
	parent context.Context
	wg     sync.WaitGroup
	log    zerolog.Logger
}

// NewManager returns a manager whose jobs are cancelled with parent.
func NewManager(parent context.Context) *Manager {
	return &Manager{
		jobs:   make(map[string]*Job),
		parent: parent,
		log:    log.With().Str("component", "jobmgr").Logger(),
	}
}

// StartAsync runs runner in a separate goroutine and returns immediately.
func (m *Manager) StartAsync(name string, runner func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrJobRunning, name)
	}

	ctx, cancel := context.WithCancel(m.parent)
	job := &Job{Name: name, Started: time.Now(), cancel: cancel, done: make(chan struct{})}
	m.jobs[name] = job
	m.wg.Add(1)

	go func() {
		defer m.wg.Done()
		defer close(job.done)
		defer cancel()

		m.log.Debug().Str("job", name).Msg("running")
		err := runner(ctx)
		switch {
		case err != nil && !errors.Is(err, context.Canceled):
			m.log.Error().Err(err).Str("job", name).Msg("job failed")
		default:
			m.log.Debug().Str("job", name).Msg("done")
		}

		m.mu.Lock()
		if m.jobs[name] == job {
			delete(m.jobs, name)
		}
		m.mu.Unlock()
	}()
	return nil
}

// Every runs fn every interval until the job is stopped. A failing tick is
// logged and the loop carries on.
func (m *Manager) Every(name string, interval time.Duration, fn func(ctx context.Context) error) error {
	return m.StartAsync(name, func(ctx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := runTick(ctx, fn); err != nil {
					m.log.Error().Err(err).Str("job", name).Msg("tick failed")
				}
			}
		}
	})
}

func runTick(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

// Stop cancels a running job and waits for it to return.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	job, ok := m.jobs[name]
	if ok {
		delete(m.jobs, name)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotRunning, name)
	}
	job.cancel()
	<-job.done
	return nil
}

// Wait blocks until every job has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// List returns the names of active jobs, sorted.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.jobs))
	for k := range m.jobs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Status returns a human-readable summary such as "Running jobs: a, b".
func (m *Manager) Status() string {
	active := m.List()
	if len(active) == 0 {
		return "No jobs are running."
	}
	return fmt.Sprintf("Running jobs: %s", strings.Join(active, ", "))
}
