// Package manager runs the two cooperating pollers and the per-update
// dispatch task that drive every job through its lifecycle once it has
// been submitted (spec §4.4). It owns nothing about job semantics itself —
// that lives in processor — manager only decides *when* to call a
// processor operation and what to do with the result.
package manager

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"orchestrator/arithmetic"
	"orchestrator/auth"
	"orchestrator/cache"
	"orchestrator/channel"
	"orchestrator/processor"
)

var managerLogger = logrus.WithFields(logrus.Fields{"component": "manager"})

// Manager wires a cache, a processor, and a credential issuer into the
// poll/dispatch loop described in spec §4.4.
type Manager struct {
	Cache     cache.Cache
	Processor *processor.Deps
	Auth      *auth.Issuer
	Config    Config

	sem  chan struct{}
	wg   sync.WaitGroup
	done chan (<-chan struct{})

	statsMu sync.Mutex
	stats   Stats
}

// Stats is a running count of work the manager has performed, logged on a
// tick whose period is the LCM of the two poll intervals so the log line
// always lands on a tick both pollers share.
type Stats struct {
	TasksCompleted  int64
	CacheTicks      int64
	ExecutorTicks   int64
	LaunchesQueued  int64
}

// New builds a Manager. Config zero-fields are filled with WithDefaults.
func New(c cache.Cache, p *processor.Deps, issuer *auth.Issuer, cfg Config) *Manager {
	cfg = cfg.WithDefaults()
	return &Manager{
		Cache:     c,
		Processor: p,
		Auth:      issuer,
		Config:    cfg,
		sem:       make(chan struct{}, cfg.WorkerPoolSize),
		done:      make(chan (<-chan struct{}), cfg.WorkerPoolSize),
	}
}

// submit runs fn in its own goroutine, bounded by the worker pool
// semaphore, and feeds its completion signal into the bridged stats
// stream. It never blocks the caller beyond handing off the completion
// channel.
func (m *Manager) submit(ctx context.Context, fn func()) {
	doneCh := make(chan struct{})
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(doneCh)
		select {
		case m.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		defer func() { <-m.sem }()
		fn()
	}()

	select {
	case m.done <- doneCh:
	case <-ctx.Done():
	}
}

// Run starts both pollers and blocks until ctx is cancelled. In-flight
// ticks and dispatch tasks are allowed to complete before Run returns
// (spec §9 "pollers are halted on service stop; in-flight work finishes").
func (m *Manager) Run(ctx context.Context) {
	select {
	case <-time.After(m.Config.StartupDelay):
	case <-ctx.Done():
		return
	}

	cacheTicker := time.NewTicker(m.Config.CachePollInterval)
	defer cacheTicker.Stop()
	execTicker := time.NewTicker(m.Config.ExecutorPollInterval)
	defer execTicker.Stop()

	statsTick := combinedStatsInterval(m.Config.CachePollInterval, m.Config.ExecutorPollInterval)
	statsTicker := time.NewTicker(statsTick)
	defer statsTicker.Stop()

	cacheTicks, launchTicks := channel.Tee(ctx, channel.OrDone(ctx, cacheTicker.C))
	execTicks := channel.OrDone(ctx, execTicker.C)
	completions := channel.Bridge(ctx, m.done)

	go func() {
		for range completions {
			m.statsMu.Lock()
			m.stats.TasksCompleted++
			m.statsMu.Unlock()
		}
	}()

	managerLogger.WithFields(logrus.Fields{
		"cachePollInterval":    m.Config.CachePollInterval,
		"executorPollInterval": m.Config.ExecutorPollInterval,
		"maxRunningJobs":       m.Config.MaxRunningJobs,
	}).Info("job manager starting")

	for {
		select {
		case <-ctx.Done():
			m.wg.Wait()
			managerLogger.Info("job manager stopped")
			return
		case _, ok := <-cacheTicks:
			if !ok {
				continue
			}
			m.statsMu.Lock()
			m.stats.CacheTicks++
			m.statsMu.Unlock()
			m.cacheUpdateTick(ctx)
		case _, ok := <-launchTicks:
			if !ok {
				continue
			}
			m.launchTick(ctx)
		case _, ok := <-execTicks:
			if !ok {
				continue
			}
			m.statsMu.Lock()
			m.stats.ExecutorTicks++
			m.statsMu.Unlock()
			m.executorTick(ctx)
		case <-statsTicker.C:
			m.logStats()
		}
	}
}

func (m *Manager) logStats() {
	m.statsMu.Lock()
	s := m.stats
	m.statsMu.Unlock()
	managerLogger.WithFields(logrus.Fields{
		"tasksCompleted": s.TasksCompleted,
		"cacheTicks":     s.CacheTicks,
		"executorTicks":  s.ExecutorTicks,
		"launchesQueued": s.LaunchesQueued,
	}).Info("job manager stats")
}

// combinedStatsInterval returns a tick period both pollers share, so the
// periodic stats line always lines up with a cache tick and an executor
// tick having both just run at least once.
func combinedStatsInterval(cachePoll, execPoll time.Duration) time.Duration {
	cacheSec := int(cachePoll / time.Second)
	execSec := int(execPoll / time.Second)
	if cacheSec <= 0 || execSec <= 0 {
		return execPoll
	}
	return time.Duration(arithmetic.Lcm(cacheSec, execSec)) * time.Second
}
