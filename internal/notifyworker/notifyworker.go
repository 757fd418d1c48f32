// Package notifyworker runs a small bounded worker pool that drains
// chat-bridge "new agent seen" jobs off the request path, using a semaphore
// to cap concurrent notification delivery.
package notifyworker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Notifier is the subset of the chat-bridge client the worker needs.
type Notifier interface {
	NotifyNewAgent(ctx context.Context, agentID string) error
}

// Job is one queued notification.
type Job struct {
	AgentID string
}

const (
	defaultBufferSize = 64
	notifyTimeout     = 5 * time.Second
)

// Pool drains a buffered channel of Jobs with up to Size concurrent workers.
// Submission never blocks the caller beyond a channel send with a small
// buffer; a full buffer drops the oldest-pending job with a logged warning
// rather than blocking the webhook.
type Pool struct {
	jobs     chan Job
	sem      *semaphore.Weighted
	notifier Notifier
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Pool with size concurrent workers (clamped to between 1 and
// 4) draining jobs via notifier.
func New(size int, notifier Notifier, logger *slog.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	if size > 4 {
		size = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		jobs:     make(chan Job, defaultBufferSize),
		sem:      semaphore.NewWeighted(int64(size)),
		notifier: notifier,
		logger:   logger,
	}
}

// Start launches the dispatch goroutine. Must be called before Submit.
func (p *Pool) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go p.dispatch()
}

// Stop cancels the pool and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	close(p.jobs)
	p.wg.Wait()
}

// Submit enqueues a notification job for agentID. If the buffer is full, the
// oldest pending job is dropped (with a logged warning) to make room; the
// call itself never blocks the request goroutine.
func (p *Pool) Submit(agentID string) {
	job := Job{AgentID: agentID}
	select {
	case p.jobs <- job:
		return
	default:
	}

	select {
	case dropped := <-p.jobs:
		p.logger.Warn("notifyworker: buffer full, dropping oldest pending job", slog.String("dropped_agent_id", dropped.AgentID))
	default:
	}

	select {
	case p.jobs <- job:
	default:
		p.logger.Warn("notifyworker: buffer full, dropping submitted job", slog.String("agent_id", agentID))
	}
}

func (p *Pool) dispatch() {
	defer p.wg.Done()
	for job := range p.jobs {
		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			return
		}
		p.wg.Add(1)
		go func(job Job) {
			defer p.wg.Done()
			defer p.sem.Release(1)
			p.process(job)
		}(job)
	}
}

func (p *Pool) process(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := p.notifier.NotifyNewAgent(ctx, job.AgentID); err != nil {
		p.logger.Warn("notifyworker: chat-bridge notification failed",
			slog.String("agent_id", job.AgentID), slog.Any("error", err))
	}
}
