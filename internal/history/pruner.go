package history

import (
	"context"
	"sync"
	"time"
)

// Logger is the logging interface used by the pruner.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Pruner periodically deletes history older than a retention window.
type Pruner struct {
	repo      *SQLiteRepository
	retention time.Duration
	interval  time.Duration
	logger    Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPruner creates a pruner that runs every interval.
func NewPruner(repo *SQLiteRepository, retention, interval time.Duration) *Pruner {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Pruner{repo: repo, retention: retention, interval: interval, logger: noopLogger{}}
}

// SetLogger sets the logger. Call before Start.
func (p *Pruner) SetLogger(l Logger) { p.logger = l }

// Start prunes once immediately, then on every tick until Stop.
func (p *Pruner) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.prune(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.prune(ctx)
			}
		}
	}()
}

// Stop halts the pruner and waits for it.
func (p *Pruner) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		p.wg.Wait()
	}
}

func (p *Pruner) prune(ctx context.Context) {
	n, err := p.repo.Prune(ctx, p.retention)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("history prune failed", "error", err)
		}
		return
	}
	if n > 0 {
		p.logger.Info("history pruned", "rows", n, "retention", p.retention)
	}
}
