package jobs

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/liamcoop/stagegate/internal/logger"
	"github.com/liamcoop/stagegate/rules"
)

// FactProvider assembles the fact snapshot for one job. Implementations
// must reduce related-record checks to counts before returning; the engine
// never queries storage itself.
type FactProvider interface {
	Snapshot(ctx context.Context, jobID string) (rules.Facts, error)
}

// StaticFactProvider serves facts held in memory. Used by tests and the CLI.
type StaticFactProvider struct {
	facts   map[string]rules.Facts
	deriver *rules.Deriver
	mu      sync.RWMutex
}

// NewStaticFactProvider creates an in-memory provider. deriver may be nil.
func NewStaticFactProvider(deriver *rules.Deriver) *StaticFactProvider {
	return &StaticFactProvider{
		facts:   make(map[string]rules.Facts),
		deriver: deriver,
	}
}

// Set replaces the raw facts for a job
func (p *StaticFactProvider) Set(jobID string, facts rules.Facts) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.facts[jobID] = maps.Clone(facts)
}

// Snapshot returns a fresh copy of the job's facts with derived facts applied
func (p *StaticFactProvider) Snapshot(ctx context.Context, jobID string) (rules.Facts, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	raw, ok := p.facts[jobID]
	p.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no facts for %s", ErrJobNotFound, jobID)
	}

	return derive(p.deriver, jobID, maps.Clone(raw)), nil
}

// derive applies derived facts. Fields that fail to evaluate stay absent so
// the matching prerequisite fails with its own message.
func derive(d *rules.Deriver, jobID string, raw rules.Facts) rules.Facts {
	if d == nil {
		return raw
	}
	out, err := d.Apply(raw)
	if err != nil {
		logger.Warn("derived fact evaluation failed", "job_id", jobID, "error", err)
	}
	return out
}
