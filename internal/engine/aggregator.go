package engine

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hakim/portprobe/internal/models"
)

// aggregator is the single point where workers deliver outcomes. Workers
// never touch the final report slice directly.
type aggregator struct {
	mu        sync.Mutex
	requested map[int]bool
	outcomes  map[int]models.ProbeOutcome
	lastAt    time.Time
	sealed    bool
	onOutcome func(models.ProbeOutcome)
}

func newAggregator(ports []int, onOutcome func(models.ProbeOutcome)) *aggregator {
	requested := make(map[int]bool, len(ports))
	for _, p := range ports {
		requested[p] = true
	}
	return &aggregator{
		requested: requested,
		outcomes:  make(map[int]models.ProbeOutcome, len(ports)),
		onOutcome: onOutcome,
	}
}

// add records one outcome. The progress hook runs under the lock so callers
// see outcomes one at a time.
func (a *aggregator) add(o models.ProbeOutcome) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sealed {
		return errSealed
	}
	if !a.requested[o.Port] {
		return fmt.Errorf("port %d: %w", o.Port, errUnknownPort)
	}
	if _, dup := a.outcomes[o.Port]; dup {
		return fmt.Errorf("port %d: %w", o.Port, errDuplicate)
	}

	a.outcomes[o.Port] = o
	a.lastAt = time.Now()
	a.notify(o)
	return nil
}

// notify runs the progress hook. The outcome is already recorded, so a
// panicking hook is swallowed rather than taking down the pool.
func (a *aggregator) notify(o models.ProbeOutcome) {
	if a.onOutcome == nil {
		return
	}
	defer func() { _ = recover() }()
	a.onOutcome(o)
}

// complete reports whether every requested port has an outcome. A cancelled
// run whose in-flight probes all finished within the grace period is complete.
func (a *aggregator) complete() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.outcomes) == len(a.requested)
}

// seal stops accepting outcomes and returns them sorted by port, together
// with the time the last one arrived.
func (a *aggregator) seal() ([]models.ProbeOutcome, time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.sealed = true
	out := make([]models.ProbeOutcome, 0, len(a.outcomes))
	for _, o := range a.outcomes {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Port < out[j].Port })
	return out, a.lastAt
}
