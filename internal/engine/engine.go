// Package engine runs a bounded pool of port probes against one host and
// collects their outcomes into a report ordered by port.
//
// Admission is a sliding window: at most Target.Concurrency probes are in
// flight and the next port is admitted as soon as any slot frees. Outcomes are
// delivered to a single mutex-guarded aggregator keyed by port, and the report
// is sorted at finalize time so completion order never leaks into it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/hakim/portprobe/internal/models"
	"github.com/hakim/portprobe/internal/services"
	"github.com/hakim/portprobe/internal/target"
	"github.com/sourcegraph/conc/pool"
)

// DefaultGracePeriod is how long a cancelled run waits for in-flight probes.
const DefaultGracePeriod = 2 * time.Second

// ProbeFunc probes one port. A non-nil error means the probe was abandoned
// because ctx was cancelled; its outcome is discarded.
type ProbeFunc func(ctx context.Context, host string, port int) (models.ProbeOutcome, error)

// Resolver is the subset of *net.Resolver used to resolve the target host.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Options tunes an Engine.
type Options struct {
	// GracePeriod bounds how long a cancelled run waits for in-flight probes
	// before the partial report is sealed. Zero means DefaultGracePeriod.
	GracePeriod time.Duration

	// Resolver resolves hostnames once before dispatch. Nil means net.DefaultResolver.
	Resolver Resolver

	// OnOutcome is called once for every recorded outcome, one call at a time,
	// in completion order. It must not block for long. A panic in the hook is
	// recovered and does not affect the report.
	OnOutcome func(models.ProbeOutcome)

	// CheckAddress vets the resolved address before any port is dispatched.
	// A non-nil error aborts the run and is returned from Start unchanged.
	CheckAddress func(addr string) error
}

// Engine schedules probes. It keeps no per-run state and may run several
// targets at once.
type Engine struct {
	probe ProbeFunc
	opts  Options
}

// New creates an Engine that uses probe for every port.
func New(probe ProbeFunc, opts Options) *Engine {
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.Resolver == nil {
		opts.Resolver = net.DefaultResolver
	}
	return &Engine{probe: probe, opts: opts}
}

// Handle tracks a run started with Start.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}

	report *models.ScanReport
	err    error

	mu    sync.Mutex
	fault error
}

// Cancel stops admission of new ports and asks in-flight probes to give up.
// It is safe to call any number of times, from any goroutine.
func (h *Handle) Cancel() { h.cancel() }

// Done is closed once the report has been finalized.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the run is finalized. It returns either a report, which
// is partial with Cancelled set when the run was cancelled, or an error.
func (h *Handle) Wait() (*models.ScanReport, error) {
	<-h.done
	return h.report, h.err
}

// setFault records the first engine fault and aborts the run.
func (h *Handle) setFault(err error) {
	h.mu.Lock()
	if h.fault == nil {
		h.fault = err
	}
	h.mu.Unlock()
	h.cancel()
}

func (h *Handle) faultErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fault
}

// Run scans t and blocks until every port has an outcome or ctx is cancelled.
func (e *Engine) Run(ctx context.Context, t target.Target) (*models.ScanReport, error) {
	h, err := e.Start(ctx, t)
	if err != nil {
		return nil, err
	}
	return h.Wait()
}

// Start validates t, resolves its host and begins scanning in the background.
// Validation errors and resolution faults are returned before any port is
// dispatched.
func (e *Engine) Start(ctx context.Context, t target.Target) (*Handle, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if e.probe == nil {
		return nil, &EngineFault{Op: "setup", Err: errors.New("no probe function configured")}
	}

	addr, err := Resolve(ctx, e.opts.Resolver, t.Host)
	if err != nil {
		return nil, &EngineFault{Op: "resolve", Err: err}
	}
	if e.opts.CheckAddress != nil {
		if err := e.opts.CheckAddress(addr); err != nil {
			return nil, err
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}
	agg := newAggregator(t.Ports, e.opts.OnOutcome)

	go e.run(runCtx, h, t, addr, agg)
	return h, nil
}

func (e *Engine) run(ctx context.Context, h *Handle, t target.Target, addr string, agg *aggregator) {
	defer close(h.done)
	defer h.cancel()

	ports := append([]int(nil), t.Ports...)
	startedAt := time.Now()
	poolDone := make(chan struct{})

	go func() {
		defer close(poolDone)
		p := pool.New().WithMaxGoroutines(t.Concurrency)
		for _, port := range ports {
			if ctx.Err() != nil {
				break
			}
			port := port
			// Go blocks until a slot is free.
			p.Go(func() { e.runOne(ctx, h, addr, port, agg) })
		}
		p.Wait()
	}()

	var stoppedAt time.Time
	select {
	case <-poolDone:
	case <-ctx.Done():
		stoppedAt = time.Now()
		grace := time.NewTimer(e.opts.GracePeriod)
		select {
		case <-poolDone:
		case <-grace.C:
		}
		grace.Stop()
	}

	outcomes, lastAt := agg.seal()
	complete := agg.complete()

	if fault := h.faultErr(); fault != nil {
		h.err = &EngineFault{Op: "aggregate", Err: fault}
		return
	}

	report := &models.ScanReport{
		Host:      t.Host,
		Address:   addr,
		StartedAt: startedAt,
		Requested: len(ports),
		Outcomes:  outcomes,
	}
	if complete {
		report.Elapsed = lastAt.Sub(startedAt)
	} else {
		report.Cancelled = true
		if stoppedAt.IsZero() {
			stoppedAt = time.Now()
		}
		report.Elapsed = stoppedAt.Sub(startedAt)
	}
	h.report = report
}

func (e *Engine) runOne(ctx context.Context, h *Handle, addr string, port int, agg *aggregator) {
	if ctx.Err() != nil {
		return
	}
	out, err := e.safeProbe(ctx, addr, port)
	if err != nil {
		return
	}
	if err := agg.add(out); err != nil && !errors.Is(err, errSealed) {
		h.setFault(err)
	}
}

// safeProbe turns a panicking probe into an ERROR outcome for that port.
func (e *Engine) safeProbe(ctx context.Context, addr string, port int) (out models.ProbeOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = models.ProbeOutcome{
				Port:    port,
				Status:  models.ProbeError,
				Service: services.Lookup(port),
				Error:  fmt.Sprintf("probe panicked: %v", r),
			}
			err = nil
		}
	}()
	return e.probe(ctx, addr, port)
}

// Resolve returns the address to dial for host. IP literals are used as-is;
// names are looked up with r (nil means net.DefaultResolver), preferring IPv4.
func Resolve(ctx context.Context, r Resolver, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return ip.String(), nil
	}
	if r == nil {
		r = net.DefaultResolver
	}
	addrs, err := r.LookupIPAddr(ctx, host)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("resolving %s: no addresses", host)
	}
	for _, a := range addrs {
		if a.IP.To4() != nil {
			return a.IP.String(), nil
		}
	}
	return addrs[0].IP.String(), nil
}
