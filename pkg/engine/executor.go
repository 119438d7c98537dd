package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/korora-tech/dhd/pkg/atoms"
)

// Metrics receives execution counters. The telemetry package provides
// a Prometheus-backed implementation; a nil Metrics is a no-op.
type Metrics interface {
	AtomFinished(kind string, state NodeState, duration time.Duration)
	RunFinished(status ModuleStatus, duration time.Duration)
}

// ExecutorOptions tune a run.
type ExecutorOptions struct {
	// Workers bounds concurrent atom execution. Values below 1 mean 1.
	Workers int
	// DryRun records intended changes without applying anything.
	DryRun bool
	// Metrics is optional.
	Metrics Metrics
}

// Executor runs a plan's atom graph with a bounded worker pool. A node
// becomes ready when every predecessor finished as satisfied or
// changed; failed or skipped predecessors skip it transitively.
type Executor struct {
	opts ExecutorOptions
}

// NewExecutor creates an executor.
func NewExecutor(opts ExecutorOptions) *Executor {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Executor{opts: opts}
}

type nodeResult struct {
	id       int
	state    NodeState
	err      error
	duration time.Duration
}

// Execute runs the plan to completion or cancellation and returns the
// report. Cancellation stops dispatching new atoms; in-flight atoms
// finish and their outcomes are recorded, everything not yet started
// is marked skipped.
func (e *Executor) Execute(ctx context.Context, plan *Plan) *Report {
	log := zerolog.Ctx(ctx)
	graph := plan.Graph
	started := time.Now()

	states := make([]NodeState, graph.Len())
	errs := make([]error, graph.Len())
	durations := make([]time.Duration, graph.Len())
	for i := range states {
		states[i] = StatePending
	}

	pending := make([]int, graph.Len()) // unfinished predecessor count
	blocked := make([]bool, graph.Len())
	for id := 0; id < graph.Len(); id++ {
		pending[id] = len(graph.Predecessors(id))
	}

	jobs := make(chan int)
	results := make(chan nodeResult)

	var wg sync.WaitGroup
	for w := 0; w < e.opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				results <- e.runAtom(ctx, graph, id)
			}
		}()
	}

	var ready []int
	for id := 0; id < graph.Len(); id++ {
		if pending[id] == 0 {
			ready = append(ready, id)
		}
	}

	finished := 0
	inflight := 0
	canceled := false

	finish := func(id int, state NodeState, err error, d time.Duration) {
		states[id] = state
		errs[id] = err
		durations[id] = d
		finished++
		if e.opts.Metrics != nil {
			e.opts.Metrics.AtomFinished(string(graph.Node(id).Kind), state, d)
		}
		for _, succ := range graph.Successors(id) {
			pending[succ]--
			if state == StateFailed || state == StateSkipped {
				blocked[succ] = true
			}
			if pending[succ] == 0 {
				ready = append(ready, succ)
			}
		}
	}

	for finished < graph.Len() {
		// Resolve ready nodes: blocked or canceled ones skip without
		// occupying a worker.
		progressed := true
		for progressed {
			progressed = false
			next := ready
			ready = nil
			for _, id := range next {
				if blocked[id] || canceled {
					finish(id, StateSkipped, nil, 0)
					progressed = true
					continue
				}
				states[id] = StateReady
				ready = append(ready, id)
			}
		}
		if finished == graph.Len() {
			break
		}

		var dispatch chan int
		var head int
		if len(ready) > 0 {
			dispatch = jobs
			head = ready[0]
		}

		if dispatch == nil && inflight == 0 {
			// Nothing ready and nothing running: only possible after
			// cancellation resolved the remainder above.
			break
		}

		select {
		case dispatch <- head:
			states[head] = StateRunning
			ready = ready[1:]
			inflight++

		case res := <-results:
			inflight--
			finish(res.id, res.state, res.err, res.duration)

		case <-ctx.Done():
			if !canceled {
				canceled = true
				log.Warn().Msg("run canceled, letting in-flight atoms finish")
			}
			// Drain one in-flight result if any, otherwise loop to
			// resolve the ready queue as skipped.
			if inflight > 0 {
				res := <-results
				inflight--
				finish(res.id, res.state, res.err, res.duration)
			}
		}
	}

	close(jobs)
	wg.Wait()

	report := buildReport(plan, states, errs, durations, e.opts.DryRun, started, time.Now())
	if e.opts.Metrics != nil {
		e.opts.Metrics.RunFinished(report.Status, report.Duration())
	}
	return report
}

// runAtom drives one atom through the check/apply contract.
func (e *Executor) runAtom(ctx context.Context, graph *Graph, id int) nodeResult {
	node := graph.Node(id)
	log := zerolog.Ctx(ctx).With().
		Str("module", node.Module).
		Str("atom", node.Atom.Describe()).
		Logger()
	start := time.Now()

	status, err := node.Atom.Check(ctx)
	if err != nil {
		log.Error().Err(err).Msg("check failed")
		return nodeResult{
			id:       id,
			state:    StateFailed,
			err:      &AtomCheckError{Module: node.Module, Atom: node.Atom.Describe(), Err: err},
			duration: time.Since(start),
		}
	}
	if status == atoms.StatusSatisfied {
		log.Debug().Msg("already satisfied")
		return nodeResult{id: id, state: StateSatisfied, duration: time.Since(start)}
	}

	if e.opts.DryRun {
		log.Info().Msg("would apply")
		return nodeResult{id: id, state: StateChanged, duration: time.Since(start)}
	}

	if err := node.Atom.Apply(ctx); err != nil {
		log.Error().Err(err).Msg("apply failed")
		return nodeResult{
			id:       id,
			state:    StateFailed,
			err:      &AtomApplyError{Module: node.Module, Atom: node.Atom.Describe(), Err: err},
			duration: time.Since(start),
		}
	}
	log.Info().Msg("applied")
	return nodeResult{id: id, state: StateChanged, duration: time.Since(start)}
}
