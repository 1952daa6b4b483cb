// Package graph implements the dataflow network connecting stage
// definitions: named FIFO channels, zip-join readiness detection, and
// closure propagation. The graph detects when a stage has one value on
// every input port, pops the tuple, and hands the firing to the scheduler
// synchronously; it never buffers readiness events itself.
package graph

import (
	"fmt"
	"sync"

	"github.com/gammazero/toposort"

	"github.com/flowrun-io/flowrun/internal/values"
)

// ReadyFunc receives each ready firing as it is detected. Implementations
// must be quick and must not call back into the Graph; the scheduler
// enqueues the firing and processes it from its own loop.
type ReadyFunc func(Firing)

// Graph owns the channel network and the stage wiring. Stages and channels
// are registered while building; Start freezes the topology.
type Graph struct {
	mu       sync.Mutex
	stages   []*stageState
	byName   map[string]*stageState
	channels map[string]*Channel
	feeds    map[string][]values.Value
	ready    ReadyFunc
	started  bool
}

// stageState tracks the runtime side of one stage: its consumer ports,
// firing counter, in-flight firings, and whether it can ever fire again.
type stageState struct {
	def      *StageDefinition
	ports    []*port
	fired    int
	inflight int
	quiesced bool
	closed   bool // outputs closed
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		byName:   make(map[string]*stageState),
		channels: make(map[string]*Channel),
		feeds:    make(map[string][]values.Value),
	}
}

// Channel returns the named channel, creating it on first use.
func (g *Graph) Channel(name string) *Channel {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.channel(name)
}

func (g *Graph) channel(name string) *Channel {
	if c, ok := g.channels[name]; ok {
		return c
	}
	c := &Channel{name: name}
	g.channels[name] = c
	return c
}

// AddStage registers a stage definition and wires its input ports and
// output channels. Returns an error on duplicate stage names or when an
// output channel already has a producer.
func (g *Graph) AddStage(def *StageDefinition) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.started {
		return fmt.Errorf("graph already started")
	}
	if def.Name == "" {
		return fmt.Errorf("stage name must not be empty")
	}
	if _, exists := g.byName[def.Name]; exists {
		return fmt.Errorf("stage %q already exists", def.Name)
	}

	st := &stageState{def: def}
	for _, in := range def.Inputs {
		c := g.channel(in.Channel)
		p := &port{channel: c, stage: def, input: in.Name}
		c.ports = append(c.ports, p)
		st.ports = append(st.ports, p)
	}
	for _, out := range def.Outputs {
		c := g.channel(out.Channel)
		if c.producer != "" {
			return fmt.Errorf("channel %q already produced by %s", out.Channel, c.producer)
		}
		c.producer = def.Name
	}

	g.stages = append(g.stages, st)
	g.byName[def.Name] = st
	return nil
}

// Feed seeds a channel with externally supplied values, in order. The
// channel must not be produced by a stage; it is closed right after the
// seeds are delivered at Start.
func (g *Graph) Feed(channel string, vals ...values.Value) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.started {
		return fmt.Errorf("graph already started")
	}
	c := g.channel(channel)
	if c.producer != "" && c.producer != feedProducer {
		return fmt.Errorf("channel %q already produced by %s", channel, c.producer)
	}
	c.producer = feedProducer
	g.feeds[channel] = append(g.feeds[channel], vals...)
	return nil
}

// Validate checks the wiring: every consumed channel has a producer, and
// the stage adjacency implied by the channels is acyclic. Returns the
// stages in topological order.
func (g *Graph) Validate() ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, st := range g.stages {
		for _, in := range st.def.Inputs {
			c := g.channels[in.Channel]
			if c.producer == "" {
				return nil, fmt.Errorf("stage %q consumes channel %q which has no producer", st.def.Name, in.Channel)
			}
		}
	}

	var edges []toposort.Edge
	for _, st := range g.stages {
		hasUpstream := false
		for _, in := range st.def.Inputs {
			c := g.channels[in.Channel]
			if c.producer == feedProducer {
				continue
			}
			edges = append(edges, toposort.Edge{c.producer, st.def.Name})
			hasUpstream = true
		}
		if !hasUpstream {
			// Keep source stages in the sorted result.
			edges = append(edges, toposort.Edge{nil, st.def.Name})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("stage graph contains cycle: %w", err)
	}

	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}
	return order, nil
}

// Start freezes the topology, delivers channel seeds, and fires source
// stages exactly once. Ready firings are handed to ready synchronously, in
// detection order.
func (g *Graph) Start(ready ReadyFunc) error {
	if _, err := g.Validate(); err != nil {
		return err
	}

	g.mu.Lock()
	if g.started {
		g.mu.Unlock()
		return fmt.Errorf("graph already started")
	}
	g.started = true
	g.ready = ready

	var firings []Firing

	// Source stages fire once with an empty tuple and never again.
	for _, st := range g.stages {
		if len(st.def.Inputs) > 0 {
			continue
		}
		firings = append(firings, g.emit(st))
		st.quiesced = true
	}

	// Deliver seeds, then close the fed channels.
	for name, seeds := range g.feeds {
		c := g.channels[name]
		for _, v := range seeds {
			for _, p := range c.ports {
				p.push(v)
			}
		}
		c.closed = true
	}
	firings = append(firings, g.detect()...)
	g.sweepExhausted()

	g.mu.Unlock()

	for _, f := range firings {
		ready(f)
	}
	return nil
}

// Publish delivers a completed firing's outputs onto the stage's output
// channels, in output order, each value in emission order. New firings
// detected downstream are handed to the ready callback before Publish
// returns.
func (g *Graph) Publish(stage string, outputs []values.Output) error {
	g.mu.Lock()
	st, ok := g.byName[stage]
	if !ok {
		g.mu.Unlock()
		return fmt.Errorf("stage %q not found", stage)
	}

	for _, spec := range st.def.Outputs {
		c := g.channels[spec.Channel]
		for _, out := range outputs {
			if out.Name != spec.Name {
				continue
			}
			for _, v := range out.Values {
				for _, p := range c.ports {
					p.push(v)
				}
			}
		}
	}

	firings := g.detect()
	ready := g.ready
	g.mu.Unlock()

	for _, f := range firings {
		ready(f)
	}
	return nil
}

// FiringRetired tells the graph one firing of a stage reached a terminal
// status. When a quiesced stage retires its last firing its output channels
// close, which may cascade further closures downstream.
func (g *Graph) FiringRetired(stage string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, ok := g.byName[stage]
	if !ok {
		return fmt.Errorf("stage %q not found", stage)
	}
	if st.inflight <= 0 {
		return fmt.Errorf("stage %q has no in-flight firings", stage)
	}
	st.inflight--
	g.sweepExhausted()
	return nil
}

// StageClosed reports whether the named stage can produce no further
// firings and has none in flight, along with how many firings it emitted.
// Unknown stages report (0, false).
func (g *Graph) StageClosed(stage string) (fired int, closed bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, ok := g.byName[stage]
	if !ok {
		return 0, false
	}
	return st.fired, st.closed
}

// Quiesced reports whether the graph has no possible work left: every stage
// can no longer fire and has no in-flight firings.
func (g *Graph) Quiesced() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, st := range g.stages {
		if !st.quiesced || st.inflight > 0 {
			return false
		}
	}
	return true
}

// Stages returns the stage definitions in registration order.
func (g *Graph) Stages() []*StageDefinition {
	g.mu.Lock()
	defer g.mu.Unlock()

	defs := make([]*StageDefinition, 0, len(g.stages))
	for _, st := range g.stages {
		defs = append(defs, st.def)
	}
	return defs
}

// emit pops one tuple for st and returns the firing. Caller holds g.mu and
// has verified readiness (or the stage has no inputs).
func (g *Graph) emit(st *stageState) Firing {
	f := Firing{Stage: st.def, Index: st.fired}
	for _, p := range st.ports {
		f.Inputs = append(f.Inputs, Binding{Name: p.input, Value: p.pop()})
	}
	st.fired++
	st.inflight++
	return f
}

// detect drains every currently formable tuple, in stage registration
// order, popping values by arrival order per port (zip join).
func (g *Graph) detect() []Firing {
	var firings []Firing
	for _, st := range g.stages {
		if st.quiesced || len(st.def.Inputs) == 0 {
			continue
		}
		for g.canFire(st) {
			firings = append(firings, g.emit(st))
		}
	}
	return firings
}

func (g *Graph) canFire(st *stageState) bool {
	for _, p := range st.ports {
		if p.empty() {
			return false
		}
	}
	return true
}

// sweepExhausted quiesces stages that can never fire again and closes the
// outputs of quiesced stages with nothing in flight, iterating until the
// cascade settles.
func (g *Graph) sweepExhausted() {
	for changed := true; changed; {
		changed = false
		for _, st := range g.stages {
			if !st.quiesced && len(st.def.Inputs) > 0 {
				for _, p := range st.ports {
					if p.exhausted() {
						// A zip joint can never form once one
						// input is gone for good.
						st.quiesced = true
						changed = true
						break
					}
				}
			}
			if st.quiesced && st.inflight == 0 && !st.closed {
				st.closed = true
				changed = true
				for _, out := range st.def.Outputs {
					g.channels[out.Channel].closed = true
				}
			}
		}
	}
}
