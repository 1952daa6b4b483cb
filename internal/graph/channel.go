package graph

import (
	"github.com/flowrun-io/flowrun/internal/values"
)

// Channel is an ordered conduit between one producer and any number of
// consumer stages. Delivery is FIFO in emission order; a consumer with
// multiple peers does not steal values from them, every consumer port sees
// the full sequence. Close is terminal and propagates once buffers drain.
//
// Channels are owned by the Graph; stages hold references only. All
// mutation goes through Graph methods, which serialize access.
type Channel struct {
	name     string
	producer string // producing stage name, or feedProducer
	ports    []*port
	closed   bool
}

// feedProducer marks a channel seeded externally rather than by a stage.
const feedProducer = "<feed>"

// Name returns the channel's graph-unique name.
func (c *Channel) Name() string {
	return c.name
}

// Closed reports whether the producer side has closed the channel.
// Buffered values remain deliverable after close.
func (c *Channel) Closed() bool {
	return c.closed
}

// port is one consumer stage's FIFO view of a channel. Values are popped by
// arrival order when the owning stage fires.
type port struct {
	channel *Channel
	stage   *StageDefinition
	input   string // input name on the consuming stage
	buf     []values.Value
}

func (p *port) push(v values.Value) {
	p.buf = append(p.buf, v)
}

func (p *port) pop() values.Value {
	v := p.buf[0]
	p.buf = p.buf[1:]
	return v
}

func (p *port) empty() bool {
	return len(p.buf) == 0
}

// exhausted reports that this port can never deliver again: the channel is
// closed and the buffer is drained.
func (p *port) exhausted() bool {
	return p.channel.closed && len(p.buf) == 0
}
