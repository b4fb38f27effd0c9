package sim

import "sync"

const (
	commandQueueDepthMetricKey    = "sim_command_queue_depth"
	commandQueueRejectedMetricKey = "sim_command_queue_rejected_total"
)

// CommandBuffer is the staging queue between the session goroutines and the
// tick loop. Producers push concurrently; the loop drains everything at the
// top of a tick. Capacity is fixed at construction, and a full queue rejects
// the push rather than block a session.
type CommandBuffer struct {
	mu      sync.Mutex
	slots   []Command
	start   int
	length  int
	metrics telemetryMetrics
}

type telemetryMetrics interface {
	Add(string, uint64)
	Store(string, uint64)
}

// NewCommandBuffer sizes the queue. Anything below one slot is clamped up.
func NewCommandBuffer(capacity int, metrics telemetryMetrics) *CommandBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &CommandBuffer{
		slots:   make([]Command, capacity),
		metrics: metrics,
	}
}

// Capacity reports the fixed slot count.
func (b *CommandBuffer) Capacity() int {
	if b == nil {
		return 0
	}
	return len(b.slots)
}

// Push stages one command. It reports false, and counts the rejection, when
// every slot is occupied.
func (b *CommandBuffer) Push(cmd Command) bool {
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.length == len(b.slots) {
		if b.metrics != nil {
			b.metrics.Add(commandQueueRejectedMetricKey, 1)
		}
		return false
	}
	b.slots[(b.start+b.length)%len(b.slots)] = cmd
	b.length++
	b.recordDepthLocked()
	return true
}

// Drain hands back every staged command in arrival order and empties the
// queue.
func (b *CommandBuffer) Drain() []Command {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.length == 0 {
		return nil
	}
	out := make([]Command, b.length)
	for i := range out {
		out[i] = b.slots[(b.start+i)%len(b.slots)]
	}
	b.start = (b.start + b.length) % len(b.slots)
	b.length = 0
	b.recordDepthLocked()
	return out
}

// Len reports how many commands are currently staged.
func (b *CommandBuffer) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.length
}

func (b *CommandBuffer) recordDepthLocked() {
	if b.metrics == nil {
		return
	}
	b.metrics.Store(commandQueueDepthMetricKey, uint64(b.length))
}
