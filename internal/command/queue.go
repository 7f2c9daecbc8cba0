package command

import (
	"sync"

	"k8s.io/client-go/util/workqueue"

	"github.com/anvil-platform/simnode/internal/errs"
	"github.com/anvil-platform/simnode/internal/metrics"
	"github.com/anvil-platform/simnode/internal/module"
)

// Queue is the CommandQueue: a hard-bounded FIFO backed by
// k8s.io/client-go/util/workqueue, the same primitive the teacher's
// reconcilers use to serialize work items. Queued commands may not be
// comparable (their Payload is a map), so the workqueue itself only ever
// carries monotonic uint64 sequence numbers; the command bodies live in a
// side table keyed by that sequence number — the same key/object split
// client-go controllers use between a workqueue of keys and an informer
// cache of objects.
type Queue struct {
	mu             sync.Mutex
	wq             workqueue.Interface
	items          map[uint64]module.Command
	maxLen         int
	nextSeq        uint64
	containerLabel string
}

// NewQueue creates a queue with a hard length bound of maxLen pending
// commands.
func NewQueue(containerLabel string, maxLen int) *Queue {
	return &Queue{
		wq:             workqueue.New(),
		items:          make(map[uint64]module.Command),
		maxLen:         maxLen,
		containerLabel: containerLabel,
	}
}

// Enqueue appends cmd to the tail of the queue. Fails with Overflow once
// the queue holds maxLen commands.
func (q *Queue) Enqueue(cmd module.Command) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.maxLen {
		metrics.CommandsRejectedTotal.WithLabelValues(q.containerLabel, "overflow").Inc()
		return errs.Newf(errs.Overflow, "command queue: full at %d commands", q.maxLen)
	}

	seq := q.nextSeq
	q.nextSeq++
	q.items[seq] = cmd
	q.wq.Add(seq)

	metrics.CommandsEnqueuedTotal.WithLabelValues(q.containerLabel, cmd.Name).Inc()
	metrics.CommandQueueDepth.WithLabelValues(q.containerLabel).Set(float64(len(q.items)))
	return nil
}

// Len reports the number of commands currently waiting to be drained.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain removes and returns up to max commands in FIFO order. Intended to
// be called once per tick by GameLoop.
func (q *Queue) Drain(max int) []module.Command {
	var out []module.Command
	for i := 0; i < max; i++ {
		q.mu.Lock()
		empty := len(q.items) == 0
		q.mu.Unlock()
		if empty {
			break
		}

		seqAny, shutdown := q.wq.Get()
		if shutdown {
			break
		}
		seq := seqAny.(uint64)

		q.mu.Lock()
		cmd, ok := q.items[seq]
		if ok {
			out = append(out, cmd)
			delete(q.items, seq)
		}
		depth := len(q.items)
		q.mu.Unlock()

		q.wq.Done(seqAny)
		metrics.CommandQueueDepth.WithLabelValues(q.containerLabel).Set(float64(depth))
	}
	return out
}

// ShutDown releases the underlying workqueue's resources. Called once
// when the owning container stops.
func (q *Queue) ShutDown() {
	q.wq.ShutDown()
}
