package reactor

import (
	"hash/fnv"
	"time"

	"github.com/tessel-systems/reactor/internal/workerpool"
	"github.com/tessel-systems/reactor/log"
)

// Dispatcher owns the worker pool and cooperatively schedules reactors with
// pending work onto it (spec.md §4.3). Grounded on internal/workerpool's
// sharded idle-worker-cache pool; the affinity/at-most-one-worker
// invariant is enforced here via Context.acquireScheduling, not by the
// pool itself.
type Dispatcher struct {
	pool      *workerpool.Pool
	batchSize int
	logger    log.Logger
}

func newDispatcher(logger log.Logger, shards, batchSize int, idleTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		pool: workerpool.New(
			workerpool.WithNumShards(shards),
			workerpool.WithPassivateAfter(idleTimeout),
		),
		batchSize: batchSize,
		logger:    logger,
	}
}

func (d *Dispatcher) start() { d.pool.Start() }
func (d *Dispatcher) stop()  { d.pool.Stop() }

// Schedule implements dispatch(context) (spec.md §4.3):
//  1. If context.acquireScheduling() fails, another worker already owns
//     this context and will observe the new mailbox contents when it
//     loop-checks before releasing; return.
//  2. Otherwise enqueue the context onto its worker-affine shard.
func (d *Dispatcher) Schedule(c *Context) {
	if c.IsTerminated() {
		return
	}
	if !c.acquireScheduling() {
		return
	}
	d.pool.SubmitToShard(d.shardFor(c.id), func() { d.drain(c) })
}

// shardFor hashes a reactor id onto a shard index so that a given
// reactor's consecutive dispatches tend to land on the same shard
// (worker-affine scheduling, spec.md §4.3).
func (d *Dispatcher) shardFor(id ID) int {
	h := fnv.New32a()
	_, _ = h.Write(id.UUID[:])
	return d.pool.ShardIndex(h.Sum32())
}

// drain is the worker-loop body: drain up to batchSize messages, invoke
// reAct per message, then either re-enqueue (more work arrived), begin
// termination (stop flag raised and mailbox empty), or release and finish.
func (d *Dispatcher) drain(c *Context) {
	batch := c.mailbox.DequeueBatch(d.batchSize)
	for _, msg := range batch {
		c.reAct(msg)
	}

	c.releaseScheduling()

	if !c.mailbox.IsEmpty() {
		d.Schedule(c)
		return
	}

	if c.isStop() {
		d.beginTermination(c)
	}
}

// beginTermination implements spec.md §4.3 step 4: recursively stop
// children, await their hierarchy completions, deliver ReActorStop,
// unregister the context, and complete hierarchyTermination.
func (d *Dispatcher) beginTermination(c *Context) {
	if !c.acquireScheduling() {
		// Another worker is already mid-drain for this context (e.g. a
		// message arrived between the IsEmpty check and here); it will
		// observe the stop flag on its own next drain and retry
		// termination.
		return
	}
	defer c.releaseScheduling()

	ctx := noCancelContext()
	children := c.Children()
	for _, child := range children {
		if childCtx, ok := c.system.Lookup(child.ReactorID); ok {
			completion, err := childCtx.Stop()
			if err != nil && err != ErrAlreadyStopping {
				d.logger.Warnf("stopping child %s of %s: %v", child.ReactorID, c.id, err)
			}
			if err := completion.Await(ctx); err != nil {
				d.logger.Warnf("awaiting termination of child %s: %v", child.ReactorID, err)
			}
		}
		c.removeChild(child.ReactorID)
	}

	c.reAct(NewMessage(0, NoSender, c.Self(), AckNone, ReActorStop{}))
	c.system.unregister(c.id)
	c.mailbox.Dispose()
	c.hierarchyTermination.Complete(nil)
}
