// Package workerpool implements a sharded goroutine pool used by the
// reactor dispatcher to execute per-reactor drain batches. Adapted from the
// teacher's internal/workerpool package: the idle-worker cache (two
// lock-free fast-path slots plus a mutex-guarded slow path) and the
// passivation-of-idle-workers cleanup loop are kept. Work is submitted only
// through SubmitToShard, so the dispatcher can hash a reactor id onto a
// consistent shard without needing true per-reactor worker pinning; there
// is no random-shard submit path.
package workerpool

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tessel-systems/reactor/internal/backoff"
)

const (
	maxShards = 128

	workerStateIdle    int32 = 0
	workerStateWorking int32 = 1
	workerStateClosed  int32 = 2
)

// Option configures a Pool.
type Option func(*Pool)

// WithNumShards sets the number of shards, clamped to [1, maxShards].
func WithNumShards(n int) Option {
	return func(p *Pool) {
		if n > maxShards {
			n = maxShards
		}
		if n < 1 {
			n = 1
		}
		p.numShards = n
	}
}

// WithPassivateAfter sets the idle-worker cleanup interval.
func WithPassivateAfter(d time.Duration) Option {
	return func(p *Pool) { p.passivateAfter = d }
}

// Pool manages a fixed number of shards, each with its own pool of
// goroutine workers.
type Pool struct {
	numShards      int
	passivateAfter time.Duration
	shards         []*shard
	mu             sync.RWMutex
	started        atomic.Bool
	stopped        atomic.Bool
	spawned        atomic.Uint64
	stopCh         chan struct{}
}

// worker is a goroutine that pulls tasks off workChan until closed.
type worker struct {
	workChan chan func()
	sh       *shard
	lastUsed atomic.Int64
	deleted  atomic.Bool
	state    atomic.Int32
}

type shard struct {
	pool        *Pool
	workers     sync.Pool
	idleWorkers []*worker
	idleFast1   atomic.Pointer[worker]
	idleFast2   atomic.Pointer[worker]
	mu          sync.Mutex
	stopped     atomic.Bool
}

// New creates a Pool. Call Start before submitting work.
func New(opts ...Option) *Pool {
	p := &Pool{numShards: 1, passivateAfter: time.Second, stopCh: make(chan struct{})}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NumShards returns the number of shards the pool was configured with.
func (p *Pool) NumShards() int { return p.numShards }

// SpawnedWorkers reports how many worker goroutines are currently alive.
func (p *Pool) SpawnedWorkers() int { return int(p.spawned.Load()) }

// Start initializes shards and begins the idle-worker cleanup routine.
// Safe to call more than once.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started.Load() {
		return
	}
	p.shards = make([]*shard, p.numShards)
	for i := range p.shards {
		p.shards[i] = &shard{
			pool:        p,
			workers:     sync.Pool{New: func() any { return &worker{workChan: make(chan func())} }},
			idleWorkers: make([]*worker, 0, 256),
		}
	}
	p.started.Store(true)
	go p.cleanup()
}

// Stop closes every worker channel across every shard. Idempotent.
func (p *Pool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started.Load() || p.stopped.Swap(true) {
		return
	}
	close(p.stopCh)
	for _, sh := range p.shards {
		sh.mu.Lock()
		sh.stopped.Store(true)
		for _, w := range sh.idleWorkers {
			closeWorker(w)
		}
		sh.idleWorkers = sh.idleWorkers[:0]
		if w := sh.idleFast1.Swap(nil); w != nil {
			closeWorker(w)
		}
		if w := sh.idleFast2.Swap(nil); w != nil {
			closeWorker(w)
		}
		sh.mu.Unlock()
	}
}

func closeWorker(w *worker) {
	if !w.deleted.Swap(true) {
		w.state.Store(workerStateClosed)
		close(w.workChan)
	}
}

// ShardIndex maps an arbitrary hash to a shard index in range.
func (p *Pool) ShardIndex(hash uint32) int {
	return int(hash % uint32(p.numShards))
}

// SubmitToShard hands task to the given shard, acquiring or spawning a
// worker as needed. If the pool is stopped, the task is dropped.
func (p *Pool) SubmitToShard(shardIndex int, task func()) {
	p.mu.RLock()
	if !p.started.Load() || p.stopped.Load() {
		p.mu.RUnlock()
		return
	}
	sh := p.shards[shardIndex]
	p.mu.RUnlock()
	sh.acquire(task)
}

func (sh *shard) acquire(task func()) {
	if w := sh.idleFast1.Swap(nil); w != nil {
		if !w.deleted.Load() && w.state.CompareAndSwap(workerStateIdle, workerStateWorking) {
			w.workChan <- task
			return
		}
		if !w.deleted.Load() {
			sh.setIdle(w)
		}
	}
	if w := sh.idleFast2.Swap(nil); w != nil {
		if !w.deleted.Load() && w.state.CompareAndSwap(workerStateIdle, workerStateWorking) {
			w.workChan <- task
			return
		}
		if !w.deleted.Load() {
			sh.setIdle(w)
		}
	}

	sh.mu.Lock()
	if sh.stopped.Load() {
		sh.mu.Unlock()
		return
	}
	if n := len(sh.idleWorkers); n > 0 {
		w := sh.idleWorkers[n-1]
		sh.idleWorkers[n-1] = nil
		sh.idleWorkers = sh.idleWorkers[:n-1]
		sh.mu.Unlock()
		if !w.deleted.Load() && w.state.CompareAndSwap(workerStateIdle, workerStateWorking) {
			w.workChan <- task
		}
		return
	}
	sh.mu.Unlock()

	w := sh.workers.Get().(*worker)
	w.sh = sh
	if w.workChan == nil {
		w.workChan = make(chan func())
	}
	w.state.Store(workerStateWorking)
	w.deleted.Store(false)
	go w.run()
	w.workChan <- task
}

func (w *worker) run() {
	sh := w.sh
	sh.pool.spawned.Add(1)
	for task := range w.workChan {
		task()
		w.state.Store(workerStateIdle)
		if !sh.setIdle(w) {
			break
		}
	}
	sh.pool.spawned.Add(^uint64(0))
	sh.workers.Put(w)
}

func (sh *shard) setIdle(w *worker) bool {
	w.lastUsed.Store(time.Now().UnixNano())
	if sh.stopped.Load() {
		return false
	}
	if sh.idleFast1.CompareAndSwap(nil, w) {
		return true
	}
	if sh.idleFast2.CompareAndSwap(nil, w) {
		return true
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.stopped.Load() {
		return false
	}
	sh.idleWorkers = append(sh.idleWorkers, w)
	return true
}

// cleanup periodically retires idle workers that have sat unused for longer
// than passivateAfter, using an increasing-backoff pauser so an idle pool
// doesn't wake up on a fixed tight interval.
func (p *Pool) cleanup() {
	pauser := backoff.New(p.passivateAfter, p.passivateAfter*8)
	for {
		select {
		case <-p.stopCh:
			return
		default:
		}
		pauser.Pause()
		cutoff := time.Now().UnixNano() - p.passivateAfter.Nanoseconds()
		any := false
		for _, sh := range p.shards {
			any = sh.retireOlderThan(cutoff) || any
		}
		if any {
			pauser.Reset()
		}
	}
}

func (sh *shard) retireOlderThan(cutoff int64) bool {
	sh.mu.Lock()
	if sh.stopped.Load() || len(sh.idleWorkers) <= 64 {
		sh.mu.Unlock()
		return false
	}
	kept := sh.idleWorkers[:0]
	var retired []*worker
	for _, w := range sh.idleWorkers {
		if w.lastUsed.Load() < cutoff {
			retired = append(retired, w)
			continue
		}
		kept = append(kept, w)
	}
	sh.idleWorkers = kept
	sh.mu.Unlock()

	for _, w := range retired {
		closeWorker(w)
	}
	return len(retired) > 0
}
