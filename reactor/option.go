package reactor

import (
	"time"

	"github.com/tessel-systems/reactor/log"
)

// Option configures a System at construction time. Grounded on
// actor/option.go's Option/OptionFunc pattern.
type Option interface {
	apply(*System)
}

type optionFunc func(*System)

func (f optionFunc) apply(s *System) { f(s) }

// WithLogger sets the System's logger. Defaults to log.New().
func WithLogger(logger log.Logger) Option {
	return optionFunc(func(s *System) { s.logger = logger })
}

// WithWorkerShards sets the dispatcher's worker-pool shard count.
func WithWorkerShards(n int) Option {
	return optionFunc(func(s *System) { s.workerShards = n })
}

// WithDispatchBatchSize sets the max number of messages the dispatcher
// drains from one context's mailbox per worker turn.
func WithDispatchBatchSize(n int) Option {
	return optionFunc(func(s *System) { s.dispatchBatch = n })
}

// WithWorkerIdleTimeout sets how long an idle dispatcher worker goroutine
// may sit before being retired.
func WithWorkerIdleTimeout(d time.Duration) Option {
	return optionFunc(func(s *System) { s.workerIdleTimeout = d })
}

// SpawnOption configures an individual reactor at spawn time.
type SpawnOption interface {
	apply(*spawnConfig)
}

type spawnConfig struct {
	mailbox Mailbox
}

type spawnOptionFunc func(*spawnConfig)

func (f spawnOptionFunc) apply(c *spawnConfig) { f(c) }

// WithMailbox overrides the default UnboundedMailbox for this reactor.
func WithMailbox(mailbox Mailbox) SpawnOption {
	return spawnOptionFunc(func(c *spawnConfig) { c.mailbox = mailbox })
}
