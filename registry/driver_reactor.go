package registry

import (
	"context"
	"sync"

	"go.uber.org/atomic"

	"github.com/tessel-systems/reactor/log"
	"github.com/tessel-systems/reactor/reactor"
)

// driverChild wraps one RegistryDriver as a reactor spawned under the
// Remoting Root (spec.md §4.6: "A system reactor whose children are one or
// more registry drivers"). It owns the driver's lifecycle goroutines
// (init/register, the Watch translation loop) and reacts to the wire
// messages the Remoting Root sends it, calling the underlying
// RegistryDriver method for each.
//
// Grounded on actor/dead_letter.go's shape of "a system reactor built from
// a plain ReactionTable with no exported handler surface beyond spawn" —
// generalized here to wrap an arbitrary RegistryDriver instead of a fixed
// behavior.
type driverChild struct {
	driver        RegistryDriver
	logger        log.Logger
	localSystemID string

	watching    atomic.Bool
	watchMu     sync.Mutex
	cancelWatch context.CancelFunc
}

// spawnDriverReactor spawns d as a child of parent, wired with the
// reaction table spec.md §4.6 implies for a registry-driver child:
// bootstrap on init, subscribe on request, publish on request, forward
// Watch events upward, and clean up on stop.
func spawnDriverReactor(parent *reactor.Context, localSystemID string, d RegistryDriver, logger log.Logger) (*reactor.Context, error) {
	dc := &driverChild{driver: d, logger: logger.With("driver", d.ID()), localSystemID: localSystemID}

	reactions := reactor.NewReactionTable().
		On(reactor.ReActorInit{}, dc.onInit).
		On(SynchronizationWithServiceRegistryRequest{}, dc.onSyncRequest).
		On(ReActorSystemChannelIdPublicationRequest{}, dc.onPublishChannel).
		On(ServiceServicePublicationRequest{}, dc.onPublishService).
		On(ServiceCancellationRequest{}, dc.onCancelService).
		On(reactor.ReActorStop{}, dc.onStop)

	return parent.SpawnChild(d.ID(), reactions)
}

// onInit initializes and registers the underlying driver off the dispatch
// path: Initialize/Register may block on network I/O, which spec.md §5
// forbids on a worker thread. Failure here is logged and fatal to this
// driver only (spec.md §7 rule 4) — the driver child simply never sends
// RegistryDriverInitComplete, so the Remoting Root never bootstraps it.
func (dc *driverChild) onInit(rc *reactor.ReceiveContext) {
	self := rc.Context()
	parent := self.Parent()

	go func() {
		ctx := context.Background()
		if err := dc.driver.Initialize(ctx); err != nil {
			dc.logger.Errorf("initializing registry driver: %v", err)
			return
		}
		if err := dc.driver.Register(ctx); err != nil {
			dc.logger.Errorf("registering with registry backend: %v", err)
			return
		}
		if _, err := self.Tell(parent, RegistryDriverInitComplete{DriverID: dc.driver.ID()}); err != nil {
			dc.logger.Warnf("sending RegistryDriverInitComplete: %v", err)
		}
	}()
}

// onSyncRequest starts the Watch translation loop the first time it is
// asked to (self-heal re-sends of RegistrySubscriptionComplete come from
// the root, not repeated calls of this handler, so "at most once" holds in
// the normal flow; watching guards it regardless).
func (dc *driverChild) onSyncRequest(rc *reactor.ReceiveContext) {
	if !dc.watching.CompareAndSwap(false, true) {
		return
	}

	self := rc.Context()
	parent := self.Parent()

	watchCtx, cancel := context.WithCancel(context.Background())
	dc.watchMu.Lock()
	dc.cancelWatch = cancel
	dc.watchMu.Unlock()

	events, err := dc.driver.Watch(watchCtx)
	if err != nil {
		dc.logger.Errorf("opening watch stream: %v", err)
		cancel()
		dc.watching.Store(false)
		return
	}

	go dc.translateEvents(self, parent, watchCtx, events)

	if _, err := self.Tell(parent, RegistrySubscriptionComplete{DriverID: dc.driver.ID()}); err != nil {
		dc.logger.Warnf("sending RegistrySubscriptionComplete: %v", err)
	}
}

// translateEvents forwards every Event off the driver's Watch stream to
// the Remoting Root as the matching wire message, until watchCtx is done
// or the stream closes.
func (dc *driverChild) translateEvents(self *reactor.Context, parent reactor.Ref, watchCtx context.Context, events <-chan Event) {
	for {
		select {
		case <-watchCtx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch e := ev.(type) {
			case GateUpserted:
				if _, err := self.Tell(parent, RegistryGateUpserted{SystemID: e.SystemID, ChannelID: e.ChannelID, ChannelData: e.ChannelData}); err != nil {
					dc.logger.Warnf("forwarding gate upsert: %v", err)
				}
			case GateRemoved:
				if _, err := self.Tell(parent, RegistryGateRemoved{SystemID: e.SystemID, ChannelID: e.ChannelID}); err != nil {
					dc.logger.Warnf("forwarding gate removal: %v", err)
				}
			}
		}
	}
}

// onPublishChannel implements the write side of
// ReActorSystemChannelIdPublicationRequest: publish one local channel to
// the backend this driver fronts.
func (dc *driverChild) onPublishChannel(rc *reactor.ReceiveContext) {
	req := rc.Payload().(ReActorSystemChannelIdPublicationRequest)
	if err := dc.driver.PublishChannel(context.Background(), req.SystemID, req.ChannelID, req.Properties); err != nil {
		dc.logger.Warnf("publishing channel %s: %v", req.ChannelID, err)
	}
}

// onPublishService implements the write side of
// ServiceServicePublicationRequest, reporting failure back to the root as
// RegistryServicePublicationFailed.
func (dc *driverChild) onPublishService(rc *reactor.ReceiveContext) {
	req := rc.Payload().(ServiceServicePublicationRequest)
	if err := dc.driver.PublishService(context.Background(), req.ServiceGate, req.ServiceProperties); err != nil {
		if _, sendErr := rc.Tell(rc.Context().Parent(), RegistryServicePublicationFailed{ServiceName: req.ServiceGate, Cause: err}); sendErr != nil {
			dc.logger.Warnf("reporting service publication failure: %v", sendErr)
		}
	}
}

// onCancelService implements the write side of ServiceCancellationRequest.
func (dc *driverChild) onCancelService(rc *reactor.ReceiveContext) {
	req := rc.Payload().(ServiceCancellationRequest)
	if err := dc.driver.CancelService(context.Background(), req.ServiceGate); err != nil {
		dc.logger.Warnf("cancelling service %s: %v", req.ServiceGate, err)
	}
}

// onStop cancels the Watch loop and releases the underlying driver's
// resources.
func (dc *driverChild) onStop(rc *reactor.ReceiveContext) {
	dc.watchMu.Lock()
	if dc.cancelWatch != nil {
		dc.cancelWatch()
	}
	dc.watchMu.Unlock()

	if err := dc.driver.Close(context.Background()); err != nil {
		dc.logger.Warnf("closing registry driver: %v", err)
	}
}
