package reactor

// ReceiveContext is the per-message handle passed to a Handler. Only code
// running inside a Handler invocation may use it — it is not safe to retain
// and use from another goroutine (spec.md §4.2: "Handlers are the only
// code that may call reply, spawnChild, stop, etc., within the current
// reactor identity").
type ReceiveContext struct {
	message *Message
	owner   *Context
}

// Message returns the envelope being handled.
func (rc *ReceiveContext) Message() *Message { return rc.message }

// Payload is shorthand for Message().Payload.
func (rc *ReceiveContext) Payload() any { return rc.message.Payload }

// Sender returns the source ref of the message being handled.
func (rc *ReceiveContext) Sender() Ref { return rc.message.Source }

// Self returns the owning reactor's own reference.
func (rc *ReceiveContext) Self() Ref { return rc.owner.Self() }

// Context returns the owning reactor's full runtime Context, for handlers
// that need direct access to children, intercepts, etc.
func (rc *ReceiveContext) Context() *Context { return rc.owner }

// Reply sends payload back to the sender of the message being handled.
func (rc *ReceiveContext) Reply(payload any) (DeliveryStatus, error) {
	return rc.owner.send(rc.message.Source, AckNone, payload)
}

// Tell sends payload from the owning reactor to destination.
func (rc *ReceiveContext) Tell(destination Ref, payload any) (DeliveryStatus, error) {
	return rc.owner.Tell(destination, payload)
}

// SelfTell sends payload to the owning reactor's own reference.
func (rc *ReceiveContext) SelfTell(payload any) (DeliveryStatus, error) {
	return rc.owner.SelfTell(payload)
}

// SpawnChild spawns a new reactor as a child of the owning reactor.
func (rc *ReceiveContext) SpawnChild(name string, reactions *ReactionTable, opts ...SpawnOption) (*Context, error) {
	return rc.owner.SpawnChild(name, reactions, opts...)
}

// Stop raises the owning reactor's stop flag.
func (rc *ReceiveContext) Stop() (*Completion, error) {
	return rc.owner.Stop()
}
