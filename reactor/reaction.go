package reactor

import "reflect"

// Handler processes one message for a reactor. It is the only code
// permitted to call Reply/SelfTell/SpawnChild/Stop on the ReceiveContext
// it's given — those calls mutate state that only makes sense from within
// the reactor's own dispatch turn (spec.md §4.2).
type Handler func(ctx *ReceiveContext)

// ReactionTable maps a payload's concrete type to the Handler that
// processes it, with a wildcard fallback for unmapped types. Grounded on
// the teacher's type-switch dispatch in actor/pid.go's process/handleReceived
// pair, generalized here into an explicit table (spec.md §9 calls for a
// "tagged-message model... precomputing the tag at send time" — the type
// itself is the tag, computed once via reflect.TypeOf at registration and
// again, cheaply, at dispatch time).
type ReactionTable struct {
	handlers map[reflect.Type]Handler
	wildcard Handler
}

// NewReactionTable creates an empty table. Use On to register handlers and
// OnUnhandled to set the wildcard fallback.
func NewReactionTable() *ReactionTable {
	return &ReactionTable{handlers: make(map[reflect.Type]Handler)}
}

// On registers handler for every message whose payload has the same
// concrete type as sample. sample is used only for its type; its value is
// discarded.
func (t *ReactionTable) On(sample any, handler Handler) *ReactionTable {
	t.handlers[reflect.TypeOf(sample)] = handler
	return t
}

// OnUnhandled sets the wildcard handler invoked when no registered type
// matches. If unset, unmatched messages are silently dropped (after being
// logged as unhandled by the dispatcher).
func (t *ReactionTable) OnUnhandled(handler Handler) *ReactionTable {
	t.wildcard = handler
	return t
}

// Lookup returns the handler registered for payload's concrete type, or
// the wildcard handler if none matches, or (nil, false) if neither exists.
func (t *ReactionTable) Lookup(payload any) (Handler, bool) {
	if h, ok := t.handlers[reflect.TypeOf(payload)]; ok {
		return h, true
	}
	if t.wildcard != nil {
		return t.wildcard, true
	}
	return nil, false
}
