package reactor

import "sync"

// recordingHandle is a DriverHandle stand-in that records every message it
// receives instead of delivering anywhere, for tests that need a Ref with
// a non-nil Driver but no real reactor behind it (intercept observation
// targets, fabricated senders).
type recordingHandle struct {
	mu       sync.Mutex
	received []*Message
}

func newRecordingHandle() *recordingHandle {
	return &recordingHandle{}
}

func (h *recordingHandle) Deliver(msg *Message) (DeliveryStatus, error) {
	h.mu.Lock()
	h.received = append(h.received, msg)
	h.mu.Unlock()
	return Delivered, nil
}

func (h *recordingHandle) DeliverAsync(msg *Message) (*Future, error) {
	status, err := h.Deliver(msg)
	f := NewFuture()
	f.Complete(status, err)
	return f, nil
}

func (h *recordingHandle) messages() []*Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Message, len(h.received))
	copy(out, h.received)
	return out
}

func refWithHandle(name string, handle DriverHandle) Ref {
	return Ref{ReactorID: NewID(name), SystemID: NewSystemID("test"), ChannelID: localChannelID, Driver: handle}
}
