// Package journal implements the Local Journal Driver (spec.md §4.5/§4.4):
// a bbolt-backed, one-bucket-per-channel append log that gives the driver
// abstraction a durable, position-ordered transport entirely within one
// process — useful standalone, and as the model a remote driver's wire
// format follows.
package journal

import (
	"encoding/binary"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/tessel-systems/reactor/reactor"
)

// envelope is the on-disk representation of a Message: Ref values carry a
// live DriverHandle that cannot be serialized, so the envelope keeps only
// the addressing fields a tailer needs to reconstruct a Ref against the
// local system and driver it is running under.
type envelope struct {
	Sequence        uint64
	SourceReactorID  string
	SourceSystemID   string
	SourceChannel    string
	DestReactorID    string
	DestSystemID     string
	DestChannel      string
	Acking           int
	Payload          []byte
}

// encodeMessage packs msg into its durable wire form. The payload itself is
// msgpack-encoded separately from the envelope so a decode failure on an
// exotic payload type doesn't prevent recovering the envelope's addressing
// fields for logging.
func encodeMessage(msg *reactor.Message) ([]byte, error) {
	payload, err := msgpack.Marshal(msg.Payload)
	if err != nil {
		return nil, err
	}
	env := envelope{
		Sequence:       msg.Sequence,
		SourceReactorID: msg.Source.ReactorID.String(),
		SourceSystemID:  msg.Source.SystemID.String(),
		SourceChannel:   msg.Source.ChannelID.String(),
		DestReactorID:   msg.Destination.ReactorID.String(),
		DestSystemID:    msg.Destination.SystemID.String(),
		DestChannel:     msg.Destination.ChannelID.String(),
		Acking:          int(msg.Acking),
		Payload:         payload,
	}
	return msgpack.Marshal(&env)
}

// decodedEnvelope is what a tailer gets back from decodeMessage: the
// addressing metadata plus the still-encoded payload bytes, since decoding
// the payload into a concrete type requires knowing the expected Go type
// (spec.md leaves payload typing to the application layer).
type decodedEnvelope struct {
	Sequence        uint64
	DestReactorID   string
	SourceReactorID string
	PayloadBytes    []byte
}

func decodeMessage(raw []byte) (*decodedEnvelope, error) {
	var env envelope
	if err := msgpack.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	return &decodedEnvelope{
		Sequence:        env.Sequence,
		DestReactorID:   env.DestReactorID,
		SourceReactorID: env.SourceReactorID,
		PayloadBytes:    env.Payload,
	}, nil
}

// decodePayload decodes the envelope's payload bytes into out, which must
// be a pointer to the type the caller expects for this channel/message
// kind.
func decodePayload(raw []byte, out any) error {
	return msgpack.Unmarshal(raw, out)
}

// sequenceKey renders seq as an 8-byte big-endian key so bbolt's
// lexicographic bucket iteration order equals append order.
func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

func sequenceFromKey(key []byte) uint64 {
	return binary.BigEndian.Uint64(key)
}
