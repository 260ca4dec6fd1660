package reactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterceptRules_ObservesMatchingMessages(t *testing.T) {
	rules := newInterceptRules()
	observer := newRecordingHandle()
	observerRef := refWithHandle("observer", observer)

	rules.Set([]InterceptRule{
		{
			Predicate:   func(msg *Message) bool { return msg.Payload == "watched" },
			Destination: observerRef,
		},
	})

	rules.Observe(NewMessage(1, NoSender, NoSender, AckNone, "watched"))
	rules.Observe(NewMessage(2, NoSender, NoSender, AckNone, "ignored"))

	received := observer.messages()
	require.Len(t, received, 1)
	assert.Equal(t, "watched", received[0].Payload)
}

func TestInterceptRules_SetReplacesWholesale(t *testing.T) {
	rules := newInterceptRules()
	first := newRecordingHandle()
	rules.Set([]InterceptRule{{Predicate: func(*Message) bool { return true }, Destination: refWithHandle("a", first)}})

	second := newRecordingHandle()
	rules.Set([]InterceptRule{{Predicate: func(*Message) bool { return true }, Destination: refWithHandle("b", second)}})

	rules.Observe(NewMessage(1, NoSender, NoSender, AckNone, "x"))

	assert.Empty(t, first.messages())
	assert.Len(t, second.messages(), 1)
}

func TestInterceptRules_SkipsRulesWithNilDriver(t *testing.T) {
	rules := newInterceptRules()
	rules.Set([]InterceptRule{{Predicate: func(*Message) bool { return true }, Destination: NoSender}})

	assert.NotPanics(t, func() {
		rules.Observe(NewMessage(1, NoSender, NoSender, AckNone, "x"))
	})
}
