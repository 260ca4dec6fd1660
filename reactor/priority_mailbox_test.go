package reactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type highPriorityPayload struct{}

func (highPriorityPayload) MailboxPriority() Priority { return PriorityHigh }

func TestPriorityMailbox_DrainsHighBeforeNormal(t *testing.T) {
	mb := NewPriorityMailbox()

	mb.Deliver(NewMessage(1, NoSender, NoSender, AckNone, "normal-1"))
	mb.Deliver(NewMessage(2, NoSender, NoSender, AckNone, highPriorityPayload{}))
	mb.Deliver(NewMessage(3, NoSender, NoSender, AckNone, "normal-2"))

	first := mb.Dequeue()
	second := mb.Dequeue()
	third := mb.Dequeue()

	assert.Equal(t, highPriorityPayload{}, first.Payload)
	assert.Equal(t, "normal-1", second.Payload)
	assert.Equal(t, "normal-2", third.Payload)
	assert.True(t, mb.IsEmpty())
}

func TestPriorityMailbox_FIFOWithinLevel(t *testing.T) {
	mb := NewPriorityMailbox()
	for i := 1; i <= 3; i++ {
		mb.Deliver(NewMessage(uint64(i), NoSender, NoSender, AckNone, i))
	}

	batch := mb.DequeueBatch(3)
	require.Len(t, batch, 3)
	assert.Equal(t, 1, batch[0].Payload)
	assert.Equal(t, 2, batch[1].Payload)
	assert.Equal(t, 3, batch[2].Payload)
}

func TestPriorityMailbox_LenAndDispose(t *testing.T) {
	mb := NewPriorityMailbox()
	mb.Deliver(NewMessage(1, NoSender, NoSender, AckNone, highPriorityPayload{}))
	mb.Deliver(NewMessage(2, NoSender, NoSender, AckNone, "normal"))

	assert.EqualValues(t, 2, mb.Len())
	mb.Dispose()
	assert.True(t, mb.IsEmpty())
}
