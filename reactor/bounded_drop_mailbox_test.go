package reactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundedDropMailbox_EvictsOldestOnOverflow(t *testing.T) {
	mb := NewBoundedDropMailbox(2)

	require.Equal(t, Delivered, mb.Deliver(NewMessage(1, NoSender, NoSender, AckNone, "a")))
	require.Equal(t, Delivered, mb.Deliver(NewMessage(2, NoSender, NoSender, AckNone, "b")))
	require.Equal(t, Backpressured, mb.Deliver(NewMessage(3, NoSender, NoSender, AckNone, "c")))

	assert.EqualValues(t, 2, mb.Len())

	first := mb.Dequeue()
	second := mb.Dequeue()
	assert.Equal(t, "b", first.Payload)
	assert.Equal(t, "c", second.Payload)
	assert.True(t, mb.IsEmpty())
}

func TestBoundedDropMailbox_ClampsMinimumCapacity(t *testing.T) {
	mb := NewBoundedDropMailbox(0)
	assert.Equal(t, 1, mb.capacity)
}

func TestBoundedDropMailbox_DequeueBatch(t *testing.T) {
	mb := NewBoundedDropMailbox(5)
	for i := 1; i <= 4; i++ {
		mb.Deliver(NewMessage(uint64(i), NoSender, NoSender, AckNone, i))
	}

	batch := mb.DequeueBatch(10)
	require.Len(t, batch, 4)
	assert.Equal(t, 1, batch[0].Payload)
	assert.True(t, mb.IsEmpty())
}

func TestBoundedDropMailbox_Dispose(t *testing.T) {
	mb := NewBoundedDropMailbox(3)
	mb.Deliver(NewMessage(1, NoSender, NoSender, AckNone, "x"))
	mb.Dispose()
	assert.True(t, mb.IsEmpty())
	assert.EqualValues(t, 0, mb.Len())
}
