package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFeed_DeliversInOrderWithoutAReader(t *testing.T) {
	f := newFeed()
	for i := 0; i < 100; i++ {
		f.publish(Event{Type: EventProgressUpdated, Progress: i})
	}
	f.close()

	var got []int
	for e := range f.out {
		got = append(got, e.Progress)
	}

	assert.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestFeed_CloseWithEmptyQueue(t *testing.T) {
	f := newFeed()
	f.close()

	_, ok := <-f.out
	assert.False(t, ok)
}
