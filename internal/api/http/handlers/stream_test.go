package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnqueueLatestKeepsNewestWhenFull(t *testing.T) {
	updates := make(chan []byte, 3)
	for _, p := range []string{"a", "b", "c", "d", "e"} {
		enqueueLatest(updates, []byte(p))
	}

	var got []string
	for len(updates) > 0 {
		got = append(got, string(<-updates))
	}
	// The oldest entries are evicted; the newest always survives.
	assert.Equal(t, []string{"c", "d", "e"}, got)
}

func TestEnqueueLatestDoesNotBlockWhenSpaceExists(t *testing.T) {
	updates := make(chan []byte, 2)
	enqueueLatest(updates, []byte("a"))

	assert.Len(t, updates, 1)
	assert.Equal(t, "a", string(<-updates))
}
