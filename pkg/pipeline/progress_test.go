package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressTracker_StageMapping(t *testing.T) {
	var p progressTracker

	assert.Equal(t, 0, p.advance(p.overall(StateImporting, 0)))
	assert.Equal(t, 15, p.advance(p.overall(StateImporting, 50)))
	assert.Equal(t, 30, p.advance(importCeiling))

	p.bank()
	assert.Equal(t, 30, p.overall(StateDiffing, 0))
	assert.Equal(t, 53, p.advance(p.overall(StateDiffing, 100)))

	p.bank()
	assert.Equal(t, 68, p.advance(p.overall(StateApplying, 100)))
	assert.Equal(t, 100, p.advance(100))
}

func TestProgressTracker_NeverMovesBackwards(t *testing.T) {
	var p progressTracker

	p.advance(40)
	assert.Equal(t, 40, p.advance(10))
	assert.Equal(t, 40, p.advance(-5))
	assert.Equal(t, 100, p.advance(250))

	p.reset()
	assert.Equal(t, 0, p.advance(0))
	assert.Equal(t, 30, p.overall(StateImporting, 400))
}
