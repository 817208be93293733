package frame

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

type fakeFence struct {
	name      string
	log       *[]string
	waitErr   error
	signalErr error
}

func (f *fakeFence) Signal() error {
	*f.log = append(*f.log, "signal "+f.name)
	return f.signalErr
}

func (f *fakeFence) Wait(timeout uint64) error {
	*f.log = append(*f.log, "wait "+f.name)
	return f.waitErr
}

func (f *fakeFence) Reset() error {
	*f.log = append(*f.log, "reset "+f.name)
	return nil
}

func newTestPacer(log *[]string) (*Pacer, []*fakeFence) {
	fences := []*fakeFence{{name: "0", log: log}, {name: "1", log: log}}
	p := NewPacer([]Fence{fences[0], fences[1]})
	return p, fences
}

func TestPacerRotatesSlots(t *testing.T) {
	var log []string
	p, _ := newTestPacer(&log)
	require.Equal(t, metadata.MaxFramesInFlight, p.Slots())

	var order []int
	for i := 0; i < 5; i++ {
		slot, err := p.Acquire()
		require.NoError(t, err)
		order = append(order, slot.Index)
		require.NoError(t, p.Submit())
	}

	assert.Equal(t, []int{0, 1, 0, 1, 0}, order)
	assert.Equal(t, []string{"wait 0", "wait 1", "wait 0", "wait 1", "wait 0"}, log)
	assert.Equal(t, uint64(5), p.FrameNumber())
}

func TestPacerRejectsNestedFrames(t *testing.T) {
	var log []string
	p, _ := newTestPacer(&log)

	_, err := p.Acquire()
	require.NoError(t, err)
	_, err = p.Acquire()
	assert.ErrorIs(t, err, ErrFrameInProgress)

	require.NoError(t, p.Submit())
	assert.ErrorIs(t, p.Submit(), ErrNoFrame)
	assert.ErrorIs(t, p.Abandon(), ErrNoFrame)
}

func TestDeferredDestructionWaitsForTheSlotFence(t *testing.T) {
	var log []string
	p, _ := newTestPacer(&log)

	slot, err := p.Acquire()
	require.NoError(t, err)
	p.Defer(func() { log = append(log, "destroy a") })
	assert.Equal(t, 1, slot.Pending())
	require.NoError(t, p.Submit())

	// frame 1 uses the other slot, nothing is destroyed yet
	_, err = p.Acquire()
	require.NoError(t, err)
	require.NoError(t, p.Submit())
	assert.NotContains(t, log, "destroy a")

	// reacquiring slot 0 waits for its fence before destroying
	_, err = p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, []string{"wait 0", "wait 1", "wait 0", "destroy a"}, log)
	assert.Zero(t, slot.Pending())
}

func TestDeferBetweenFrames(t *testing.T) {
	var log []string
	p, _ := newTestPacer(&log)

	destroyed := 0
	p.Defer(func() { destroyed++ })
	assert.Equal(t, 1, destroyed, "nothing in flight")

	_, err := p.Acquire()
	require.NoError(t, err)
	require.NoError(t, p.Submit())

	p.Defer(func() { destroyed++ })
	assert.Equal(t, 1, destroyed)

	p.Flush()
	assert.Equal(t, 2, destroyed)
}

func TestAbandonKeepsSlotNext(t *testing.T) {
	var log []string
	p, _ := newTestPacer(&log)

	slot, err := p.Acquire()
	require.NoError(t, err)
	require.NoError(t, p.Abandon())
	assert.Zero(t, p.FrameNumber())

	again, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, slot.Index, again.Index)
}

func TestFenceFailureLeavesSlotQueued(t *testing.T) {
	var log []string
	p, fences := newTestPacer(&log)
	fences[0].waitErr = errors.New("device lost")

	_, err := p.Acquire()
	require.Error(t, err)
	assert.Nil(t, p.Current())

	fences[0].waitErr = nil
	slot, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 0, slot.Index)
}

func TestPacerDiscardRestoresFence(t *testing.T) {
	var log []string
	p, _ := newTestPacer(&log)

	slot, err := p.Acquire()
	require.NoError(t, err)
	require.Equal(t, 0, slot.Index)
	require.NoError(t, slot.Fence.Reset())
	// the submission failed, the reset fence would never be signalled
	require.NoError(t, p.Discard())

	again, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 0, again.Index)
	assert.Equal(t, uint64(0), p.FrameNumber())
	assert.Equal(t, []string{"wait 0", "reset 0", "signal 0", "wait 0"}, log)

	require.NoError(t, p.Discard())
	assert.ErrorIs(t, p.Discard(), ErrNoFrame)
}

func TestPacerDiscardRetiresUnrecoverableSlot(t *testing.T) {
	var log []string
	p, fences := newTestPacer(&log)
	fences[0].signalErr = errors.New("device lost")

	_, err := p.Acquire()
	require.NoError(t, err)
	require.Error(t, p.Discard())

	// slot 0 is gone from the rotation instead of blocking the next acquire
	for i := 0; i < 3; i++ {
		slot, err := p.Acquire()
		require.NoError(t, err)
		assert.Equal(t, 1, slot.Index)
		require.NoError(t, p.Submit())
	}
}
