package frame

import (
	"errors"
	"fmt"
	"math"

	"github.com/spaghettifunk/framegraph/engine/containers"
	"github.com/spaghettifunk/framegraph/engine/core"
)

var (
	ErrFrameInProgress = errors.New("a frame is already being recorded")
	ErrNoFrame         = errors.New("no frame is being recorded")
)

// Fence is signalled by the GPU when the work submitted with it completes.
type Fence interface {
	// Wait blocks until the fence is signalled or timeout nanoseconds elapsed.
	Wait(timeout uint64) error
	Reset() error
}

// Signaler is implemented by fences that can be put back in the signalled
// state without GPU work.
type Signaler interface {
	Signal() error
}

// Slot is the per frame-in-flight state: the fence guarding it and the
// objects waiting to be destroyed once the GPU is done with it.
type Slot struct {
	Index       int
	Fence       Fence
	destructors []func()
}

func (s *Slot) drain() int {
	n := len(s.destructors)
	for _, destroy := range s.destructors {
		destroy()
	}
	s.destructors = s.destructors[:0]
	return n
}

// Pending is the number of destructions queued on the slot.
func (s *Slot) Pending() int {
	return len(s.destructors)
}

// Pacer bounds the number of frames the CPU records ahead of the GPU and
// delays destruction of GPU objects until no frame in flight can use them.
type Pacer struct {
	slots         []*Slot
	ready         *containers.RingQueue[int]
	current       *Slot
	lastSubmitted *Slot
	frameNumber   uint64
}

// NewPacer creates a pacer with one slot per fence. Fences must start
// signalled.
func NewPacer(fences []Fence) *Pacer {
	p := &Pacer{
		slots: make([]*Slot, len(fences)),
		ready: containers.NewRingQueue[int](len(fences)),
	}
	for i, f := range fences {
		p.slots[i] = &Slot{Index: i, Fence: f}
		// cannot fail, the queue has room for every slot
		_ = p.ready.Enqueue(i)
	}
	return p
}

// Acquire waits for the oldest slot to be released by the GPU, runs the
// destructions queued on it and returns it as the current frame.
func (p *Pacer) Acquire() (*Slot, error) {
	if p.current != nil {
		return nil, ErrFrameInProgress
	}
	index, err := p.ready.Dequeue()
	if err != nil {
		return nil, fmt.Errorf("no frame slot available: %w", err)
	}
	slot := p.slots[index]
	if err := slot.Fence.Wait(math.MaxUint64); err != nil {
		// keep the slot at the front of the rotation
		p.requeueFront(index)
		return nil, fmt.Errorf("failed to wait for frame %d: %w", index, err)
	}
	if n := slot.drain(); n > 0 {
		core.LogDebug("frame slot %d: destroyed %d deferred object(s)", index, n)
	}
	p.current = slot
	return slot, nil
}

func (p *Pacer) requeueFront(index int) {
	rest := make([]int, 0, p.ready.Len())
	for !p.ready.IsEmpty() {
		v, _ := p.ready.Dequeue()
		rest = append(rest, v)
	}
	_ = p.ready.Enqueue(index)
	for _, v := range rest {
		_ = p.ready.Enqueue(v)
	}
}

// Submit marks the current frame as handed to the GPU.
func (p *Pacer) Submit() error {
	if p.current == nil {
		return ErrNoFrame
	}
	if err := p.ready.Enqueue(p.current.Index); err != nil {
		return err
	}
	p.lastSubmitted = p.current
	p.current = nil
	p.frameNumber++
	return nil
}

// Abandon releases the current frame without submitting it, for instance
// when the swapchain had to be recreated.
func (p *Pacer) Abandon() error {
	if p.current == nil {
		return ErrNoFrame
	}
	p.requeueFront(p.current.Index)
	p.current = nil
	return nil
}

// Discard releases the current frame after its fence was reset but the
// submission that would have signalled it failed. The fence is restored
// through Signaler; a slot whose fence cannot be restored is retired, since
// waiting on it would never return.
func (p *Pacer) Discard() error {
	if p.current == nil {
		return ErrNoFrame
	}
	slot := p.current
	p.current = nil

	signaler, ok := slot.Fence.(Signaler)
	if !ok {
		err := fmt.Errorf("frame slot %d retired: its fence cannot be signalled again", slot.Index)
		core.LogError(err.Error())
		return err
	}
	if err := signaler.Signal(); err != nil {
		err = fmt.Errorf("frame slot %d retired: %w", slot.Index, err)
		core.LogError(err.Error())
		return err
	}
	p.requeueFront(slot.Index)
	return nil
}

// Defer queues destroy to run once no frame in flight can reference the
// object. Objects may be in use by the frame being recorded, or by the last
// submitted one when called between frames. With nothing in flight destroy
// runs immediately.
func (p *Pacer) Defer(destroy func()) {
	switch {
	case p.current != nil:
		p.current.destructors = append(p.current.destructors, destroy)
	case p.lastSubmitted != nil:
		p.lastSubmitted.destructors = append(p.lastSubmitted.destructors, destroy)
	default:
		destroy()
	}
}

// Flush runs every queued destruction. The device must be idle.
func (p *Pacer) Flush() {
	total := 0
	for _, s := range p.slots {
		total += s.drain()
	}
	if total > 0 {
		core.LogDebug("flushed %d deferred object(s)", total)
	}
}

func (p *Pacer) Current() *Slot {
	return p.current
}

// FrameNumber is the number of frames submitted so far.
func (p *Pacer) FrameNumber() uint64 {
	return p.frameNumber
}

func (p *Pacer) Slots() int {
	return len(p.slots)
}
