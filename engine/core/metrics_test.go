package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsAveragesFrameTime(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < int(AVG_COUNT); i++ {
		m.Update(0.010)
	}
	assert.InDelta(t, 10.0, m.FrameTime(), 0.0001)
}

func TestMetricsRefreshesFPSEverySecond(t *testing.T) {
	m := NewMetrics()
	refreshed := false
	frames := 0
	for !refreshed {
		refreshed = m.Update(0.016)
		frames++
	}
	assert.Equal(t, float64(frames), m.FPS())
	assert.Equal(t, 63, frames)
}

func TestEventBus(t *testing.T) {
	bus := NewEventBus()
	var got []uint32

	listener := &struct{}{}
	assert.True(t, bus.Register(EVENT_CODE_RESIZED, listener, func(code SystemEventCode, sender, l interface{}, data EventContext) bool {
		got = append(got, data.U32[0], data.U32[1])
		return true
	}))
	assert.False(t, bus.Register(EVENT_CODE_RESIZED, listener, nil))

	assert.True(t, bus.Fire(EVENT_CODE_RESIZED, nil, EventContext{U32: [4]uint32{640, 480}}))
	assert.Equal(t, []uint32{640, 480}, got)

	assert.True(t, bus.Unregister(EVENT_CODE_RESIZED, listener))
	assert.False(t, bus.Fire(EVENT_CODE_RESIZED, nil, EventContext{}))
	assert.False(t, bus.Unregister(EVENT_CODE_RESIZED, listener))
}
