package audio

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(level float32) []float32 {
	f := make([]float32, 320)
	for i := range f {
		f[i] = level
	}
	return f
}

func TestEndpointer(t *testing.T) {
	ep := newEndpointer(0.015, 60*time.Millisecond, 20*time.Millisecond)

	assert.False(t, ep.push(frame(0)), "leading silence is skipped")
	assert.Empty(t, ep.out)

	assert.False(t, ep.push(frame(0.5)))
	assert.False(t, ep.push(frame(0)))
	assert.False(t, ep.push(frame(0.5)), "speech resets the quiet counter")
	assert.False(t, ep.push(frame(0)))
	assert.False(t, ep.push(frame(0)))
	assert.True(t, ep.push(frame(0)))

	assert.Len(t, ep.out, 5*320)
}

func TestFrameRMS(t *testing.T) {
	assert.Zero(t, frameRMS(nil))
	assert.InDelta(t, 0.5, frameRMS(frame(0.5)), 1e-6)
	assert.InDelta(t, 0.5, frameRMS([]float32{0.5, -0.5}), 1e-6)
}

const pactlOutput = `Sink Input #41
	Driver: protocol-native.c
	Volume: front-left: 52429 /  80% / -5.81 dB,   front-right: 52429 /  80% / -5.81 dB
	Properties:
		application.name = "Firefox"
Sink Input #42
	Volume: front-left: 65536 / 100% / 0.00 dB
	Properties:
		application.name = "shree"
Sink Input #bogus
	Volume: 10%
Sink Input #43
	Driver: protocol-native.c
`

func TestParseSinkInputs(t *testing.T) {
	assert.Equal(t, []SinkInput{
		{ID: 41, Volume: 80, AppName: "Firefox"},
		{ID: 42, Volume: 100, AppName: "shree"},
	}, parseSinkInputs(pactlOutput))

	assert.Nil(t, parseSinkInputs(""))
}

type mixer struct {
	mu      sync.Mutex
	streams []SinkInput
}

func (m *mixer) list(context.Context) ([]SinkInput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SinkInput(nil), m.streams...), nil
}

func (m *mixer) set(_ context.Context, id, v int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.streams {
		if m.streams[i].ID == id {
			m.streams[i].Volume = v
		}
	}
	return nil
}

func (m *mixer) volume(id int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.streams {
		if s.ID == id {
			return s.Volume
		}
	}
	return -1
}

func TestDuckAndRestore(t *testing.T) {
	m := &mixer{streams: []SinkInput{
		{ID: 1, Volume: 80, AppName: "Firefox"},
		{ID: 2, Volume: 100, AppName: "shree"},
		{ID: 3, Volume: 10, AppName: "mpv"},
	}}
	d := NewDucker([]string{"shree"}, 15)
	d.list, d.set = m.list, m.set

	ctx := context.Background()
	require.NoError(t, d.Duck(ctx, 0.25, 30*time.Millisecond))
	assert.Equal(t, 20, m.volume(1))
	assert.Equal(t, 100, m.volume(2), "own stream untouched")
	assert.Equal(t, 15, m.volume(3), "never below the floor")

	require.NoError(t, d.Duck(ctx, 0.1, 0), "second duck is a no-op")
	assert.Equal(t, 20, m.volume(1))

	require.NoError(t, d.Restore(ctx, 0))
	assert.Equal(t, 80, m.volume(1))
	assert.Equal(t, 10, m.volume(3))
}
