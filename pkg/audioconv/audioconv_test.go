package audioconv

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWAV(t *testing.T, name string, rate, channels int, data []int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	return path
}

func TestDecodeWAVStereo32k(t *testing.T) {
	data := make([]int, 2*3200) // 0.1s stereo at 32 kHz
	for i := range data {
		if i%2 == 0 {
			data[i] = 16384
		}
	}
	path := writeWAV(t, "cmd.wav", 32000, 2, data)

	x, err := DecodeFile(path, Options{})
	require.NoError(t, err)
	assert.Len(t, x, 1600)
	assert.InDelta(t, 0.25, x[10], 1e-3, "left at half scale, right silent")
}

func TestDecodeSniffsUnknownExtension(t *testing.T) {
	path := writeWAV(t, "cmd.rec", 16000, 1, make([]int, 800))

	x, err := DecodeFile(path, Options{MaxSamples: 100})
	require.NoError(t, err)
	assert.Len(t, x, 100)
}

func TestDecodeRejectsUnknownData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	_, err := DecodeFile(path, Options{})
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestDownmix(t *testing.T) {
	assert.Equal(t, []float32{0.5, 0}, downmix([]float32{1, 0, 0.5, -0.5}, 2))
	mono := []float32{1, 2}
	assert.Equal(t, mono, downmix(mono, 1))
}

func TestResampleLinear(t *testing.T) {
	in := []float32{0, 1, 0, 1}
	assert.Equal(t, in, resampleLinear(in, 16000, 16000))

	up := resampleLinear([]float32{0, 1}, 8000, 16000)
	assert.Equal(t, []float32{0, 0.5, 1, 1}, up)

	down := resampleLinear(make([]float32, 480), 48000, 16000)
	assert.Len(t, down, 160)
}

func TestSampleConversion(t *testing.T) {
	assert.Equal(t, []float32{-1, 0, 0.5}, int16sToFloat32([]int16{-32768, 0, 16384}))
	assert.Equal(t, []float32{-1, 1}, intsToFloat32([]int{-40000, 40000}, 16), "clamped")
}
