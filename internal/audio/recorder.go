// Package audio captures spoken commands from the default microphone.
package audio

import (
	"errors"
	"math"
	"time"

	"github.com/gordonklaus/portaudio"
)

// SampleRate is what the speech model expects: mono, 16 kHz.
const SampleRate = 16000

var ErrNoAudio = errors.New("no audio recorded")

type Recorder struct {
	// Threshold is the RMS level counted as speech.
	Threshold float64
	// Silence ends an utterance once speech has started.
	Silence time.Duration
	// MaxLength caps a single recording.
	MaxLength time.Duration
}

func NewRecorder() *Recorder {
	return &Recorder{
		Threshold: 0.015,
		Silence:   600 * time.Millisecond,
		MaxLength: 10 * time.Second,
	}
}

func (r *Recorder) Init() error {
	return portaudio.Initialize()
}

func (r *Recorder) Close() {
	portaudio.Terminate()
}

// RecordAuto records one utterance: it waits for speech, then stops after
// r.Silence of quiet or r.MaxLength overall.
func (r *Recorder) RecordAuto() ([]float32, error) {
	const frameSize = SampleRate / 50 // 20ms

	buf := make([]float32, frameSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, SampleRate, len(buf), buf)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, err
	}
	defer stream.Stop()

	ep := newEndpointer(r.Threshold, r.Silence, 20*time.Millisecond)
	maxFrames := int(r.MaxLength / (20 * time.Millisecond))

	for i := 0; i < maxFrames; i++ {
		if err := stream.Read(); err != nil {
			return nil, err
		}
		if ep.push(buf) {
			break
		}
	}

	if len(ep.out) == 0 {
		return nil, ErrNoAudio
	}
	return ep.out, nil
}

// endpointer keeps the frames of one utterance and decides when it ended.
type endpointer struct {
	threshold   float64
	quietFrames int

	speaking bool
	quiet    int
	out      []float32
}

func newEndpointer(threshold float64, silence, frame time.Duration) *endpointer {
	n := int(silence / frame)
	if n < 1 {
		n = 1
	}
	return &endpointer{threshold: threshold, quietFrames: n}
}

// push adds one frame and reports whether the utterance is over.
func (e *endpointer) push(frame []float32) bool {
	if frameRMS(frame) > e.threshold {
		e.speaking = true
		e.quiet = 0
		e.out = append(e.out, frame...)
		return false
	}
	if !e.speaking {
		return false
	}

	e.quiet++
	if e.quiet >= e.quietFrames {
		return true
	}
	e.out = append(e.out, frame...)
	return false
}

func frameRMS(f []float32) float64 {
	if len(f) == 0 {
		return 0
	}
	var s float64
	for _, x := range f {
		s += float64(x * x)
	}
	return math.Sqrt(s / float64(len(f)))
}
