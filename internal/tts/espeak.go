// Package tts speaks assistant notices through libespeak-ng.
package tts

/*
#cgo LDFLAGS: -lespeak-ng
#include <stdlib.h>
#include <string.h>
#include <espeak-ng/speak_lib.h>

static int
shree_speak(const char *text, const char *lang, int rate)
{
	if (!text || !lang)
	{ return -1; }

	if (espeak_Initialize(AUDIO_OUTPUT_SYNCH_PLAYBACK, 500, NULL, 0) < 0)
	{ return -2; }

	espeak_VOICE specs = { 0 };
	specs.languages = lang;
	espeak_SetVoiceByProperties(&specs);
	if (rate > 0)
	{ espeak_SetParameter(espeakRATE, rate, 0); }

	espeak_Synth(text, strlen(text) + 1, 0, POS_CHARACTER, 0, espeakCHARS_AUTO, NULL, NULL);
	espeak_Synchronize();
	espeak_Terminate();

	return 0;
}
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"
)

type Voice struct {
	Language string
	// Rate in words per minute, 0 keeps the espeak default.
	Rate int
}

// Speaker serialises speech; espeak keeps global state.
type Speaker struct {
	voice Voice
	mu    sync.Mutex
}

func NewSpeaker(v Voice) *Speaker {
	if v.Language == "" {
		v.Language = "en"
	}
	return &Speaker{voice: v}
}

// Speak blocks until text has been played.
func (s *Speaker) Speak(text string) error {
	if text == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))
	clang := C.CString(s.voice.Language)
	defer C.free(unsafe.Pointer(clang))

	if rc := C.shree_speak(ctext, clang, C.int(s.voice.Rate)); rc != 0 {
		return fmt.Errorf("espeak failed: %d", int(rc))
	}
	return nil
}
