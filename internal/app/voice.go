package app

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"time"

	"shree/internal/audio"
	"shree/internal/config"
	"shree/internal/nlu"
	"shree/internal/notify"
	"shree/pkg/audioconv"
	"shree/pkg/stt"
)

var ErrNoMicrophone = errors.New("voice input is not enabled")

// Voice turns speech into command text, from the microphone or from a
// recorded file.
type Voice struct {
	tr     *stt.Transcriber
	rec    *audio.Recorder
	chime  *notify.Chime
	ducker *audio.Ducker
}

// OpenVoice loads the speech model. The microphone is only opened when mic
// is set.
func OpenVoice(cfg config.VoiceConfig, mic bool) (*Voice, error) {
	tr, err := stt.NewTranscriber(cfg.Model, stt.Options{
		Language: cfg.Lang,
		Prompt:   strings.Join(nlu.Phrases(), ", "),
	})
	if err != nil {
		return nil, fmt.Errorf("load whisper: %w", err)
	}
	v := &Voice{tr: tr, chime: notify.NewChime(cfg.Chime)}

	if mic {
		rec := audio.NewRecorder()
		if err := rec.Init(); err != nil {
			tr.Close()
			return nil, fmt.Errorf("init audio: %w", err)
		}
		v.rec = rec
		if cfg.Duck {
			v.ducker = audio.NewDucker([]string{"shree"}, 10)
		}
	}
	return v, nil
}

// Listen records one utterance and transcribes it.
func (v *Voice) Listen(ctx context.Context) (string, error) {
	if v.rec == nil {
		return "", ErrNoMicrophone
	}

	if err := v.chime.Play(); err != nil {
		log.Warn("Chime failed", "err", err)
	}
	if v.ducker != nil {
		if err := v.ducker.Duck(ctx, 0.3, 150*time.Millisecond); err != nil {
			log.Debug("Duck failed", "err", err)
		}
		defer func() {
			if err := v.ducker.Restore(context.WithoutCancel(ctx), 300*time.Millisecond); err != nil {
				log.Debug("Restore volume failed", "err", err)
			}
		}()
	}

	log.Info("Listening")
	pcm, err := v.rec.RecordAuto()
	if err != nil {
		return "", fmt.Errorf("record: %w", err)
	}
	log.Debug("Recorded", "samples", len(pcm))

	return v.transcribe(ctx, pcm)
}

// TranscribeFile reads a recorded command from disk.
func (v *Voice) TranscribeFile(ctx context.Context, path string) (string, error) {
	pcm, err := audioconv.DecodeFile(path, audioconv.Options{MaxSamples: audioconv.TargetRate * 30})
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", path, err)
	}
	return v.transcribe(ctx, pcm)
}

func (v *Voice) transcribe(ctx context.Context, pcm []float32) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	res, err := v.tr.Transcribe(ctx, pcm)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	log.Info("Transcribed", "text", res.Text, "lang", res.Language)
	return res.Text, nil
}

func (v *Voice) Close() {
	if v.rec != nil {
		v.rec.Close()
	}
	v.tr.Close()
}
