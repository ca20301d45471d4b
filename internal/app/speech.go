package app

import (
	"errors"
	log "log/slog"
	"sync"

	"shree/internal/event"
	"shree/internal/supervisor"
)

type Speaker interface {
	Speak(text string) error
}

// Speech reads notices and prompts aloud on its own goroutine so a slow
// voice never holds up the worker. Lines beyond the queue depth are dropped.
type Speech struct {
	sp    Speaker
	queue chan string
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewSpeech(sp Speaker, depth int) *Speech {
	s := &Speech{sp: sp, queue: make(chan string, max(depth, 1))}
	s.wg.Add(1)
	go s.loop()
	return s
}

func (s *Speech) loop() {
	defer s.wg.Done()
	for text := range s.queue {
		if err := s.sp.Speak(text); err != nil {
			log.Error("Failed to voice out", "err", err)
		}
	}
}

func (s *Speech) say(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- text:
	default:
		log.Warn("Speech queue full, dropping", "text", text)
	}
}

func (s *Speech) OnOutput(event.Output) {}

func (s *Speech) OnNotice(text string) { s.say(text) }

func (s *Speech) OnConfirmationRequested(prompt string) { s.say(prompt) }

func (s *Speech) OnTaskCompleted(r event.Result) {
	if errors.Is(r.Err, supervisor.ErrInternalFault) {
		s.say(r.Message)
	}
}

// Close speaks what is queued and stops. Later events are ignored.
func (s *Speech) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
