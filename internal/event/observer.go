package event

import "sync"

// Observer receives live progress from the task subsystem. Hosts (console,
// daemon clients, the bus) implement it; the core never renders anything
// itself.
type Observer interface {
	OnOutput(Output)
	OnNotice(text string)
	OnConfirmationRequested(prompt string)
	OnTaskCompleted(Result)
}

// Funcs adapts plain functions to an Observer. Nil fields are skipped.
type Funcs struct {
	Output    func(Output)
	Notice    func(string)
	Confirm   func(string)
	Completed func(Result)
}

func (f Funcs) OnOutput(o Output) {
	if f.Output != nil {
		f.Output(o)
	}
}

func (f Funcs) OnNotice(text string) {
	if f.Notice != nil {
		f.Notice(text)
	}
}

func (f Funcs) OnConfirmationRequested(prompt string) {
	if f.Confirm != nil {
		f.Confirm(prompt)
	}
}

func (f Funcs) OnTaskCompleted(r Result) {
	if f.Completed != nil {
		f.Completed(r)
	}
}

// Broadcaster fans every event out to a changing set of observers, in the
// order they were added.
type Broadcaster struct {
	mu     sync.RWMutex
	nextID int
	subs   []subscriber
}

type subscriber struct {
	id  int
	obs Observer
}

func NewBroadcaster(observers ...Observer) *Broadcaster {
	b := &Broadcaster{}
	for _, o := range observers {
		b.Add(o)
	}
	return b
}

// Add registers an observer and returns a function that removes it.
func (b *Broadcaster) Add(o Observer) (remove func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscriber{id: id, obs: o})

	return func() { b.remove(id) }
}

func (b *Broadcaster) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Broadcaster) snapshot() []Observer {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Observer, len(b.subs))
	for i, s := range b.subs {
		out[i] = s.obs
	}
	return out
}

func (b *Broadcaster) OnOutput(o Output) {
	for _, obs := range b.snapshot() {
		obs.OnOutput(o)
	}
}

func (b *Broadcaster) OnNotice(text string) {
	for _, obs := range b.snapshot() {
		obs.OnNotice(text)
	}
}

func (b *Broadcaster) OnConfirmationRequested(prompt string) {
	for _, obs := range b.snapshot() {
		obs.OnConfirmationRequested(prompt)
	}
}

func (b *Broadcaster) OnTaskCompleted(r Result) {
	for _, obs := range b.snapshot() {
		obs.OnTaskCompleted(r)
	}
}
