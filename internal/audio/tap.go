package audio

import "sync"

// Tap fans one microphone stream out to several consumers so the recorder and
// the recognizer see the same audio.
type Tap struct {
	stream Stream

	mu     sync.Mutex
	subs   map[int]*tapSub
	nextID int
	ended  bool

	done chan struct{}
}

type tapSub struct {
	ch   chan []byte
	quit chan struct{}
	once sync.Once
}

func NewTap(stream Stream) *Tap {
	t := &Tap{
		stream: stream,
		subs:   make(map[int]*tapSub),
		done:   make(chan struct{}),
	}
	return t
}

// Start begins distributing chunks. Subscribe before Start to see the first chunk.
func (t *Tap) Start() {
	go t.run()
}

// Subscribe returns a channel receiving every chunk from now on and a release func.
func (t *Tap) Subscribe(buffer int) (<-chan []byte, func()) {
	sub := &tapSub{ch: make(chan []byte, buffer), quit: make(chan struct{})}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ended {
		close(sub.ch)
		return sub.ch, func() {}
	}
	id := t.nextID
	t.nextID++
	t.subs[id] = sub
	return sub.ch, func() {
		sub.once.Do(func() { close(sub.quit) })
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}
}

func (t *Tap) run() {
	defer close(t.done)
	for chunk := range t.stream.Chunks() {
		t.mu.Lock()
		targets := make([]*tapSub, 0, len(t.subs))
		for _, sub := range t.subs {
			targets = append(targets, sub)
		}
		t.mu.Unlock()
		for _, sub := range targets {
			select {
			case sub.ch <- chunk:
			case <-sub.quit:
			}
		}
	}
	t.mu.Lock()
	t.ended = true
	for id, sub := range t.subs {
		close(sub.ch)
		delete(t.subs, id)
	}
	t.mu.Unlock()
}

// Close releases the microphone and waits until every subscriber channel is
// closed. The tap must have been started.
func (t *Tap) Close() error {
	err := t.stream.Close()
	<-t.done
	return err
}
