package dispatcher

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Handler receives the payload sent on a signal.
type Handler func(payload any)

type subscription struct {
	id uint64
	fn Handler
}

// Dispatcher is an in-process signal bus. Handlers for a signal run
// synchronously on the sending goroutine, in the order they connected.
type Dispatcher struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string][]subscription
}

func New() *Dispatcher {
	return &Dispatcher{subs: make(map[string][]subscription)}
}

// Connect subscribes fn to signal. The returned func removes the
// subscription and is safe to call more than once.
func (d *Dispatcher) Connect(signal string, fn Handler) func() {
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.subs[signal] = append(d.subs[signal], subscription{id: id, fn: fn})
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { d.disconnect(signal, id) })
	}
}

func (d *Dispatcher) disconnect(signal string, id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	subs := d.subs[signal]
	for i, s := range subs {
		if s.id == id {
			d.subs[signal] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(d.subs[signal]) == 0 {
		delete(d.subs, signal)
	}
}

// Send delivers payload to every handler connected to signal.
func (d *Dispatcher) Send(signal string, payload any) {
	d.mu.RLock()
	subs := append([]subscription(nil), d.subs[signal]...)
	d.mu.RUnlock()

	if len(subs) == 0 {
		log.Debug().Str("signal", signal).Msg("no handlers for signal")
		return
	}
	for _, s := range subs {
		s.fn(payload)
	}
}

// Handlers reports how many handlers are connected to signal.
func (d *Dispatcher) Handlers(signal string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs[signal])
}
