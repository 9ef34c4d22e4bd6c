package platform

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultScanInterval is how often polled entities refresh.
const DefaultScanInterval = 30 * time.Second

// Poller runs one refresh loop per polled entity.
type Poller struct {
	interval time.Duration

	mu      sync.Mutex
	running map[string]context.CancelFunc // entityID -> cancel
	wg      sync.WaitGroup
}

func NewPoller(interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultScanInterval
	}
	return &Poller{
		interval: interval,
		running:  make(map[string]context.CancelFunc),
	}
}

func (p *Poller) Interval() time.Duration { return p.interval }

// Track starts calling poll every interval until ctx is cancelled or
// the poller is stopped. Tracking an id twice is a no-op.
func (p *Poller) Track(parent context.Context, entityID string, poll func(ctx context.Context)) {
	p.mu.Lock()
	if _, exists := p.running[entityID]; exists {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(parent)
	p.running[entityID] = cancel
	p.wg.Add(1)
	p.mu.Unlock()

	log.Debug().Str("entity", entityID).Dur("interval", p.interval).Msg("polling entity")
	go func() {
		defer p.wg.Done()
		defer func() {
			p.mu.Lock()
			delete(p.running, entityID)
			p.mu.Unlock()
		}()

		tick := time.NewTicker(p.interval)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				poll(ctx)
			}
		}
	}()
}

// Running reports how many loops are active.
func (p *Poller) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.running)
}

// Stop cancels every loop and waits for them to return.
func (p *Poller) Stop() {
	p.mu.Lock()
	for _, cancel := range p.running {
		cancel()
	}
	p.mu.Unlock()
	p.wg.Wait()
}
