package player

import "sync"

// Publisher fans PCM frames out from the graph to any number of listeners
// (local output, a network feed). Slow listeners have frames dropped
// rather than stalling playback.
type Publisher struct {
	mu        sync.RWMutex
	listeners map[*Listener]struct{}
}

// Listener receives PCM frames from the publisher.
type Listener struct {
	C chan []int16
}

// NewPublisher creates a publisher with no listeners.
func NewPublisher() *Publisher {
	return &Publisher{listeners: make(map[*Listener]struct{})}
}

// Subscribe registers a new listener.
func (p *Publisher) Subscribe() *Listener {
	l := &Listener{
		C: make(chan []int16, 150), // ~3s of buffer at 20ms/frame
	}
	p.mu.Lock()
	p.listeners[l] = struct{}{}
	p.mu.Unlock()
	return l
}

// Unsubscribe removes a listener and closes its channel.
func (p *Publisher) Unsubscribe(l *Listener) {
	p.mu.Lock()
	if _, ok := p.listeners[l]; ok {
		delete(p.listeners, l)
		close(l.C)
	}
	p.mu.Unlock()
}

// ListenerCount returns the number of active listeners.
func (p *Publisher) ListenerCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.listeners)
}

// Publish delivers one frame to every listener without blocking.
func (p *Publisher) Publish(frame []int16) {
	p.mu.RLock()
	for l := range p.listeners {
		select {
		case l.C <- frame:
		default:
			// listener too slow, drop the frame
		}
	}
	p.mu.RUnlock()
}
