package broadcast

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultQueueSize    = 64
	defaultWriteTimeout = 10 * time.Second
)

// Observer is one live receiver of encoded events. Send is only ever called
// from a single goroutine per observer.
type Observer interface {
	Send(ctx context.Context, payload []byte) error
	Close() error
}

// interrupter is implemented by observers whose in-flight Send can be
// aborted without blocking, e.g. by expiring a socket deadline.
type interrupter interface {
	Interrupt()
}

// ObserverFunc adapts a function into an Observer with a no-op Close.
type ObserverFunc func(ctx context.Context, payload []byte) error

func (f ObserverFunc) Send(ctx context.Context, payload []byte) error { return f(ctx, payload) }
func (f ObserverFunc) Close() error                                   { return nil }

// Hub keeps the set of connected observers. Publish encodes once and enqueues
// to every observer's bounded queue; a per-observer writer goroutine does the
// slow send. A full queue or failed send drops only that observer.
type Hub struct {
	mu        sync.Mutex
	clients   map[*client]struct{}
	queueSize int
	timeout   time.Duration
	log       logrus.FieldLogger
	wg        sync.WaitGroup
}

// HubOption customizes Hub construction.
type HubOption func(*Hub)

func WithQueueSize(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

func WithWriteTimeout(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.timeout = d
		}
	}
}

func WithLogger(l logrus.FieldLogger) HubOption {
	return func(h *Hub) {
		if l != nil {
			h.log = l
		}
	}
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		clients:   make(map[*client]struct{}),
		queueSize: defaultQueueSize,
		timeout:   defaultWriteTimeout,
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

type client struct {
	name  string
	obs   Observer
	queue chan []byte
	done  chan struct{}
	once  sync.Once
}

func (c *client) stop() bool {
	stopped := false
	c.once.Do(func() {
		close(c.done)
		stopped = true
	})
	return stopped
}

// Attach registers an observer. It only sees events published after Attach
// returns. The returned func detaches it; the observer is closed
// asynchronously once its pending send returns.
func (h *Hub) Attach(name string, obs Observer) (detach func()) {
	c := &client{
		name:  name,
		obs:   obs,
		queue: make(chan []byte, h.queueSize),
		done:  make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.wg.Add(1)
	go h.pump(c)
	h.log.WithField("observer", name).Info("observer connected")
	return func() { h.remove(c, "detached") }
}

// Publish delivers evt to every observer connected right now.
func (h *Hub) Publish(evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		h.log.WithError(err).Error("cannot encode event")
		return
	}

	var slow []*client
	h.mu.Lock()
	for c := range h.clients {
		select {
		case c.queue <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		h.remove(c, "queue full")
	}
}

// Count returns the number of connected observers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close detaches every observer and waits for their writers to exit and
// close them.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.remove(c, "hub closed")
	}
	h.wg.Wait()
}

// pump is the only goroutine that calls Send or Close on c's observer, so a
// close never waits behind a send stuck on a slow connection.
func (h *Hub) pump(c *client) {
	defer h.wg.Done()
	defer func() {
		if err := c.obs.Close(); err != nil {
			h.log.WithError(err).WithField("observer", c.name).Debug("observer close")
		}
	}()
	for {
		select {
		case <-c.done:
			return
		default:
		}
		select {
		case <-c.done:
			return
		case data := <-c.queue:
			ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
			err := c.obs.Send(ctx, data)
			cancel()
			if err != nil {
				select {
				case <-c.done:
					// already dropped; the send was interrupted
					return
				default:
				}
				h.log.WithError(err).WithField("observer", c.name).Warn("send failed, dropping observer")
				h.remove(c, "send failed")
				return
			}
		}
	}
}

// remove unregisters c and signals its pump to stop. It never waits on the
// observer, so it is safe to call from Publish.
func (h *Hub) remove(c *client, reason string) {
	h.mu.Lock()
	_, present := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if !c.stop() {
		return
	}
	if in, ok := c.obs.(interrupter); ok {
		in.Interrupt()
	}
	if present {
		h.log.WithFields(logrus.Fields{"observer": c.name, "reason": reason}).Info("observer disconnected")
	}
}
