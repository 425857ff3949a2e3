// Package loopback connects managers in one process. Messages are delivered
// when the test or bot calls Flush, optionally after a fixed number of
// flushes and with deliberate drops, which makes latency reproducible.
package loopback

import (
	"sync"

	"github.com/automoto/rewind/prediction"
	"github.com/automoto/rewind/shared/messages"
)

// Receiver is the inbound half of a manager.
type Receiver interface {
	HandleInput(from prediction.PlayerID, frame messages.InputFrame)
	HandleFrame(frame messages.DeltaFrame)
	HandleFullSync(msg messages.FullSync)
}

type envelope struct {
	due  int
	fn   func()
	drop bool
}

// Network routes messages between one server and any number of clients.
type Network struct {
	mu      sync.Mutex
	server  Receiver
	clients map[prediction.PlayerID]Receiver
	queue   []envelope
	flushes int

	// Latency is the number of Flush calls a message waits before delivery.
	Latency int
	// DropFrame, when set, decides whether a delta frame is lost.
	DropFrame func(to prediction.PlayerID, frame messages.DeltaFrame) bool
	// DropInput, when set, decides whether an unreliable input is lost.
	DropInput func(from prediction.PlayerID, frame messages.InputFrame) bool
}

func New() *Network {
	return &Network{clients: make(map[prediction.PlayerID]Receiver)}
}

// ServerTransport returns the transport to hand to the server manager.
func (n *Network) ServerTransport(server Receiver) prediction.Transport {
	n.mu.Lock()
	n.server = server
	n.mu.Unlock()
	return serverSide{n: n}
}

// ClientTransport returns the transport for the client playing as id.
func (n *Network) ClientTransport(id prediction.PlayerID, client Receiver) prediction.Transport {
	n.mu.Lock()
	n.clients[id] = client
	n.mu.Unlock()
	return clientSide{n: n, id: id}
}

// Disconnect stops delivery to and from id.
func (n *Network) Disconnect(id prediction.PlayerID) {
	n.mu.Lock()
	delete(n.clients, id)
	n.mu.Unlock()
}

func (n *Network) enqueue(fn func(), drop bool) {
	n.mu.Lock()
	n.queue = append(n.queue, envelope{due: n.flushes + n.Latency, fn: fn, drop: drop})
	n.mu.Unlock()
}

// Flush delivers every message whose latency has elapsed, in send order.
// It returns the number of messages delivered.
func (n *Network) Flush() int {
	n.mu.Lock()
	var ready []envelope
	kept := n.queue[:0]
	for _, e := range n.queue {
		if e.due <= n.flushes {
			ready = append(ready, e)
		} else {
			kept = append(kept, e)
		}
	}
	n.queue = kept
	n.flushes++
	n.mu.Unlock()

	delivered := 0
	for _, e := range ready {
		if e.drop {
			continue
		}
		e.fn()
		delivered++
	}
	return delivered
}

// Pending returns the number of queued messages.
func (n *Network) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.queue)
}

func (n *Network) client(id prediction.PlayerID) (Receiver, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	c, ok := n.clients[id]
	return c, ok
}

type serverSide struct{ n *Network }

func (s serverSide) SendFullSync(target prediction.PlayerID, msg messages.FullSync) error {
	s.n.enqueue(func() {
		if c, ok := s.n.client(target); ok {
			c.HandleFullSync(msg)
		}
	}, false)
	return nil
}

func (s serverSide) SendFrame(target prediction.PlayerID, msg messages.DeltaFrame) error {
	drop := s.n.DropFrame != nil && s.n.DropFrame(target, msg)
	s.n.enqueue(func() {
		if c, ok := s.n.client(target); ok {
			c.HandleFrame(msg)
		}
	}, drop)
	return nil
}

func (s serverSide) SendInput(messages.InputFrame, bool) error { return nil }

type clientSide struct {
	n  *Network
	id prediction.PlayerID
}

func (c clientSide) SendFullSync(prediction.PlayerID, messages.FullSync) error { return nil }
func (c clientSide) SendFrame(prediction.PlayerID, messages.DeltaFrame) error  { return nil }

func (c clientSide) SendInput(msg messages.InputFrame, reliable bool) error {
	drop := !reliable && c.n.DropInput != nil && c.n.DropInput(c.id, msg)
	c.n.enqueue(func() {
		c.n.mu.Lock()
		server := c.n.server
		_, connected := c.n.clients[c.id]
		c.n.mu.Unlock()
		if server != nil && connected {
			server.HandleInput(c.id, msg)
		}
	}, drop)
	return nil
}
