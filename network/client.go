package network

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"

	"github.com/coder/websocket"
	"github.com/leap-fish/necs/router"
	"github.com/leap-fish/necs/transports"

	"github.com/automoto/rewind/logging"
	"github.com/automoto/rewind/prediction"
	"github.com/automoto/rewind/shared/messages"
	"github.com/automoto/rewind/transport/quicnet"
)

type ClientState int

const (
	StateDisconnected ClientState = iota
	StateConnecting
	StateConnected
	StateJoinedGame
	StateError
)

func (s ClientState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateJoinedGame:
		return "joined"
	case StateError:
		return "error"
	}
	return "unknown"
}

var (
	ErrNotConnected = errors.New("not connected")
	ErrClientOnly   = errors.New("clients do not send state")
)

// maxPending bounds the frames held while no manager is bound.
const maxPending = 256

// Link is one connection to the server.
type Link interface {
	Send(msg any, reliable bool) error
	Close(reason string) error
}

// Client joins a server and carries frames between it and a client-side
// prediction manager. All shared fields are protected by mu; transport
// callbacks run on their own goroutines.
type Client struct {
	mu sync.RWMutex

	log logging.Logger

	state          ClientState
	lastError      error
	link           Link
	accepted       messages.JoinAccepted
	reconnectToken string

	manager *prediction.Manager
	pending []any

	// settled is closed once the join is accepted or fails, and replaced
	// when a new connection starts.
	settled chan struct{}
}

func NewClient(log logging.Logger) *Client {
	return &Client{
		log:     logging.OrNop(log),
		state:   StateDisconnected,
		settled: make(chan struct{}),
	}
}

// Attach sets the link to the server and sends the join request for
// playerName. Transports call it once the connection is up; tests may call
// it with an in-memory link.
func (c *Client) Attach(link Link, version, playerName string) error {
	c.begin()
	c.mu.Lock()
	c.link = link
	c.state = StateConnected
	req := c.joinRequest(version, playerName)
	c.mu.Unlock()

	if err := link.Send(req, true); err != nil {
		err = fmt.Errorf("send join request: %w", err)
		c.setError(err)
		return err
	}
	return nil
}

// ConnectWebsocket dials address in a background goroutine and joins once
// connected.
func (c *Client) ConnectWebsocket(address, version, playerName string) {
	c.begin()

	router.OnConnect(func(_ *router.NetworkClient) {
		c.log.Info("connected to server", "transport", "ws", "address", address)
	})
	router.On(func(_ *router.NetworkClient, msg messages.JoinAccepted) { c.HandleMessage(msg) })
	router.On(func(_ *router.NetworkClient, msg messages.JoinRejected) { c.HandleMessage(msg) })
	router.On(func(_ *router.NetworkClient, msg messages.FullSync) { c.HandleMessage(msg) })
	router.On(func(_ *router.NetworkClient, msg messages.DeltaFrame) { c.HandleMessage(msg) })
	router.OnDisconnect(func(_ *router.NetworkClient, err error) { c.HandleDisconnect(err) })
	router.OnError(func(_ *router.NetworkClient, err error) {
		c.log.Warn("websocket error", "err", err)
	})

	go func() {
		transport := transports.NewWsClientTransport("ws://" + address)
		err := transport.Start(func(conn *websocket.Conn) {
			_ = c.Attach(wsLink{conn}, version, playerName)
		})
		if err != nil {
			c.setError(fmt.Errorf("connection failed: %w", err))
		}
	}()
}

// ConnectQUIC dials address and sends the join request as the session's
// first message.
func (c *Client) ConnectQUIC(ctx context.Context, address string, tlsConf *tls.Config, version, playerName string) error {
	c.begin()

	c.mu.Lock()
	req := c.joinRequest(version, playerName)
	c.mu.Unlock()

	sess, err := quicnet.Dial(ctx, address, tlsConf, req, quicHandler{c}, c.log)
	if err != nil {
		err = fmt.Errorf("connection failed: %w", err)
		c.setError(err)
		return err
	}
	c.log.Info("connected to server", "transport", "quic", "address", address)

	c.mu.Lock()
	c.link = sess
	if c.state == StateConnecting {
		c.state = StateConnected
	}
	c.mu.Unlock()
	return nil
}

// joinRequest must be called with mu held.
func (c *Client) joinRequest(version, playerName string) messages.JoinRequest {
	return messages.JoinRequest{
		Version:        version,
		PlayerName:     playerName,
		ReconnectToken: c.reconnectToken,
	}
}

// begin resets the join state for a new connection. An open settled
// channel is kept so pending WaitJoined calls still see the answer.
func (c *Client) begin() {
	c.mu.Lock()
	c.state = StateConnecting
	c.lastError = nil
	c.accepted = messages.JoinAccepted{}
	select {
	case <-c.settled:
		c.settled = make(chan struct{})
	default:
	}
	c.mu.Unlock()
}

// WaitJoined blocks until the server answers the join request.
func (c *Client) WaitJoined(ctx context.Context) (messages.JoinAccepted, error) {
	c.mu.RLock()
	settled := c.settled
	c.mu.RUnlock()

	select {
	case <-ctx.Done():
		return messages.JoinAccepted{}, ctx.Err()
	case <-settled:
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != StateJoinedGame {
		return messages.JoinAccepted{}, c.lastError
	}
	return c.accepted, nil
}

// Bind hands frames to m and makes the client m's transport. Frames that
// arrived before Bind are delivered in order.
func (c *Client) Bind(m *prediction.Manager) {
	c.mu.Lock()
	c.manager = m
	pending := c.pending
	c.pending = nil
	player := prediction.PlayerID(c.accepted.PlayerID)
	tickRate := c.accepted.TickRate
	c.mu.Unlock()

	if tickRate != 0 && tickRate != m.TickRate() {
		c.log.Warn("tick rate differs from server", "server", tickRate, "local", m.TickRate())
	}
	m.SetLocalPlayer(player)
	m.SetTransport(c)
	for _, msg := range pending {
		deliver(m, msg)
	}
}

// HandleMessage processes one message from the server.
func (c *Client) HandleMessage(msg any) {
	switch m := msg.(type) {
	case messages.JoinAccepted:
		c.log.Info("join accepted", "player", m.PlayerID, "server", m.ServerName, "tickrate", m.TickRate, "level", m.Level)
		c.mu.Lock()
		c.accepted = m
		c.reconnectToken = m.ReconnectToken
		c.state = StateJoinedGame
		c.settle()
		c.mu.Unlock()
	case messages.JoinRejected:
		c.log.Warn("join rejected", "reason", m.Reason)
		c.setError(fmt.Errorf("join rejected: %s", m.Reason))
	case messages.FullSync, messages.DeltaFrame:
		c.mu.Lock()
		manager := c.manager
		if manager == nil {
			c.pending = append(c.pending, msg)
			if len(c.pending) > maxPending {
				c.pending = c.pending[1:]
			}
		}
		c.mu.Unlock()
		if manager != nil {
			deliver(manager, msg)
		}
	default:
		c.log.Warn("unexpected message", "type", fmt.Sprintf("%T", msg))
	}
}

// HandleDisconnect records that the link dropped. The reconnect token is
// kept so the next Connect reclaims the same player.
func (c *Client) HandleDisconnect(err error) {
	c.log.Info("disconnected", "err", err)
	c.mu.Lock()
	if c.state != StateError {
		c.state = StateDisconnected
		if c.lastError == nil && err != nil {
			c.lastError = err
		}
	}
	c.link = nil
	c.settle()
	c.mu.Unlock()
}

// Disconnect closes the link and unbinds the manager.
func (c *Client) Disconnect() {
	c.mu.Lock()
	link := c.link
	c.link = nil
	c.state = StateDisconnected
	c.manager = nil
	c.pending = nil
	c.mu.Unlock()

	if link != nil {
		_ = link.Close("client disconnect")
	}
	router.ResetRouter()
}

// SendInput implements prediction.Transport.
func (c *Client) SendInput(frame messages.InputFrame, reliable bool) error {
	c.mu.RLock()
	link, state := c.link, c.state
	c.mu.RUnlock()

	if link == nil || state != StateJoinedGame {
		return ErrNotConnected
	}
	return link.Send(frame, reliable)
}

func (c *Client) SendFullSync(prediction.PlayerID, messages.FullSync) error { return ErrClientOnly }

func (c *Client) SendFrame(prediction.PlayerID, messages.DeltaFrame) error { return ErrClientOnly }

func (c *Client) State() ClientState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}

func (c *Client) PlayerID() prediction.PlayerID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return prediction.PlayerID(c.accepted.PlayerID)
}

func (c *Client) ReconnectToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reconnectToken
}

func (c *Client) Level() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accepted.Level
}

func (c *Client) TickRate() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accepted.TickRate
}

func (c *Client) setError(err error) {
	c.mu.Lock()
	c.state = StateError
	c.lastError = err
	c.settle()
	c.mu.Unlock()
}

// settle must be called with mu held.
func (c *Client) settle() {
	select {
	case <-c.settled:
	default:
		close(c.settled)
	}
}

func deliver(m *prediction.Manager, msg any) {
	switch f := msg.(type) {
	case messages.FullSync:
		m.HandleFullSync(f)
	case messages.DeltaFrame:
		m.HandleFrame(f)
	}
}

// wsLink carries everything reliably; websockets have no datagrams.
type wsLink struct{ conn *websocket.Conn }

func (l wsLink) Send(msg any, _ bool) error {
	payload, err := router.Serialize(msg)
	if err != nil {
		return fmt.Errorf("serialize: %w", err)
	}
	return l.conn.Write(context.Background(), websocket.MessageBinary, payload)
}

func (l wsLink) Close(reason string) error {
	return l.conn.Close(websocket.StatusNormalClosure, reason)
}

type quicHandler struct{ c *Client }

func (h quicHandler) Connected(*quicnet.Session)                 {}
func (h quicHandler) Message(_ *quicnet.Session, msg any)        { h.c.HandleMessage(msg) }
func (h quicHandler) Disconnected(_ *quicnet.Session, err error) { h.c.HandleDisconnect(err) }

var _ prediction.Transport = (*Client)(nil)
