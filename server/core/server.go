package core

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/coder/websocket"
	"github.com/leap-fish/necs/router"
	"github.com/leap-fish/necs/transports"

	"github.com/automoto/rewind/logging"
	"github.com/automoto/rewind/physics"
	"github.com/automoto/rewind/prebuilt"
	"github.com/automoto/rewind/prediction"
	"github.com/automoto/rewind/shared/leveldata"
	"github.com/automoto/rewind/shared/messages"
	"github.com/automoto/rewind/shared/sim"
	"github.com/automoto/rewind/transport/quicnet"
)

var ErrUnknownPeer = errors.New("no connection for player")

// Peer is one client connection, whatever carries it.
type Peer interface {
	Send(msg any, reliable bool) error
	Close(reason string) error
}

// Options configure a Server.
type Options struct {
	Name    string
	Version string
	Level   *leveldata.Level

	Prediction prediction.Config
	Physics    physics.Config
	// Kit builds the prefab kit for the server's world; nil uses the
	// prebuilt defaults.
	Kit func(world *physics.World) *prebuilt.Kit

	MaxPlayers     int
	ReconnectGrace time.Duration

	Logger  logging.Logger
	Metrics prediction.Metrics
}

// Server runs the authoritative simulation and exchanges session messages
// with clients over websockets or QUIC.
type Server struct {
	opts    Options
	log     logging.Logger
	sim     *sim.Sim
	spawner *prebuilt.PlayerSpawner
	players *Registry
	loop    *GameLoop
	running bool

	quic *quicnet.Server
}

// NewServer builds the world for opts.Level and the prediction manager that
// simulates it.
func NewServer(opts Options) (*Server, error) {
	log := logging.OrNop(opts.Logger)
	s := &Server{
		opts:    opts,
		log:     log,
		players: NewRegistry(opts.MaxPlayers, opts.ReconnectGrace),
	}

	world, err := sim.New(opts.Level, prediction.RoleServer, sim.Options{
		Prediction: opts.Prediction,
		Physics:    opts.Physics,
		Kit:        opts.Kit,
		Transport:  s,
		Logger:     log,
		Metrics:    opts.Metrics,
	})
	if err != nil {
		return nil, err
	}
	s.sim = world
	s.spawner = prebuilt.NewPlayerSpawner(world.Manager, prebuilt.PlayerPrefab, opts.Level.Spawns)
	world.Manager.OnDiagnostic = func(d prediction.Diagnostic) {
		s.log.Debug("diagnostic", "detail", d.String())
	}
	s.loop = NewGameLoop(s.Tick, world.Manager.TickRate(), log)
	return s, nil
}

func (s *Server) Sim() *sim.Sim                    { return s.sim }
func (s *Server) Spawner() *prebuilt.PlayerSpawner { return s.spawner }
func (s *Server) PlayerCount() int                 { return s.players.Active() }

// Tick advances the simulation by one step. The game loop calls it; tests
// may call it directly instead of running the loop.
func (s *Server) Tick() {
	s.sim.Manager.Tick()
	for _, p := range s.players.Expire() {
		s.log.Info("reconnect window closed", "player", p)
	}
}

// Run starts the game loop in the background. Call it once.
func (s *Server) Run() {
	s.running = true
	go s.loop.Run()
}

// ListenWebsocket serves the websocket router on port. It blocks.
func (s *Server) ListenWebsocket(port uint) error {
	s.routeWebsocket()
	return transports.NewWsServerTransport(port, "", nil).Start()
}

// ListenQUIC accepts QUIC sessions on address in the background.
func (s *Server) ListenQUIC(ctx context.Context, address string, tlsConf *tls.Config) error {
	s.quic = quicnet.NewServer(address, tlsConf, quicHandler{s}, s.log)
	s.quic.MTU = s.opts.Prediction.MTU
	return s.quic.Start(ctx)
}

// Stop ends the loop, closes the listeners and releases the world.
func (s *Server) Stop() {
	s.loop.Stop()
	if s.running {
		<-s.loop.Done()
	}
	if s.quic != nil {
		if err := s.quic.Close(); err != nil {
			s.log.Warn("close quic", "err", err)
		}
	}
	s.sim.Manager.Close()
}

// HandleConnect is called when a connection opens. The player joins once
// it sends a JoinRequest.
func (s *Server) HandleConnect(peer Peer) {
	s.log.Debug("connection opened", "peer", fmt.Sprintf("%T", peer))
}

// HandleMessage routes one inbound message from peer.
func (s *Server) HandleMessage(peer Peer, msg any) {
	switch m := msg.(type) {
	case messages.JoinRequest:
		s.join(peer, m)
	case messages.InputFrame:
		player, ok := s.players.Player(peer)
		if !ok {
			s.log.Warn("input before join dropped", "tick", m.ClientTick)
			return
		}
		s.sim.Manager.HandleInput(player, m)
	default:
		s.log.Warn("unexpected message", "type", fmt.Sprintf("%T", msg))
	}
}

// HandleDisconnect removes the player behind peer from the simulation. Its
// reconnect token stays valid for the grace period.
func (s *Server) HandleDisconnect(peer Peer, err error) {
	player, ok := s.players.Leave(peer)
	if !ok {
		return
	}
	if err != nil {
		s.log.Info("player disconnected", "player", player, "err", err)
	} else {
		s.log.Info("player disconnected", "player", player)
	}
	s.sim.Manager.RemoveObserver(player)
	if f, ok := s.opts.Metrics.(playerForgetter); ok {
		f.ForgetPlayer(player)
	}
}

type playerForgetter interface {
	ForgetPlayer(player prediction.PlayerID)
}

func (s *Server) join(peer Peer, req messages.JoinRequest) {
	if s.opts.Version != "" && req.Version != s.opts.Version {
		s.reject(peer, fmt.Sprintf("%v: server %q, client %q", ErrVersionMismatch, s.opts.Version, req.Version))
		return
	}
	player, token, reconnected, err := s.players.Join(peer, req.ReconnectToken)
	if err != nil {
		s.reject(peer, err.Error())
		return
	}

	accepted := messages.JoinAccepted{
		PlayerID:       uint32(player),
		ReconnectToken: token,
		ServerName:     s.opts.Name,
		TickRate:       s.sim.Manager.TickRate(),
		Level:          s.opts.Level.Name,
	}
	if err := peer.Send(accepted, true); err != nil {
		s.log.Error("send join accepted", "player", player, "err", err)
		s.players.Leave(peer)
		return
	}
	s.log.Info("player joined", "player", player, "name", req.PlayerName, "reconnected", reconnected)
	s.sim.Manager.AddObserver(player)
}

func (s *Server) reject(peer Peer, reason string) {
	s.log.Info("join rejected", "reason", reason)
	if err := peer.Send(messages.JoinRejected{Reason: reason}, true); err != nil {
		s.log.Warn("send join rejected", "err", err)
	}
	_ = peer.Close(reason)
}

// SendFullSync implements prediction.Transport.
func (s *Server) SendFullSync(target prediction.PlayerID, msg messages.FullSync) error {
	peer, ok := s.players.Peer(target)
	if !ok {
		return fmt.Errorf("player %d: %w", target, ErrUnknownPeer)
	}
	return peer.Send(msg, true)
}

// SendFrame implements prediction.Transport.
func (s *Server) SendFrame(target prediction.PlayerID, msg messages.DeltaFrame) error {
	peer, ok := s.players.Peer(target)
	if !ok {
		return fmt.Errorf("player %d: %w", target, ErrUnknownPeer)
	}
	return peer.Send(msg, false)
}

// SendInput implements prediction.Transport; servers never send input.
func (s *Server) SendInput(messages.InputFrame, bool) error { return nil }

func (s *Server) routeWebsocket() {
	router.OnConnect(func(client *router.NetworkClient) {
		s.HandleConnect(wsPeer{client})
	})
	router.OnDisconnect(func(client *router.NetworkClient, err error) {
		s.HandleDisconnect(wsPeer{client}, err)
	})
	router.On(func(client *router.NetworkClient, msg messages.JoinRequest) {
		s.HandleMessage(wsPeer{client}, msg)
	})
	router.On(func(client *router.NetworkClient, msg messages.InputFrame) {
		s.HandleMessage(wsPeer{client}, msg)
	})
	router.OnError(func(client *router.NetworkClient, err error) {
		s.log.Warn("websocket client error", "client", client.Id(), "err", err)
	})
}

// wsPeer sends everything reliably; websockets have no datagrams.
type wsPeer struct{ client *router.NetworkClient }

func (p wsPeer) Send(msg any, _ bool) error {
	payload, err := router.Serialize(msg)
	if err != nil {
		return fmt.Errorf("serialize: %w", err)
	}
	return p.client.Write(context.Background(), websocket.MessageBinary, payload)
}

func (p wsPeer) Close(reason string) error {
	return p.client.Close(websocket.StatusNormalClosure, reason)
}

type quicHandler struct{ s *Server }

func (h quicHandler) Connected(sess *quicnet.Session)        { h.s.HandleConnect(sess) }
func (h quicHandler) Message(sess *quicnet.Session, msg any) { h.s.HandleMessage(sess, msg) }
func (h quicHandler) Disconnected(sess *quicnet.Session, err error) {
	h.s.HandleDisconnect(sess, err)
}

var _ prediction.Transport = (*Server)(nil)
