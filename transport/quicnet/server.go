package quicnet

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/automoto/rewind/logging"
)

// Server accepts QUIC sessions and hands them to a Handler.
type Server struct {
	address string
	tlsConf *tls.Config
	handler Handler
	log     logging.Logger

	// MTU is the largest datagram payload; zero means protocol.DefaultMTU.
	MTU int

	listener *quic.Listener
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewServer(address string, tlsConf *tls.Config, h Handler, log logging.Logger) *Server {
	return &Server{
		address: address,
		tlsConf: withALPN(tlsConf),
		handler: h,
		log:     logging.OrNop(log),
	}
}

// Start listens and accepts connections in the background.
func (s *Server) Start(ctx context.Context) error {
	listener, err := quic.ListenAddr(s.address, s.tlsConf, quicConfig())
	if err != nil {
		return err
	}
	s.listener = listener
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.accept(ctx)
	s.log.Info("quic listening", "addr", listener.Addr().String())
	return nil
}

// Addr returns the bound address, useful when listening on port 0.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close stops accepting and waits for every session to end.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	s.cancel()
	err := s.listener.Close()
	s.wg.Wait()
	return err
}

func (s *Server) accept(ctx context.Context) {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.log.Error("accept", "err", err)
			}
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

func (s *Server) serveConn(ctx context.Context, conn *quic.Conn) {
	// The client opens the stream with its first message.
	acceptCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	stream, err := conn.AcceptStream(acceptCtx)
	cancel()
	if err != nil {
		s.log.Warn("no control stream", "remote", conn.RemoteAddr().String(), "err", err)
		_ = conn.CloseWithError(1, "no control stream")
		return
	}

	sess := newSession(conn, stream, s.MTU, s.log)
	go func() {
		select {
		case <-ctx.Done():
			_ = sess.Close("server shutting down")
		case <-sess.Done():
		}
	}()
	s.log.Info("session opened", "session", sess.ID, "remote", conn.RemoteAddr().String())
	s.handler.Connected(sess)
	sess.serve(ctx, s.handler)
}

func withALPN(conf *tls.Config) *tls.Config {
	if conf == nil {
		conf = &tls.Config{}
	} else {
		conf = conf.Clone()
	}
	if len(conf.NextProtos) == 0 {
		conf.NextProtos = []string{alpn}
	}
	return conf
}
