// Package quicnet carries the session messages over QUIC: one long-lived
// bidirectional stream per connection for reliable messages and datagrams
// for the unreliable ones.
package quicnet

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quic-go/quic-go"

	"github.com/automoto/rewind/logging"
	"github.com/automoto/rewind/shared/protocol"
)

const (
	alpn = "rewind"

	// maxMessageSize bounds a single reliable message.
	maxMessageSize = 4 << 20
)

var ErrMessageTooLarge = errors.New("quicnet: message too large")

// Handler receives session events. Calls for one session come from its
// own goroutines; Message may run concurrently for stream and datagram
// traffic.
type Handler interface {
	Connected(s *Session)
	Message(s *Session, msg any)
	Disconnected(s *Session, err error)
}

func quicConfig() *quic.Config {
	return &quic.Config{
		EnableDatagrams: true,
		KeepAlivePeriod: 5 * time.Second,
		MaxIdleTimeout:  30 * time.Second,
	}
}

// Session is one QUIC connection.
type Session struct {
	ID uuid.UUID

	conn   *quic.Conn
	stream *quic.Stream
	mtu    int
	log    logging.Logger

	writeMu sync.Mutex
	once    sync.Once
	done    chan struct{}
}

func newSession(conn *quic.Conn, stream *quic.Stream, mtu int, log logging.Logger) *Session {
	if mtu <= 0 {
		mtu = protocol.DefaultMTU
	}
	return &Session{
		ID:     uuid.New(),
		conn:   conn,
		stream: stream,
		mtu:    mtu,
		log:    logging.OrNop(log),
		done:   make(chan struct{}),
	}
}

func (s *Session) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

// Done is closed once the session has ended.
func (s *Session) Done() <-chan struct{} { return s.done }

// Send encodes msg and sends it. Unreliable messages that do not fit a
// datagram, or that the connection refuses as one, go over the stream.
func (s *Session) Send(msg any, reliable bool) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	if !reliable && len(data) <= s.mtu {
		err := s.conn.SendDatagram(data)
		if err == nil {
			return nil
		}
		s.log.Debug("datagram refused, using stream", "session", s.ID, "size", len(data), "err", err)
	}
	return s.writeFrame(data)
}

func (s *Session) writeFrame(data []byte) error {
	if len(data) > maxMessageSize {
		return fmt.Errorf("%d bytes: %w", len(data), ErrMessageTooLarge)
	}
	frame := binary.AppendUvarint(make([]byte, 0, len(data)+binary.MaxVarintLen32), uint64(len(data)))
	frame = append(frame, data...)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.stream.Write(frame)
	return err
}

// Close ends the session.
func (s *Session) Close(reason string) error {
	return s.conn.CloseWithError(0, reason)
}

// serve pumps both channels into h until the connection ends.
func (s *Session) serve(ctx context.Context, h Handler) {
	errs := make(chan error, 2)
	go func() { errs <- s.readStream(h) }()
	go func() { errs <- s.readDatagrams(ctx, h) }()

	err := <-errs
	_ = s.conn.CloseWithError(0, "session ended")
	<-errs
	s.once.Do(func() { close(s.done) })
	if isClosed(err) {
		err = nil
	}
	h.Disconnected(s, err)
}

func (s *Session) readStream(h Handler) error {
	r := bufio.NewReader(s.stream)
	for {
		size, err := binary.ReadUvarint(r)
		if err != nil {
			return err
		}
		if size > maxMessageSize {
			return fmt.Errorf("%d bytes: %w", size, ErrMessageTooLarge)
		}
		buf := make([]byte, size)
		if _, err := io.ReadFull(r, buf); err != nil {
			return err
		}
		s.dispatch(h, buf)
	}
}

func (s *Session) readDatagrams(ctx context.Context, h Handler) error {
	for {
		data, err := s.conn.ReceiveDatagram(ctx)
		if err != nil {
			return err
		}
		s.dispatch(h, data)
	}
}

func (s *Session) dispatch(h Handler, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		s.log.Warn("undecodable message", "session", s.ID, "size", len(data), "err", err)
		return
	}
	h.Message(s, msg)
}

func isClosed(err error) bool {
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		return true
	}
	var appErr *quic.ApplicationError
	return errors.As(err, &appErr) && appErr.ErrorCode == 0
}
