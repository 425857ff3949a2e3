package quicnet

import (
	"context"
	"crypto/tls"

	"github.com/quic-go/quic-go"

	"github.com/automoto/rewind/logging"
)

// Dial connects to a Server and sends hello, which opens the reliable
// stream. Session events go to h; Connected is called before Dial returns.
func Dial(ctx context.Context, address string, tlsConf *tls.Config, hello any, h Handler, log logging.Logger) (*Session, error) {
	conn, err := quic.DialAddr(ctx, address, withALPN(tlsConf), quicConfig())
	if err != nil {
		return nil, err
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(1, "open stream")
		return nil, err
	}

	sess := newSession(conn, stream, 0, log)
	if err := sess.Send(hello, true); err != nil {
		_ = conn.CloseWithError(1, "hello")
		return nil, err
	}
	h.Connected(sess)
	go sess.serve(context.WithoutCancel(ctx), h)
	return sess, nil
}
