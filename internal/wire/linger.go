package wire

import (
	"io"
	"net"
	"time"
)

// DefaultLingerLimit bounds how much unread upload Linger discards
const DefaultLingerLimit int64 = 64 << 20

type closeWriter interface {
	CloseWrite() error
}

// Linger half-closes conn after an error frame and discards whatever the
// peer is still sending, up to limit bytes or until deadline. Closing a TCP
// socket with unread input sends a reset, which can destroy the error frame
// before the peer reads it. The caller still closes conn.
func Linger(conn net.Conn, limit int64, deadline time.Time) {
	if limit <= 0 {
		limit = DefaultLingerLimit
	}
	if cw, ok := conn.(closeWriter); ok {
		_ = cw.CloseWrite()
	}
	_ = conn.SetReadDeadline(deadline)
	_, _ = io.CopyN(io.Discard, conn, limit)
}
