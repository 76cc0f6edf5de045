// Package netio wraps a TCP connection with the idle-timeout semantics the
// SVFW layers are built on (spec.md §4.2): every read and write carries a
// fresh deadline, and a stalled peer is torn down rather than left open.
package netio

import (
	"fmt"
	"net"
	"time"
)

// ErrIdleTimeout marks a Stream teardown caused by the idle deadline
// elapsing rather than a protocol decision.
var ErrIdleTimeout = fmt.Errorf("netio: idle timeout")

// Stream wraps a net.Conn and applies an idle read/write deadline on every
// call, matching "no buffering beyond a single in-flight read" from
// spec.md §4.2.
type Stream struct {
	conn        net.Conn
	idleTimeout time.Duration
}

// New wraps conn. idleTimeout of zero disables the deadline.
func New(conn net.Conn, idleTimeout time.Duration) *Stream {
	return &Stream{conn: conn, idleTimeout: idleTimeout}
}

// Conn returns the underlying connection, for callers that need the remote
// address (RFC-1918 selection, logging) or to Close it directly.
func (s *Stream) Conn() net.Conn {
	return s.conn
}

// Read implements io.Reader, refreshing the idle deadline before each call
// so a read blocks for at most idleTimeout.
func (s *Stream) Read(p []byte) (int, error) {
	if s.idleTimeout > 0 {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.idleTimeout)); err != nil {
			return 0, fmt.Errorf("netio: setting read deadline: %w", err)
		}
	}
	n, err := s.conn.Read(p)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return n, fmt.Errorf("%w: %w", ErrIdleTimeout, err)
		}
		return n, err
	}
	return n, nil
}

// Write implements io.Writer, refreshing the idle deadline before each
// call.
func (s *Stream) Write(p []byte) (int, error) {
	if s.idleTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.idleTimeout)); err != nil {
			return 0, fmt.Errorf("netio: setting write deadline: %w", err)
		}
	}
	n, err := s.conn.Write(p)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return n, fmt.Errorf("%w: %w", ErrIdleTimeout, err)
		}
		return n, err
	}
	return n, nil
}

// Close closes the underlying connection.
func (s *Stream) Close() error {
	return s.conn.Close()
}

// RemoteHost returns the peer's IP address with the port stripped, used for
// RFC-1918 game-server address selection (spec.md §4.6 step 4).
func (s *Stream) RemoteHost() (string, error) {
	host, _, err := net.SplitHostPort(s.conn.RemoteAddr().String())
	if err != nil {
		return "", fmt.Errorf("netio: splitting remote address: %w", err)
	}
	return host, nil
}
