package network

import (
	"errors"
	"io"
	"net"
	"os"
	"time"
)

// pollWindow is how long a single poll may block waiting for the socket.
// It doubles as the idle backoff, so polling a silent connection doesn't
// spin a core.
const pollWindow = time.Millisecond

// TCPSource adapts a net.Conn to the ByteSource contract. Each poll reads
// with a deadline one pollWindow away; a deadline miss means "no byte
// available now".
type TCPSource struct {
	conn net.Conn
	buf  [1]byte
}

// NewTCPSource wraps an established connection.
func NewTCPSource(conn net.Conn) *TCPSource {
	return &TCPSource{conn: conn}
}

// TryReadByte polls the socket for a single byte.
func (s *TCPSource) TryReadByte() (byte, bool, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(pollWindow)); err != nil {
		if !errors.Is(err, io.ErrClosedPipe) {
			return 0, false, err
		}
		// A closed pipe refuses deadlines, but its Read returns at once and
		// tells a peer close (io.EOF) from a local one.
	}
	n, err := s.conn.Read(s.buf[:])
	if n == 1 {
		return s.buf[0], true, nil
	}
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return 0, false, nil
		}
		if errors.Is(err, io.EOF) {
			return 0, false, io.EOF
		}
		return 0, false, err
	}
	return 0, false, nil
}

// Write sends the whole slice to the peer. A short write is reported as an
// error by net.Conn, so a nil return means everything went out.
func (s *TCPSource) Write(p []byte) error {
	if err := s.conn.SetWriteDeadline(time.Time{}); err != nil {
		return err
	}
	_, err := s.conn.Write(p)
	return err
}

// Close shuts the underlying connection.
func (s *TCPSource) Close() error {
	return s.conn.Close()
}
