package main

import (
	"bufio"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
)

// pollInterval is the read deadline applied before every read attempt.
// net.Conn has no native non-blocking mode, so this project follows the
// lineage's own net.go (which already sets a deadline before every read) and
// uses a short deadline as a non-blocking substitute: a read that times out
// is a would-block, not an error.
const pollInterval = 50 * time.Millisecond

// writeTimeout bounds a write. Writes are otherwise allowed to block the
// worker loop up to the OS's send buffering; this is only a backstop against
// a permanently wedged peer.
const writeTimeout = 30 * time.Second

// ErrWouldBlock is returned by Conn.ReadLine when the poll deadline elapsed
// without a complete line being available. Callers treat it as a no-op, not
// an error to log.
var ErrWouldBlock = errors.New("read would block")

// Conn wraps a client's TCP connection with line-oriented, deadline-based
// reads and writes.
type Conn struct {
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer

	// pending holds a line fragment read before a prior poll deadline
	// elapsed. bufio.Reader.ReadString still consumes whatever it buffered
	// before returning a timeout error, so that fragment has to be kept here
	// and prepended on the next call rather than discarded - otherwise any
	// line that arrives split across more than one poll window gets
	// corrupted or lost.
	pending string
}

// NewConn wraps conn for line-oriented IO.
func NewConn(conn net.Conn) Conn {
	return Conn{
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
	}
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// LocalAddr returns the local (server-side) network address.
func (c *Conn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the remote (peer) network address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// ReadLine reads a single line, including its terminator, from the
// connection.
//
// It returns ErrWouldBlock if no complete line arrived before the poll
// deadline; any bytes read so far are retained and prepended the next time
// ReadLine is called. It returns io.EOF if the peer closed the connection
// with nothing left pending. Any other error is a genuine socket error.
func (c *Conn) ReadLine() (string, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(pollInterval)); err != nil {
		return "", errors.Wrap(err, "unable to set read deadline")
	}

	line, err := c.reader.ReadString('\n')
	if err != nil {
		c.pending += line

		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return "", ErrWouldBlock
		}
		if err == io.EOF {
			if c.pending == "" {
				return "", io.EOF
			}
			// A partial line preceded the close. Hand back what we have; the
			// next call will see an empty pending buffer and report EOF again.
			out := c.pending
			c.pending = ""
			return out, nil
		}
		return "", errors.Wrap(err, "read error")
	}

	out := c.pending + line
	c.pending = ""
	return out, nil
}

// WriteLine writes s to the connection, appending a CRLF.
func (c *Conn) WriteLine(s string) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return errors.Wrap(err, "unable to set write deadline")
	}

	if _, err := c.writer.WriteString(s); err != nil {
		return errors.Wrap(err, "write error")
	}
	if _, err := c.writer.WriteString("\r\n"); err != nil {
		return errors.Wrap(err, "write error")
	}

	if err := c.writer.Flush(); err != nil {
		return errors.Wrap(err, "flush error")
	}

	return nil
}
