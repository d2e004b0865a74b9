package main

import (
	"fmt"
	"net"

	"github.com/pkg/errors"
	"gopkg.in/inconshreveable/log15.v2"
)

// Listener accepts TCP connections on a single port and spawns a worker
// goroutine for each one, wiring the worker into the shared Registry.
type Listener struct {
	ln       net.Listener
	registry *Registry
	logger   log15.Logger
}

// Listen binds 127.0.0.1:port and returns a Listener ready to Run.
func Listen(port string, registry *Registry, logger log15.Logger) (*Listener, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%s", port))
	if err != nil {
		return nil, errors.Wrap(err, "unable to listen")
	}

	return &Listener{
		ln:       ln,
		registry: registry,
		logger:   logger,
	}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Run accepts connections in a loop that never returns. Accept errors are
// logged and accepting continues; there is no accept-side backoff or
// admission control.
func (l *Listener) Run() {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			l.logger.Error("accept error", "err", err)
			continue
		}

		l.spawn(conn)
	}
}

// spawn wires up one accepted connection: it wraps the socket, creates the
// worker's inbound mailbox, registers the mailbox's send side under the
// peer's address, and starts the worker goroutine.
func (l *Listener) spawn(conn net.Conn) {
	wrapped := NewConn(conn)
	peerAddr := wrapped.RemoteAddr().String()

	mailbox := make(chan string, mailboxBuffer)
	l.registry.RegisterMailbox(peerAddr, mailbox)

	client := NewClient(wrapped, mailbox, l.registry, l.logger)

	go client.Run()
}
