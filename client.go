package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"gopkg.in/inconshreveable/log15.v2"
)

// regState is a connection worker's position in the registration state
// machine: a client must supply both a nickname and a user record, in
// either order, before it is fully registered.
type regState int

const (
	regStart regState = iota
	regHaveNick
	regHaveUser
	regRegistered
)

// mailboxBuffer is how many pending lines a worker's inbound mailbox holds.
// Once it is full, further posts are dropped (see post) rather than blocking
// the sender. True unbounded delivery is approximated with a buffer generous
// enough that a slow consumer under normal chat traffic never fills it.
const mailboxBuffer = 4096

// Client is the per-connection worker: it owns the socket, owns its inbound
// mailbox, and drives the registration state machine and command dispatch
// for exactly one TCP connection. One Client runs in its own goroutine.
type Client struct {
	conn Conn

	// mailbox is the receive side of this worker's inbound mailbox. The send
	// side is handed to the Registry at accept time so other workers can post
	// into it.
	mailbox <-chan string

	registry *Registry
	logger   log15.Logger

	peerAddr  string
	localAddr string

	state regState
	nick  string
	user  UserRecord
}

// NewClient creates a worker for an accepted connection. mailbox is this
// worker's inbound receive channel; its paired send channel must already be
// registered in registry under peerAddr by the caller (the acceptor).
func NewClient(conn Conn, mailbox <-chan string, registry *Registry, logger log15.Logger) *Client {
	return &Client{
		conn:      conn,
		mailbox:   mailbox,
		registry:  registry,
		logger:    logger,
		peerAddr:  conn.RemoteAddr().String(),
		localAddr: conn.LocalAddr().String(),
	}
}

// Run drives the connection until QUIT or EOF. A socket read error is logged
// and the loop goes on to its next iteration. It always cleans up the peer's
// registry footprint before returning.
func (c *Client) Run() {
	c.logger.Info("client connected", "peer", c.peerAddr)

	for {
		c.drainMailbox()

		line, err := c.conn.ReadLine()
		if err == ErrWouldBlock {
			continue
		}
		if err == io.EOF {
			c.logger.Info("client disconnected", "peer", c.peerAddr)
			break
		}
		if err != nil {
			c.logger.Error("socket read error", "peer", c.peerAddr, "err", err)
			continue
		}

		if c.handleLine(line) {
			break
		}
	}

	c.registry.DropPeer(c.peerAddr)
	_ = c.conn.Close()
}

// drainMailbox flushes every line currently pending in the inbound mailbox
// to the socket. It never blocks: once the mailbox has no more pending
// lines it returns immediately. This always runs before the one socket read
// per loop iteration, which is what gives same-target PRIVMSGs their
// observable per-sender ordering: a sender's messages reach a given
// recipient in the order they were sent.
func (c *Client) drainMailbox() {
	for {
		select {
		case line := <-c.mailbox:
			if err := c.conn.WriteLine(line); err != nil {
				c.logger.Error("socket write error", "peer", c.peerAddr, "err", err)
			}
		default:
			return
		}
	}
}

// handleLine parses and dispatches one wire line. It returns true if the
// connection should now be closed (QUIT was handled).
func (c *Client) handleLine(line string) bool {
	cmd, err := Parse(line)
	if err != nil {
		c.logger.Error("message parse error", "peer", c.peerAddr, "err", err)
		return false
	}

	Trace(c.logger, "dispatching command", "peer", c.peerAddr, "cmd", fmt.Sprintf("%T", cmd))

	switch m := cmd.(type) {
	case Nick:
		c.handleNick(m.Nick)
	case User:
		c.handleUser(m)
	case Quit:
		c.handleQuit(m.Message)
		return true
	case Privmsg:
		c.handlePrivmsg(m.Target, m.Text)
	case Notice:
		c.handleNotice(m.Target, m.Text)
	case Ping:
		c.handlePing()
	case Pong:
		// No liveness accounting is implemented; silently ignored.
	case Motd:
		c.handleMotd()
	case Lusers:
		c.handleLusers()
	case Whois:
		c.handleWhois(m.Target)
	case Unknown:
		c.handleUnknown(m.Command)
	}

	return false
}

// handleNick implements the NICK command's registration-state transitions.
//
// On every call we attempt to claim the nickname first, then - regardless of
// whether the claim succeeded - store it as the worker-local nickname. This
// preserves a source quirk: a second NICK that collides still overwrites the
// worker's own idea of its nickname even though the registry's nicks map is
// left untouched.
func (c *Client) handleNick(nick string) {
	claimed := c.registry.ClaimNick(c.peerAddr, nick)
	c.nick = nick

	if !claimed {
		c.sendNumeric("433", "*", nick, "Nickname is already in use")
		return
	}

	switch c.state {
	case regStart:
		c.state = regHaveNick
	case regHaveUser:
		c.state = regRegistered
		c.completeRegistration()
	}
}

// handleUser implements the USER command's registration-state transitions.
func (c *Client) handleUser(u User) {
	c.user = UserRecord{User: u.User, Mode: u.Mode, RealName: u.RealName}
	c.registry.SetUser(c.peerAddr, c.user)

	switch c.state {
	case regStart:
		c.state = regHaveUser
	case regHaveNick:
		c.state = regRegistered
		c.completeRegistration()
	}
}

// completeRegistration sends the welcome burst exactly once, at the moment
// a worker first has both a nickname and a user record.
func (c *Client) completeRegistration() {
	c.registry.IncrementRegistered()

	c.sendNumeric("001", c.nick, fmt.Sprintf(
		"Welcome to the Internet Relay Network %s!%s@%s",
		c.nick, c.user.User, c.peerAddr))
	c.sendNumeric("002", c.nick, fmt.Sprintf(
		"Your host is %s, running version 0.1", c.localAddr))
	c.sendNumeric("003", c.nick, "This server was created SOMEDATE")
	c.sendRaw(fmt.Sprintf(":%s 004 %s %s 0.1 ao mtov", c.localAddr, c.nick, c.localAddr))

	c.handleLusers()
	c.handleMotd()
}

// handleQuit drops the peer's registry footprint under a single critical
// section (via Registry.DropPeer) and sends the client's closing ERROR
// line. The caller (Run) is responsible for closing the socket afterward.
func (c *Client) handleQuit(msg string) {
	c.registry.DropPeer(c.peerAddr)
	c.sendRaw(fmt.Sprintf("ERROR :Closing Link: %s (%s)", c.peerAddr, msg))
}

// handlePrivmsg implements PRIVMSG. A miss yields 401 to the sender; a hit
// posts the formatted line into the target's mailbox.
func (c *Client) handlePrivmsg(target, text string) {
	mailbox, exists := c.registry.LookupMailboxByNick(target)
	if !exists {
		c.sendNumeric("401", c.nick, target, "No such nick/channel")
		return
	}

	c.post(mailbox, fmt.Sprintf(":%s!%s@%s PRIVMSG %s :%s",
		c.nick, c.user.User, c.localAddr, target, text))
}

// handleNotice implements NOTICE. Unlike PRIVMSG, a miss never replies.
func (c *Client) handleNotice(target, text string) {
	mailbox, exists := c.registry.LookupMailboxByNick(target)
	if !exists {
		return
	}

	c.post(mailbox, fmt.Sprintf(":%s!%s@%s NOTICE %s :%s",
		c.nick, c.user.User, c.localAddr, target, text))
}

// post delivers line into mailbox without blocking the protocol loop beyond
// the channel's own buffering. A full mailbox (an overwhelmed or wedged
// peer) is logged and the line is dropped rather than blocking this worker.
func (c *Client) post(mailbox chan<- string, line string) {
	select {
	case mailbox <- line:
	default:
		c.logger.Error("mailbox full, dropping message", "peer", c.peerAddr)
	}
}

func (c *Client) handlePing() {
	c.sendRaw(fmt.Sprintf("PONG %s", c.localAddr))
}

// handleMotd reads motd.txt from the working directory in 80-byte chunks,
// preserving the source behavior of not rounding to UTF-8 boundaries: a
// multi-byte code point straddling an 80-byte boundary is split across two
// 372 lines as raw bytes.
func (c *Client) handleMotd() {
	f, err := os.Open("motd.txt")
	if err != nil {
		c.sendNumeric("422", c.nick, "MOTD File is missing")
		return
	}
	defer func() { _ = f.Close() }()

	c.sendNumeric("375", c.nick, fmt.Sprintf("- %s Message of the day -", c.localAddr))

	buf := make([]byte, 80)
	r := bufio.NewReader(f)
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			c.sendNumeric("372", c.nick, fmt.Sprintf("- %s", string(buf[:n])))
		}
		if err != nil {
			break
		}
	}

	c.sendNumeric("376", c.nick, "End of MOTD command")
}

// handleLusers emits the 251-255 group. Operators and channels are always
// zero: this server has neither concept.
func (c *Client) handleLusers() {
	registered := c.registry.RegisteredCount()
	clients := c.registry.ClientCount()
	unknown := clients - registered

	c.sendNumeric("251", c.nick, fmt.Sprintf(
		"There are %d users and 0 services on 1 servers", registered))
	c.sendNumeric("252", c.nick, "0", "operator(s) online")
	c.sendNumeric("253", c.nick, fmt.Sprintf("%d", unknown), "unknown connection(s)")
	c.sendNumeric("254", c.nick, "0", "channels formed")
	c.sendNumeric("255", c.nick, fmt.Sprintf("I have %d clients and 1 servers", clients))
}

// handleWhois implements WHOIS for a single nickname target.
func (c *Client) handleWhois(target string) {
	peer, user, ok := c.registry.WhoisSnapshot(target)
	if !ok {
		c.sendNumeric("401", c.nick, target, "No such nick/channel")
		return
	}

	c.sendNumeric("311", c.nick, target, user.User, peer, "*", user.RealName)
	c.sendNumeric("312", c.nick, target, peer, "server info")
	c.sendNumeric("318", c.nick, target, "End of WHOIS list")
}

func (c *Client) handleUnknown(command string) {
	c.sendNumeric("421", c.nick, command, "Unknown command")
}

// sendNumeric writes a numeric reply of the form:
//
//	:<server> <code> <nick> <args...> :<lastArg>
//
// The final argument is always sent as the trailing, colon-prefixed
// parameter; all others are sent as middle parameters, matching RFC 2812's
// numeric reply format.
func (c *Client) sendNumeric(code, nick string, args ...string) {
	nickField := nick
	if nickField == "" {
		nickField = "*"
	}

	line := fmt.Sprintf(":%s %s %s", c.localAddr, code, nickField)
	for i, a := range args {
		if i == len(args)-1 {
			line += " :" + a
		} else {
			line += " " + a
		}
	}
	c.sendRaw(line)
}

// sendRaw writes a fully-formatted line (no further framing applied) to
// this worker's own socket.
func (c *Client) sendRaw(line string) {
	if err := c.conn.WriteLine(line); err != nil {
		c.logger.Error("socket write error", "peer", c.peerAddr, "err", err)
	}
}
