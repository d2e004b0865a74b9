/*
 * A minimal IRC server (RFC 2812 subset): registration, NICK/USER/QUIT,
 * PRIVMSG/NOTICE routing, WHOIS, LUSERS, and MOTD. No channels, no
 * server-to-server linking.
 */

package main

import (
	"os"
)

func main() {
	args := getArgs()
	if args == nil {
		os.Exit(1)
	}

	logger := newLogger(args.Quiet, args.Verbose, args.Trace)

	// The operator password is accepted but never checked: this server has no
	// operator-privileged commands to gate behind it.
	_ = args.OperPassword

	registry := NewRegistry()

	listener, err := Listen(args.Port, registry, logger)
	if err != nil {
		logger.Crit("unable to start listening", "port", args.Port, "err", err)
		os.Exit(1)
	}

	logger.Info("listening", "addr", listener.Addr().String())

	listener.Run()
}
