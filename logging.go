package main

import (
	"os"

	"gopkg.in/inconshreveable/log15.v2"
)

// traceEnabled gates Trace() calls. It is set once in main before any
// worker goroutine starts and never written again, so reading it from
// worker goroutines afterward is race-free.
//
// log15 has only one level below Info (Debug), and this project wants three
// distinct verbosities (-v, -vv, and everything -v also shows), so the
// -vv/"trace" distinction is implemented as a gate in front of Debug calls
// rather than as a fourth log15.Lvl.
var traceEnabled bool

// newLogger builds the process-wide log15.Logger for the given verbosity.
//
//   quiet: only Crit (effectively silent short of a fatal startup error)
//   normal (default): Info and above
//   verbose (-v): Debug and above
//   trace (-vv): Debug and above, plus Trace() calls are no longer no-ops
func newLogger(quiet, verbose, trace bool) log15.Logger {
	traceEnabled = trace

	logger := log15.New()

	level := log15.LvlInfo
	switch {
	case quiet:
		level = log15.LvlCrit
	case verbose, trace:
		level = log15.LvlDebug
	}

	handler := log15.LvlFilterHandler(level, log15.StreamHandler(os.Stderr, log15.LogfmtFormat()))
	logger.SetHandler(handler)

	return logger
}

// Trace logs at Debug level, but only when the server was started with -vv.
// A plain -v run never sees Trace() output even though both run at log15's
// Debug level internally.
func Trace(logger log15.Logger, msg string, ctx ...interface{}) {
	if !traceEnabled {
		return
	}
	logger.Debug(msg, ctx...)
}
