package main

import (
	"flag"
	"fmt"
	"os"
)

// defaultPort is the TCP port bound when -p is not given.
const defaultPort = "6667"

// Args are the command line arguments this server accepts.
type Args struct {
	// OperPassword is accepted but unused by the core (see spec Non-goals).
	OperPassword string

	Port string

	Quiet   bool
	Verbose bool
	Trace   bool
}

// getArgs parses os.Args. It returns nil if parsing failed or -h was given;
// in both cases usage has already been printed.
func getArgs() *Args {
	operPassword := flag.String("o", "", "Operator password. (required)")
	port := flag.String("p", defaultPort, "Port to listen on.")
	quiet := flag.Bool("q", false, "Quiet mode. Disable logging.")
	verbose := flag.Bool("v", false, "Print debug messages.")
	trace := flag.Bool("vv", false, "Print trace messages.")
	help := flag.Bool("h", false, "Print this help message.")

	flag.CommandLine.Init(os.Args[0], flag.ContinueOnError)
	if err := flag.CommandLine.Parse(os.Args[1:]); err != nil {
		return nil
	}

	if *help {
		printUsage(nil)
		return nil
	}

	if len(*operPassword) == 0 {
		printUsage(fmt.Errorf("you must provide an operator password with -o"))
		return nil
	}

	return &Args{
		OperPassword: *operPassword,
		Port:         *port,
		Quiet:        *quiet,
		Verbose:      *verbose,
		Trace:        *trace,
	}
}

func printUsage(err error) {
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s\n", err)
	}
	_, _ = fmt.Fprintf(os.Stderr, "Usage: %s -o PASSWD [-p PORT] [(-q|-v|-vv)]\n", os.Args[0])
	flag.PrintDefaults()
}
