package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/shurlinet/meshgit/internal/config"
)

func runConnect(args []string) {
	fs := flag.NewFlagSet("connect", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: meshnode connect <addr>")
		osExit(1)
	}

	addr, err := config.NormalizeSocketAddr(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}

	c := daemonClient()
	if err := c.Connect(addr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
	fmt.Printf("Dialing %s\n", addr)
}
