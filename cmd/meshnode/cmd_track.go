package main

import (
	"flag"
	"fmt"
	"io"
	"os"
)

func runTrack(args []string) {
	fs := flag.NewFlagSet("track", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: meshnode track <proj-id>")
		osExit(1)
	}

	c := daemonClient()
	resp, err := c.Track(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
	if resp.Changed {
		fmt.Printf("Now tracking %s\n", resp.ProjId)
	} else {
		fmt.Printf("Already tracking %s\n", resp.ProjId)
	}
}

func runUntrack(args []string) {
	fs := flag.NewFlagSet("untrack", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: meshnode untrack <proj-id>")
		osExit(1)
	}

	c := daemonClient()
	resp, err := c.Untrack(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
	if resp.Changed {
		fmt.Printf("Stopped tracking %s\n", resp.ProjId)
	} else {
		fmt.Printf("Was not tracking %s\n", resp.ProjId)
	}
}
