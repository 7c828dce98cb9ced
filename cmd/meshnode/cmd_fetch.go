package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
)

func runFetch(args []string) {
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	jsonFlag := fs.Bool("json", false, "output as JSON")
	if err := fs.Parse(reorderArgs(args, map[string]bool{"json": true})); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: meshnode fetch <proj-id> [--json]")
		osExit(1)
	}
	projId := fs.Arg(0)

	c := daemonClient()

	if *jsonFlag {
		resp, err := c.Fetch(projId)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			osExit(1)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(resp)
		return
	}

	text, err := c.FetchText(projId)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
	fmt.Print(text)
}
