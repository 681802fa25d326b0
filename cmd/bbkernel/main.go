package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"bbkernel/internal/apperr"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command line and returns the process exit code. Coded
// errors exit with their namespace block.
func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(stderr, "bbkernel: %v\n", err)
		return apperr.ExitCode(err)
	}
	return 0
}

// splitCSV splits a comma-separated list, trimming blanks and dropping empty items.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
