// Command dispatchd runs the context-aware tool dispatch daemon: it
// loads the tool manifest directory and RBAC policies, wires the
// dispatcher to the sandbox/native/subprocess drivers, and serves the
// tool execution RPC over HTTP until it receives a shutdown signal.
//
// Flag parsing and the admin web UI are explicitly out of scope per
// spec.md §1; this entrypoint is a thin shell around the daemon's Run
// method, not a full CLI surface.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
