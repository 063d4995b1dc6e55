// Command dittostore manages files in a DittoStore deployment: upload,
// version, list, share and delete them, reconcile orphaned bytes, and run
// the long-lived collector with its metrics endpoint.
//
// Configuration comes from the file given with --config (or
// $XDG_CONFIG_HOME/dittostore/config.yaml), DITTOSTORE_* environment
// variables and the global flags. Run 'dittostore init' to write a default
// file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}
	if err := a.execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
