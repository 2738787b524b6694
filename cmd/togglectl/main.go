// Command togglectl inspects and changes the shared feature flags of an
// application from the command line.
//
// Usage:
//
//	togglectl [-env-file .env] <command> [args]
//
// Commands:
//
//	list [tag...]          list flags, optionally filtered by tags
//	get <name>             print a flag as JSON
//	check <name>           evaluate a flag for this process
//	create <name> [desc]   create a disabled flag
//	enable <name>          enable a flag
//	disable <name>         disable a flag
//	delete <name>          delete a flag
//	seed <file.yaml>       create missing flags from a seed file
//	watch                  print change messages until interrupted
//
// Connection settings are read from REDIS_* environment variables.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "togglectl:", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
