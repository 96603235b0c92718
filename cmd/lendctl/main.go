// Command lendctl drives the lending API from a terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"lendingapi/internal/client"
	"lendingapi/internal/config"
)

func main() {
	config.LoadEnvFiles()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := newRootCmd(newApp())
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if hint := hintFor(err); hint != "" {
			fmt.Fprintln(os.Stderr, hint)
		}
		stop()
		os.Exit(1)
	}
}

func hintFor(err error) string {
	switch {
	case errors.Is(err, client.ErrTransient):
		return "The server could not be reached or was busy. Nothing was changed; try again."
	case errors.Is(err, client.ErrUnauthorized):
		return "Run `lendctl login` first."
	case errors.Is(err, client.ErrForbidden):
		return "This command needs an administrator account."
	}
	return ""
}
