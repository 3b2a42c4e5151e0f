package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/gm-agent-org/mcp-guard/internal/commands"
)

func main() {
	err := commands.NewRootCmd().ExecuteContext(context.Background())
	var exitErr *commands.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		os.Exit(exitErr.Code)
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
