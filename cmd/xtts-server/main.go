package main

import (
	"context"
	"fmt"
	"os"

	"xtts-server-go/internal/bootstrap"
)

func main() {
	if err := bootstrap.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "xtts-server failed: %v\n", err)
		os.Exit(1)
	}
}
