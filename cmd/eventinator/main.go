package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/hitoshi/eventinator/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "eventinator: %v\n", err)
		os.Exit(1)
	}
}
