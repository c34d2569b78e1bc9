package main

import (
	"fmt"
	"os"

	"github.com/tphakala/odeflow/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "odeflow:", err)
		os.Exit(1)
	}
}
