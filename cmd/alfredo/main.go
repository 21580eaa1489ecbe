package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"alfredo/internal/commands"
)

func main() {
	if err := commands.New().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
