package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// Missing .env is fine; the environment wins either way.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
