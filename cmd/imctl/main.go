package main

import (
	"os"

	"github.com/matheus3301/imstore/internal/ctl"
)

func main() {
	if err := ctl.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
