package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/imstore/internal/config"
	"github.com/matheus3301/imstore/internal/daemon"
	"github.com/matheus3301/imstore/internal/profile"
	"go.uber.org/fx"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides IMSTORE_PROFILE and config default)")
	configFlag := flag.String("config", "", "config file (default ~/.imstore/config.toml)")
	flag.Parse()

	cfgPath := *configFlag
	if cfgPath == "" {
		cfgPath = profile.ConfigPath()
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	name := profile.Resolve(*profileFlag, cfg)
	if err := profile.ValidateName(name); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{Profile: name, Config: cfg}),
	)

	app.Run()
}
