package main

import (
	"fmt"
	"os"

	"asterhunt/internal/cli"
	"asterhunt/internal/config"
	"asterhunt/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log, err := logging.Setup(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logging:", err)
		os.Exit(1)
	}

	if err := cli.NewRootCmd(cfg, log).Execute(); err != nil {
		log.Error("asterhunt failed", "error", err)
		os.Exit(1)
	}
}
