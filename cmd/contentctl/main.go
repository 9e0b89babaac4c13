// Package main runs the content operator CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	contentctlcmd "github.com/louisbranch/contentstream/internal/cmd/contentctl"
	"github.com/louisbranch/contentstream/internal/platform/config"
)

func main() {
	cfg, err := contentctlcmd.LoadConfig()
	if err != nil {
		config.Exitf(config.ExitUserError, "contentctl: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := contentctlcmd.Execute(ctx, cfg, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		stop()
		config.Exitf(config.ExitCode(err), "contentctl: %v", err)
	}
}
