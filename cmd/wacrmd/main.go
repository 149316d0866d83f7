package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/wacrm/wacrm/internal/daemon"
	"github.com/wacrm/wacrm/internal/workspace"
	"go.uber.org/fx"
)

func main() {
	workspaceFlag := flag.String("workspace", "", "workspace name (overrides config default)")
	addrFlag := flag.String("addr", "", "http listen address (overrides config)")
	flag.Parse()

	name := workspace.Resolve(*workspaceFlag)
	if err := workspace.ValidateName(name); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{WorkspaceName: name, HTTPAddr: *addrFlag}),
	)

	app.Run()
}
