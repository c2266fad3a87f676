// Package cli provides the command-line interface for conductor.
// It exports Run() to allow embedding by wrapper projects.
package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/zot/conductor/internal/config"
	"github.com/zot/conductor/internal/controller"
	"github.com/zot/conductor/internal/host"
	"github.com/zot/conductor/internal/script"
)

// Version is overridden at build time via -ldflags.
var Version = "dev"

// Run executes the CLI with the given arguments.
// Returns exit code (0 = success, non-zero = error).
func Run(args []string) int {
	if len(args) < 1 {
		return runServe(args)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "serve":
		return runServe(cmdArgs)
	case "ls":
		return runLs(cmdArgs)
	case "order":
		return runOrder(cmdArgs)
	case "help", "-h", "--help":
		printHelp()
		return 0
	case "version", "--version":
		fmt.Println("conductor " + Version)
		return 0
	default:
		// Bare flags mean serve
		if len(command) > 0 && command[0] == '-' {
			return runServe(args)
		}
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printHelp()
		return 1
	}
}

// runServe loads the controllers and drives the host dispatch loop until
// interrupted.
func runServe(args []string) int {
	cfg, err := config.Load(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	loop := host.NewLoop(cfg)
	core := controller.New(cfg, loop.Sources())
	defer core.Close()

	core.Init()

	if cfg.Controllers.HotReload {
		hot, err := script.NewHotLoader(cfg, cfg.Controllers.Roots, func(path string) {
			loop.Post(func() { core.ReloadFile(path) })
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		if err := hot.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		defer hot.Stop()
	}

	if addr := cfg.Host.InputAddr; addr != "" {
		input := host.NewInputSocket(cfg, loop)
		if err := input.Start(addr); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		defer input.Stop()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cfg.Log(0, "shutting down")
		loop.Stop()
	}()

	loop.Run()
	return 0
}

// runLs prints every discovered unit name in discovery order.
func runLs(args []string) int {
	cfg, err := config.Load(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	core := controller.New(cfg, nil)
	defer core.Close()
	core.Load()

	for _, h := range core.Registry.Handles() {
		fmt.Printf("%s\t%s\n", h.Name, h.Path)
	}
	return 0
}

// runOrder prints the resolved initialization order without running any init
// hooks.
func runOrder(args []string) int {
	cfg, err := config.Load(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	core := controller.New(cfg, nil)
	defer core.Close()
	core.Load()

	for i, c := range core.Order() {
		fmt.Printf("%d\t%s\t(priority %d)\n", i+1, c.Name, c.Priority)
	}
	return 0
}

func printHelp() {
	fmt.Println(`Conductor

Usage: conductor [command] [options]

Commands:
  serve     Load controllers and run the host dispatch loop (default)
  ls        List discovered loadable units
  order     Print the resolved initialization order
  version   Print version
  help      Show this help

Options:
  -config path      TOML config file (default conductor.toml)
  -roots a,b        Controller root directories (deep-indexed)
  -packages dir     Shared-packages root (shallow-indexed)
  -context ctx      Execution context: client or server
  -hot-reload       Reload controller scripts on change
  -tick d           Update tick interval (e.g. 16ms)
  -input-addr addr  Websocket input bridge listen address
  -v, -vv, -vvv     Increase verbosity`)
}
