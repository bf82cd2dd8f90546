package main

// ---------------------------------------------------------------------------
// main.go: command dispatcher for the solveit CLI
//
// Command implementations live in cmd_*.go. Shared helpers are in
// helpers.go, http.go, output.go, kb.go and banner.go.
// ---------------------------------------------------------------------------

import (
	"fmt"
	"os"

	"github.com/solve-it-project/solveit/internal/api"
)

var (
	version   = "0.4.0"
	commit    = "dev"
	buildDate = "unknown"
)

func main() {
	api.Version = version

	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--version", "-V":
			printVersion(os.Stdout)
			os.Exit(0)
		case "--help", "-h", "help":
			if len(os.Args) >= 3 {
				cmdHelp(os.Args[2])
			} else {
				printUsage(os.Stdout)
			}
			os.Exit(0)
		}
	}

	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(0)
	}

	subcmd := os.Args[1]
	args := os.Args[2:]

	for _, a := range args {
		if a == "-h" || a == "--help" {
			cmdHelp(subcmd)
			os.Exit(0)
		}
	}

	switch subcmd {
	case "serve":
		cmdServe(args)
	case "search":
		cmdSearch(args)
	case "show":
		cmdShow(args)
	case "list":
		cmdList(args)
	case "tsv":
		cmdTSV(args)
	case "stats":
		cmdStats(args)
	case "matrix":
		cmdMatrix(args)
	case "diagram":
		cmdDiagram(args)
	case "export":
		cmdExport(args)
	case "validate":
		cmdValidate(args)
	case "config":
		cmdConfig(args)
	case "status":
		cmdStatus(args)
	case "reload":
		cmdReload(args)
	case "version":
		printVersion(os.Stdout)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, red("error: ")+"unknown command %q\n\n", subcmd)
		if s := suggest(subcmd); s != "" {
			fmt.Fprintf(os.Stderr, "       Did you mean %s?\n\n", bold(s))
		}
		printUsage(os.Stderr)
		os.Exit(1)
	}
}
