package main

// ---------------------------------------------------------------------------
// banner.go: banner and version/usage printing
// ---------------------------------------------------------------------------

import (
	"fmt"
	"io"
	goruntime "runtime"
	"runtime/debug"
)

func bannerText() string {
	art := `
    ┌──────────────────────────────────────────────┐
    │   ___  ___  _ __   _____     ___ _____      │
    │  / __|/ _ \| |\ \ / / __|___|_ _|_   _|     │
    │  \__ \ (_) | |_\ V /| _|___| | |  | |       │
    │  |___/\___/|____\_/ |___|   |___| |_|       │
    │                                              │
    │   digital forensics knowledge base           │
    └──────────────────────────────────────────────┘
`
	if !colorEnabled() {
		return art
	}
	return "\033[36m" + art + "\033[0m"
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "solveit v%s", version)
	if commit != "dev" {
		fmt.Fprintf(w, " (%s)", commit[:min(7, len(commit))])
	}
	if buildDate != "unknown" {
		fmt.Fprintf(w, " built %s", buildDate)
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		fmt.Fprintf(w, " %s", bi.GoVersion)
	}
	fmt.Fprintf(w, " %s/%s", goruntime.GOOS, goruntime.GOARCH)
	fmt.Fprintln(w)
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, bannerText())
	fmt.Fprintf(w, "  %s\n\n", dim("v"+version))
	fmt.Fprintf(w, "%s\n\n", bold("USAGE"))
	fmt.Fprintf(w, "  solveit <command> [flags]\n\n")
	fmt.Fprintf(w, "%s\n\n", bold("COMMANDS"))
	for _, c := range commands {
		fmt.Fprintf(w, "  %-14s  %s\n", bold(c.name), c.summary)
	}
	fmt.Fprintf(w, "\n%s\n\n", bold("GLOBAL FLAGS"))
	fmt.Fprintf(w, "  %-22s  %s\n", "--config <path>", "Config file path (default: "+defaultConfigPath+", env: "+envConfigVar+")")
	fmt.Fprintf(w, "  %-22s  %s\n", "--data <dir>", "Knowledge base root, overrides data.root (env: SOLVEIT_DATA_ROOT)")
	fmt.Fprintf(w, "  %-22s  %s\n", "--mapping <file>", "Objective mapping to make current")
	fmt.Fprintf(w, "  %-22s  %s\n", "--format <fmt>", "Output format: table, markdown, json, csv (default: table)")
	fmt.Fprintf(w, "  %-22s  %s\n", "--version, -V", "Print version and exit")
	fmt.Fprintf(w, "  %-22s  %s\n", "--help, -h", "Show help")
	fmt.Fprintf(w, "\n%s\n\n", bold("ENVIRONMENT VARIABLES"))
	fmt.Fprintf(w, "  %-22s  %s\n", "SOLVEIT_CONFIG", "Default config file path")
	fmt.Fprintf(w, "  %-22s  %s\n", "SOLVEIT_DATA_ROOT", "Knowledge base root directory")
	fmt.Fprintf(w, "  %-22s  %s\n", "SOLVEIT_HOST", "API host override")
	fmt.Fprintf(w, "  %-22s  %s\n", "SOLVEIT_PORT", "API port override")
	fmt.Fprintf(w, "  %-22s  %s\n", "SOLVEIT_API_KEY", "API key for authentication")
	fmt.Fprintf(w, "\n%s\n\n", bold("EXAMPLES"))
	fmt.Fprintf(w, "  %s\n", dim("# Search technique and weakness names"))
	fmt.Fprintf(w, "  solveit search \"disk image\" --types techniques,weaknesses\n\n")
	fmt.Fprintf(w, "  %s\n", dim("# Show a technique with its weaknesses and mitigations"))
	fmt.Fprintf(w, "  solveit show T1002\n\n")
	fmt.Fprintf(w, "  %s\n", dim("# Long-form technique listing as TSV"))
	fmt.Fprintf(w, "  solveit tsv techniques --long --output techniques.tsv\n\n")
	fmt.Fprintf(w, "  %s\n", dim("# Dependency diagram for one objective"))
	fmt.Fprintf(w, "  solveit diagram --objective \"Acquire data\" | dot -Tsvg > acquire.svg\n\n")
	fmt.Fprintf(w, "  %s\n", dim("# Serve the API with the carrier objective mapping"))
	fmt.Fprintf(w, "  solveit serve --mapping carrier.json\n\n")
	fmt.Fprintf(w, "Run %s for detailed help on any command.\n\n", bold("solveit help <command>"))
}
