package main

// ---------------------------------------------------------------------------
// helpers.go: TTY detection, color, error helpers, env-based config
// ---------------------------------------------------------------------------

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/solve-it-project/solveit/internal/core"
)

const (
	defaultConfigPath = "configs/solveit.yaml"
	envConfigVar      = core.EnvConfig
)

// ---------------------------------------------------------------------------
// TTY / color helpers
// ---------------------------------------------------------------------------

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

func colorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return isTTY(os.Stderr)
}

func ansi(code, s string) string {
	if !colorEnabled() {
		return s
	}
	return code + s + "\033[0m"
}

func red(s string) string    { return ansi("\033[91m", s) }
func yellow(s string) string { return ansi("\033[93m", s) }
func green(s string) string  { return ansi("\033[32m", s) }
func dim(s string) string    { return ansi("\033[90m", s) }
func bold(s string) string   { return ansi("\033[1m", s) }

// ---------------------------------------------------------------------------
// Error / warn helpers (always to stderr)
// ---------------------------------------------------------------------------

func errorf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, red("error: ")+format+"\n", args...)
	os.Exit(1)
}

func warnf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, yellow("warn: ")+format+"\n", args...)
}

// ---------------------------------------------------------------------------
// Env-based configuration
//
//   SOLVEIT_CONFIG  default config file path
//   SOLVEIT_HOST    API host override
//   SOLVEIT_PORT    API port override
//   SOLVEIT_API_KEY API key for authentication
// ---------------------------------------------------------------------------

// envConfig returns the config path, preferring flag > env > default.
func envConfig(flagVal string) string {
	if flagVal != "" && flagVal != defaultConfigPath {
		return flagVal
	}
	if e := os.Getenv(core.EnvConfig); e != "" {
		return e
	}
	return flagVal
}

// envHost returns the host, preferring flag > env.
func envHost(flagVal string) string {
	if flagVal != "" {
		return flagVal
	}
	return os.Getenv(core.EnvHost)
}

// envPort returns the port, preferring flag > env.
func envPort(flagVal int) int {
	if flagVal != 0 {
		return flagVal
	}
	if e := os.Getenv(core.EnvPort); e != "" {
		if p, err := strconv.Atoi(e); err == nil {
			return p
		}
	}
	return 0
}

// ---------------------------------------------------------------------------
// API helpers
// ---------------------------------------------------------------------------

func apiBase(configPath, hostOverride string, portOverride int) string {
	host := "127.0.0.1"
	port := core.DefaultConfig().Server.Port

	cfg, err := core.LoadConfig(configPath)
	if err == nil && cfg != nil {
		if cfg.Server.Host != "" && cfg.Server.Host != "0.0.0.0" {
			host = cfg.Server.Host
		}
		if cfg.Server.Port != 0 {
			port = cfg.Server.Port
		}
	}

	if hostOverride != "" {
		host = hostOverride
	}
	if portOverride != 0 {
		port = portOverride
	}

	return fmt.Sprintf("http://%s:%d", host, port)
}

// resolveAPIKey returns the API key from flag, env, or config (in that order).
func resolveAPIKey(flagKey, configPath string) string {
	if flagKey != "" {
		return flagKey
	}
	if envKey := os.Getenv(core.EnvAPIKey); envKey != "" {
		return envKey
	}
	cfg, err := core.LoadConfig(configPath)
	if err == nil && cfg != nil && len(cfg.Server.APIKeys) > 0 {
		return cfg.Server.APIKeys[0]
	}
	return ""
}

// parseArgs parses fs and returns the positional arguments, allowing flags
// after them ("solveit show T1001 --format json"). A bare "--" ends flag
// parsing.
func parseArgs(fs *flag.FlagSet, args []string) []string {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			errorf("%v", err)
		}
		rest := fs.Args()
		if len(rest) == 0 {
			return positional
		}
		if len(rest) < len(args) && args[len(args)-len(rest)-1] == "--" {
			return append(positional, rest...)
		}
		positional = append(positional, rest[0])
		args = rest[1:]
	}
}

// splitList splits a comma separated flag value, dropping blanks.
func splitList(s string) []string {
	out := make([]string, 0)
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Suggest: typo correction for unknown commands
// ---------------------------------------------------------------------------

func suggest(input string) string {
	input = strings.ToLower(input)
	if input == "" {
		return ""
	}
	for _, c := range commands {
		if strings.HasPrefix(c.name, input) || strings.HasPrefix(input, c.name) {
			return c.name
		}
	}
	for _, c := range commands {
		if len(c.name) == len(input) {
			diff := 0
			for i := range c.name {
				if c.name[i] != input[i] {
					diff++
				}
			}
			if diff <= 1 {
				return c.name
			}
		}
	}
	return ""
}

// ---------------------------------------------------------------------------
// parseValue converts a string to the appropriate Go type.
// ---------------------------------------------------------------------------

func parseValue(s string) interface{} {
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	if strings.Contains(s, ".") {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return s
}
