package main

// ---------------------------------------------------------------------------
// cmd_config.go: show, validate, initialize, or modify configuration
// ---------------------------------------------------------------------------

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/solve-it-project/solveit/internal/core"
)

func cmdConfig(args []string) {
	if len(args) > 0 && args[0] == "set" {
		cmdConfigSet(args[1:])
		return
	}
	if len(args) > 0 && args[0] == "init" {
		cmdConfigInit(args[1:])
		return
	}

	fs := flag.NewFlagSet("config", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "Config file path")
	validate := fs.Bool("validate", false, "Validate config and exit")
	format := fs.String("format", "yaml", "Output format: yaml, json")
	output := fs.String("output", "", "Write output to file")
	fs.Parse(args)

	*configPath = envConfig(*configPath)

	cfg, err := core.LoadConfig(*configPath)
	if err != nil {
		if *validate {
			fmt.Fprintf(os.Stderr, "%s Config invalid: %v\n", red("✗"), err)
			os.Exit(1)
		}
		errorf("loading config: %v", err)
	}

	if *validate {
		warnings, errs := cfg.Validate()
		for _, w := range warnings {
			fmt.Fprintf(os.Stderr, "%s %s\n", yellow("⚠"), w)
		}
		if len(errs) > 0 {
			fmt.Fprintf(os.Stderr, "%s Config has %d issue(s):\n", red("✗"), len(errs))
			for _, e := range errs {
				fmt.Fprintf(os.Stderr, "  - %s\n", e)
			}
			os.Exit(1)
		}
		fmt.Fprintf(os.Stdout, "%s Config valid (%s). Source %s:%s, mapping %s.\n",
			green("✓"), *configPath, cfg.Data.Source, dataLocation(cfg), cfg.Data.Mapping)
		os.Exit(0)
	}

	w, cleanup := outputWriter(*output)
	defer cleanup()

	if parseFormat(*format) == FormatJSON {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			errorf("marshaling config: %v", err)
		}
		fmt.Fprintln(w, string(data))
		return
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		errorf("marshaling config: %v", err)
	}
	fmt.Fprint(w, string(data))
}

func dataLocation(cfg *core.Config) string {
	if cfg.Data.Source == core.SourceS3 {
		return "s3://" + cfg.Data.S3.Bucket + "/" + cfg.Data.S3.Prefix
	}
	return cfg.Data.Root
}

// cmdConfigInit writes the default configuration.
func cmdConfigInit(args []string) {
	fs := flag.NewFlagSet("config-init", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "Config file path")
	force := fs.Bool("force", false, "Overwrite an existing file")
	fs.Parse(args)

	*configPath = envConfig(*configPath)
	if _, err := os.Stat(*configPath); err == nil && !*force {
		errorf("%s already exists, pass --force to overwrite", *configPath)
	}
	if dir := filepath.Dir(*configPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			errorf("creating %s: %v", dir, err)
		}
	}
	if err := core.SaveConfig(core.DefaultConfig(), *configPath); err != nil {
		errorf("writing config: %v", err)
	}
	fmt.Fprintf(os.Stdout, "%s Wrote default config to %s\n", green("✓"), *configPath)
}

func cmdConfigSet(args []string) {
	fs := flag.NewFlagSet("config-set", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "Config file path")
	fs.Parse(args)

	*configPath = envConfig(*configPath)

	remaining := fs.Args()
	if len(remaining) < 2 {
		errorf("usage: solveit config set <key> <value>\n\nExamples:\n  solveit config set server.port 8080\n  solveit config set logging.level debug\n  solveit config set data.mapping carrier.json")
	}

	key := remaining[0]
	value := remaining[1]

	data, err := os.ReadFile(*configPath)
	if err != nil {
		errorf("reading config: %v", err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		errorf("parsing config: %v", err)
	}
	if raw == nil {
		raw = map[string]interface{}{}
	}

	parts := strings.Split(key, ".")
	if err := setNestedValue(raw, parts, value); err != nil {
		errorf("setting %s: %v", key, err)
	}

	out, err := yaml.Marshal(raw)
	if err != nil {
		errorf("marshaling config: %v", err)
	}

	// Refuse to write a file that no longer parses as a config.
	var check core.Config
	if err := yaml.Unmarshal(out, &check); err != nil {
		errorf("%s = %s does not fit the config schema: %v", key, value, err)
	}

	if err := os.WriteFile(*configPath, out, 0o644); err != nil {
		errorf("writing config: %v", err)
	}

	fmt.Fprintf(os.Stdout, "%s Set %s = %s in %s\n", green("✓"), bold(key), value, *configPath)
}

func setNestedValue(m map[string]interface{}, path []string, value string) error {
	if len(path) == 0 {
		return fmt.Errorf("empty key path")
	}

	if len(path) == 1 {
		m[path[0]] = parseValue(value)
		return nil
	}

	next, ok := m[path[0]]
	if !ok {
		next = map[string]interface{}{}
		m[path[0]] = next
	}

	nextMap, ok := next.(map[string]interface{})
	if !ok {
		return fmt.Errorf("key %q is not a map", path[0])
	}

	return setNestedValue(nextMap, path[1:], value)
}
