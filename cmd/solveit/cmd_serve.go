package main

// ---------------------------------------------------------------------------
// cmd_serve.go: load the knowledge base and serve the API
// ---------------------------------------------------------------------------

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel"

	"github.com/solve-it-project/solveit/internal/api"
	"github.com/solve-it-project/solveit/internal/core"
)

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	kf := addKBFlags(fs, "")
	host := fs.String("host", "", "API listen host override")
	port := fs.Int("port", 0, "API listen port override")
	bus := fs.Bool("bus", false, "Enable the NATS event bus (bus.embedded picks embedded or bus.url)")
	watch := fs.Duration("watch", 0, "Reload when fs data changes, polling at this interval")
	dryRun := fs.Bool("dry-run", false, "Validate config and data, then exit")
	quiet := fs.Bool("quiet", false, "Suppress banner and non-essential output")
	fs.BoolVar(quiet, "q", false, "Suppress banner and non-essential output")
	noColor := fs.Bool("no-color", false, "Disable color output")
	fs.Parse(args)

	if *noColor {
		os.Setenv("NO_COLOR", "1")
	}
	if !*quiet {
		fmt.Fprint(os.Stderr, bannerText())
	}

	cfg := kf.config()
	if h := envHost(*host); h != "" {
		cfg.Server.Host = h
	}
	if p := envPort(*port); p != 0 {
		cfg.Server.Port = p
	}
	if *bus {
		cfg.Bus.Enabled = true
	}
	if *watch > 0 {
		cfg.Data.Watch = *watch
	}

	warnings, validationErrs := cfg.Validate()
	for _, w := range warnings {
		if !*quiet {
			fmt.Fprintf(os.Stderr, "%s %s\n", yellow("⚠"), w)
		}
	}
	if len(validationErrs) > 0 {
		for _, e := range validationErrs {
			fmt.Fprintf(os.Stderr, "%s %s\n", red("✗"), e)
		}
		errorf("config validation failed with %d error(s)", len(validationErrs))
	}

	if !cfg.AuthEnabled() && !*quiet {
		fmt.Fprintf(os.Stderr, "%s No API keys configured. POST /api/v1/reload and /api/v1/mappings are open to anyone who can reach the port.\n", yellow("⚠"))
		fmt.Fprintf(os.Stderr, "    Set server.api_keys in config or %s.\n", core.EnvAPIKey)
	}

	engine, err := core.NewEngine(cfg, os.Stderr)
	if err != nil {
		errorf("creating engine: %v", err)
	}
	engine.SetTracer(otel.Tracer("github.com/solve-it-project/solveit"))
	if path := envConfig(*kf.configPath); path != "" {
		if _, err := os.Stat(path); err == nil {
			engine.SetConfigPath(path)
		}
	}

	if *dryRun {
		if err := engine.Load(engine.Context()); err != nil {
			errorf("%v", err)
		}
		st := engine.KB().Stats()
		fmt.Fprintf(os.Stdout, "%s Config valid. %d techniques, %d weaknesses, %d mitigations, %d objectives (%s), %d load issue(s).\n",
			green("✓"), st.Techniques, st.Weaknesses, st.Mitigations, st.Objectives, st.Mapping, st.Issues)
		os.Exit(0)
	}

	if !*quiet {
		fmt.Fprintf(os.Stderr, "%s Loading knowledge base from %s...\n", dim("▸"), cfg.Data.Root)
	}
	if err := engine.Start(); err != nil {
		errorf("starting engine: %v", err)
	}

	srv := api.NewServer(engine)
	if err := srv.Start(); err != nil {
		errorf("starting API server: %v", err)
	}

	if !*quiet {
		st := engine.KB().Stats()
		busStatus := ""
		if engine.Bus != nil {
			busStatus = fmt.Sprintf(", bus %s", green(engine.Bus.URL()))
		}
		fmt.Fprintf(os.Stderr, "%s solveit running, %d techniques loaded, API on %s%s\n",
			green("✓"), st.Techniques, srv.Addr(), busStatus)
		fmt.Fprintf(os.Stderr, "%s Press Ctrl+C to stop\n", dim("▸"))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	if !*quiet {
		fmt.Fprintf(os.Stderr, "\n%s Received %s, shutting down...\n", dim("▸"), sig)
	}

	if err := srv.Stop(); err != nil {
		warnf("stopping API server: %v", err)
	}
	if err := engine.Shutdown(); err != nil {
		warnf("stopping engine: %v", err)
	}
}
