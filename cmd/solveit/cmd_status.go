package main

// ---------------------------------------------------------------------------
// cmd_status.go: fetch status from a running server
// ---------------------------------------------------------------------------

import (
	"encoding/json"
	"flag"
	"fmt"
	"time"
)

type remoteFlags struct {
	configPath *string
	host       *string
	port       *int
	apiKey     *string
	timeout    *string
}

func addRemoteFlags(fs *flag.FlagSet) *remoteFlags {
	return &remoteFlags{
		configPath: fs.String("config", defaultConfigPath, "Config file path"),
		host:       fs.String("host", "", "API host override"),
		port:       fs.Int("port", 0, "API port override"),
		apiKey:     fs.String("api-key", "", "API key for authentication"),
		timeout:    fs.String("timeout", "5s", "Request timeout"),
	}
}

// resolve returns the API base URL, key and request timeout.
func (f *remoteFlags) resolve() (string, string, time.Duration) {
	configPath := envConfig(*f.configPath)
	timeout, err := time.ParseDuration(*f.timeout)
	if err != nil {
		errorf("invalid timeout %q: %v", *f.timeout, err)
	}
	return apiBase(configPath, envHost(*f.host), envPort(*f.port)), resolveAPIKey(*f.apiKey, configPath), timeout
}

func remoteError(base string, err error) {
	if isConnectionError(err) {
		errorf("%v\n       Is a server running at %s? Start one with %s.", err, base, bold("solveit serve"))
	}
	errorf("%v", err)
}

func cmdStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	rf := addRemoteFlags(fs)
	format := fs.String("format", "table", "Output format: table, json")
	output := fs.String("output", "", "Write output to file")
	fs.Parse(args)

	base, apiKey, timeout := rf.resolve()
	body, err := apiGet(base+"/api/v1/status", apiKey, timeout)
	if err != nil {
		remoteError(base, err)
	}

	w, cleanup := outputWriter(*output)
	defer cleanup()

	if parseFormat(*format) == FormatJSON {
		fmt.Fprintln(w, string(body))
		return
	}

	var status struct {
		Version       string         `json:"version"`
		Status        string         `json:"status"`
		Source        string         `json:"source"`
		KnowledgeBase map[string]any `json:"knowledge_base"`
		UptimeSeconds int64          `json:"uptime_seconds"`
		BusConnected  bool           `json:"bus_connected"`
	}
	if err := json.Unmarshal(body, &status); err != nil {
		errorf("parsing response: %v", err)
	}

	fmt.Fprintf(w, "%s solveit status\n\n", bold("●"))
	fmt.Fprintf(w, "  %-18s %s\n", "Version:", green(status.Version))
	fmt.Fprintf(w, "  %-18s %s\n", "Status:", green(status.Status))
	fmt.Fprintf(w, "  %-18s %s\n", "Uptime:", (time.Duration(status.UptimeSeconds) * time.Second).String())
	fmt.Fprintf(w, "  %-18s %s\n", "Source:", status.Source)
	bus := dim("disabled")
	if status.BusConnected {
		bus = green("connected")
	}
	fmt.Fprintf(w, "  %-18s %s\n", "Event bus:", bus)
	fmt.Fprintln(w)
	for _, key := range []string{"mapping", "techniques", "weaknesses", "mitigations", "objectives", "issues"} {
		if v, ok := status.KnowledgeBase[key]; ok {
			fmt.Fprintf(w, "  %-18s %v\n", key+":", v)
		}
	}
}

func cmdReload(args []string) {
	fs := flag.NewFlagSet("reload", flag.ExitOnError)
	rf := addRemoteFlags(fs)
	fs.Parse(args)

	base, apiKey, timeout := rf.resolve()
	body, err := apiPost(base+"/api/v1/reload", nil, apiKey, timeout)
	if err != nil {
		remoteError(base, err)
	}

	var resp struct {
		Changes []string `json:"changes"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		errorf("parsing response: %v", err)
	}
	fmt.Printf("%s Reloaded\n", green("✓"))
	for _, c := range resp.Changes {
		fmt.Printf("  - %s\n", c)
	}
}
