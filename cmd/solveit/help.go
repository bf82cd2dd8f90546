package main

// ---------------------------------------------------------------------------
// help.go: per-command help text
// ---------------------------------------------------------------------------

import (
	"fmt"
	"os"
)

type command struct {
	name    string
	summary string
	usage   string
	details string
}

var commands = []command{
	{"serve", "Load the knowledge base and serve the REST API",
		"solveit serve [--config path] [--data dir] [--mapping file] [--bus] [--watch 5s] [--log-level lvl] [--dry-run]",
		"Loads the knowledge base, optionally starts the NATS event bus (--bus or\nbus.enabled), and serves /api/v1 until interrupted. --watch (or data.watch)\nreloads when files under <root>/data change. --dry-run validates the\nconfig and the data, prints the counts and exits."},
	{"search", "Rank techniques, weaknesses and mitigations against a query",
		"solveit search <query> [--types t,w,m] [--logic AND|OR] [--substring] [--limit n] [--format fmt]",
		"Quoted \"phrases\" must appear verbatim. AND (default) requires every term;\nOR scores partial matches by coverage. --substring matches inside words."},
	{"show", "Show one technique, weakness or mitigation with its neighbours",
		"solveit show <id> [--format table|json]",
		"The id prefix picks the kind: T for techniques, W for weaknesses, M for mitigations."},
	{"list", "List entities, objectives, mappings or load issues",
		"solveit list <techniques|weaknesses|mitigations|objectives|mappings|issues> [--objective name] [--format fmt]",
		"list techniques --objective <name> lists the techniques of one objective in\nthe current mapping."},
	{"tsv", "Write a TSV listing of one knowledge base section",
		"solveit tsv <objectives|techniques|weaknesses|mitigations|case> [--long] [--skip ids] [--output file]",
		"The placeholder technique T1000 is skipped from technique listings unless\n--skip is given explicitly (use --skip \"\" to keep it)."},
	{"stats", "Print knowledge base statistics",
		"solveit stats [--format table|markdown|csv|json]", ""},
	{"matrix", "Write the mitigation evaluation matrix as CSV",
		"solveit matrix [ids...] [--objective name] [--output file]",
		"Without ids or --objective every technique is included."},
	{"diagram", "Write a Graphviz dependency diagram",
		"solveit diagram [ids...] [--objective name] [--mitigations] [--title t] [--output file]",
		"Pipe the output through dot, for example: solveit diagram T1001 | dot -Tpng > t.png"},
	{"export", "Export a relational snapshot to SQLite or Postgres",
		"solveit export [--driver sqlite|postgres] [--dsn dsn]",
		"Defaults come from the snapshot section of the config. SQLite writes to\nsolveit.db unless --dsn names another file."},
	{"validate", "Load the knowledge base and report invalid records",
		"solveit validate [--format table|json] [--allow-issues]",
		"Exits 1 when any record was skipped, unless --allow-issues is given."},
	{"config", "Show, validate, initialize, or set configuration",
		"solveit config [--validate] [--format yaml|json]\n  solveit config init [--force]\n  solveit config set <key> <value>", ""},
	{"status", "Show status of a running solveit server",
		"solveit status [--host h] [--port p] [--api-key k] [--format table|json]", ""},
	{"reload", "Ask a running server to reload its config and data",
		"solveit reload [--host h] [--port p] [--api-key k]", ""},
	{"version", "Print version and build info", "solveit version", ""},
	{"help", "Show help for a command", "solveit help <command>", ""},
}

func cmdHelp(name string) {
	for _, c := range commands {
		if c.name != name {
			continue
		}
		fmt.Fprintf(os.Stdout, "%s  %s\n\n", bold(c.name), c.summary)
		fmt.Fprintf(os.Stdout, "%s\n  %s\n", bold("USAGE"), c.usage)
		if c.details != "" {
			fmt.Fprintf(os.Stdout, "\n%s\n", c.details)
		}
		fmt.Fprintln(os.Stdout)
		return
	}
	fmt.Fprintf(os.Stderr, red("error: ")+"no help for unknown command %q\n", name)
	if s := suggest(name); s != "" {
		fmt.Fprintf(os.Stderr, "       Did you mean %s?\n", bold(s))
	}
	os.Exit(1)
}
