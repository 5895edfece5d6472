// Command queryengine wires the configuration loader, chunked store and
// operator layer together behind a flag-driven dispatcher. It is a thin
// entry point only: the interactive REPL, the HTTP transport and the
// query-string grammar that a real front end would parse commands with
// are explicitly out of scope (spec §1) — every subcommand here maps
// directly onto one Engine capability with positional/flag arguments.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/allinbits/labs/projects/queryengine/internal/config"
	"github.com/allinbits/labs/projects/queryengine/internal/engine"
	"github.com/allinbits/labs/projects/queryengine/internal/store"
	"github.com/allinbits/labs/projects/queryengine/internal/store/archive"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	subcommand := os.Args[1]
	if subcommand == "help" || subcommand == "--help" || subcommand == "-h" {
		printUsage()
		return
	}

	args := os.Args[2:]
	fs := flag.NewFlagSet(subcommand, flag.ExitOnError)
	configPath := fs.String("config", "", "path to a TOML config file (defaults are used when omitted)")
	mode := fs.String("mode", "relational", "storage mode: relational or document")
	table := fs.String("table", "", "table name")
	left := fs.String("left", "", "left table name (join)")
	right := fs.String("right", "", "right table name (join)")
	fields := fs.String("fields", "*", "comma-separated projection fields")
	cond := fs.String("cond", "", "single-comparison condition: field OP literal")
	path := fs.String("path", "", "CSV path to ingest (load-csv)")
	field := fs.String("field", "", "field name (order, group, aggregate)")
	groupField := fs.String("group-field", "", "group-by field (aggregate-grouped)")
	aggFn := fs.String("fn", "", "aggregate function: count, sum, avg, max, min")
	descending := fs.Bool("desc", false, "sort descending (order)")
	var sets stringList
	fs.Var(&sets, "set", "field=value assignment; repeat for multiple fields (insert, update)")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fatal(err)
		}
		cfg = loaded
	}

	logger := slog.Default()
	s, err := buildStore(cfg, logger)
	if err != nil {
		fatal(err)
	}

	eng, sink := buildEngine(*mode, s, cfg, logger)
	ctx := context.Background()

	if err := dispatch(ctx, eng, sink, subcommand, dispatchArgs{
		table:      *table,
		left:       *left,
		right:      *right,
		fields:     splitCSV(*fields),
		cond:       *cond,
		ingestPath: *path,
		field:      *field,
		groupField: *groupField,
		aggFn:      *aggFn,
		descending: *descending,
		sets:       sets.values,
	}); err != nil {
		fatal(err)
	}
}

func buildStore(cfg config.EngineConfig, logger *slog.Logger) (*store.Store, error) {
	opts := []store.Option{store.WithLogger(logger)}
	if cfg.Archive != nil {
		archiveOpts := []archive.Option{
			archive.WithPrefix(cfg.Archive.Prefix),
			archive.WithEndpoint(cfg.Archive.Endpoint),
		}
		if cfg.Archive.Region != "" {
			archiveOpts = append(archiveOpts, archive.WithRegion(cfg.Archive.Region))
		}
		a, err := archive.New(cfg.Archive.Bucket, archiveOpts...)
		if err != nil {
			return nil, fmt.Errorf("build archiver: %w", err)
		}
		opts = append(opts, store.WithArchiver(a))
	}
	s, err := store.New(cfg.StorageRoot, cfg.ChunkSize, opts...)
	if err != nil {
		return nil, fmt.Errorf("build store: %w", err)
	}
	return s, nil
}

func buildEngine(mode string, s *store.Store, cfg config.EngineConfig, logger *slog.Logger) (engine.Engine, engine.Sink) {
	if strings.EqualFold(mode, "document") {
		return engine.NewDocumentEngine(s, cfg.TempDir, logger), engine.NewDocumentSink(os.Stdout)
	}
	return engine.NewRelationalEngine(s, cfg.TempDir, logger), engine.NewTabularSink(os.Stdout, cfg.FieldPrintLen)
}

type dispatchArgs struct {
	table      string
	left       string
	right      string
	fields     []string
	cond       string
	ingestPath string
	field      string
	groupField string
	aggFn      string
	descending bool
	sets       []string
}

func dispatch(ctx context.Context, eng engine.Engine, sink engine.Sink, subcommand string, a dispatchArgs) error {
	switch subcommand {
	case "show-tables":
		return eng.ShowTables(ctx, sink)
	case "create-table":
		return eng.CreateTable(ctx, a.table, a.fields, sink)
	case "drop-table":
		return eng.DropTable(ctx, a.table, sink)
	case "load-csv":
		return eng.LoadCSV(ctx, a.ingestPath, sink)
	case "insert":
		return eng.Insert(ctx, a.table, assignments(a.sets), sink)
	case "delete":
		return eng.Delete(ctx, a.table, a.cond, sink)
	case "update":
		return eng.Update(ctx, a.table, a.cond, assignments(a.sets), sink)
	case "projection":
		return eng.Projection(ctx, a.table, a.fields, sink)
	case "filter":
		return eng.Filter(ctx, a.table, a.fields, a.cond, sink)
	case "order":
		return eng.Order(ctx, a.table, a.field, a.descending, sink)
	case "join":
		return eng.Join(ctx, a.left, a.right, a.cond, sink)
	case "group":
		return eng.Group(ctx, a.table, a.field, sink)
	case "aggregate-grouped":
		return eng.AggregateGrouped(ctx, a.table, a.aggFn, a.field, a.groupField, sink)
	case "aggregate-total":
		return eng.AggregateTotal(ctx, a.table, a.aggFn, a.field, sink)
	default:
		printUsage()
		os.Exit(1)
		return nil
	}
}

func assignments(sets []string) map[string]string {
	out := make(map[string]string, len(sets))
	for _, s := range sets {
		k, v, ok := strings.Cut(s, "=")
		if !ok {
			continue
		}
		out[k] = v
	}
	return out
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

type stringList struct{ values []string }

func (l *stringList) String() string { return strings.Join(l.values, ",") }
func (l *stringList) Set(v string) error {
	l.values = append(l.values, v)
	return nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func printUsage() {
	fmt.Fprint(os.Stderr, `queryengine - out-of-core dual-model query engine

Usage:
  queryengine <subcommand> [flags]

Subcommands:
  show-tables
  create-table   --table=NAME [--fields=a,b,c]
  drop-table     --table=NAME
  load-csv       --path=FILE
  insert         --table=NAME --set field=value [--set field=value ...]
  delete         --table=NAME --cond "field=value"
  update         --table=NAME --cond "field=value" --set field=value
  projection     --table=NAME --fields=a,b,c
  filter         --table=NAME --fields=a,b,c --cond "field=value"
  order          --table=NAME --field=NAME [--desc]
  join           --left=A --right=B --cond "a_field=b_field"
  group          --table=NAME --field=NAME
  aggregate-grouped --table=NAME --fn=sum --field=NAME --group-field=NAME
  aggregate-total   --table=NAME --fn=sum --field=NAME

Shared flags:
  --config=FILE    TOML config file (see internal/config)
  --mode=MODE      relational (default) or document
`)
}
