// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/ManuGH/turnstile/internal/app/bootstrap"
)

func runSnapshotCLI(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printSnapshotUsage(stdout)
		return 0
	}

	switch args[0] {
	case "export":
		return runSnapshotExport(args[1:], stdout, stderr)
	case "import":
		return runSnapshotImport(args[1:], stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown subcommand: %s\n\n", args[0])
		printSnapshotUsage(stderr)
		return 2
	}
}

func printSnapshotUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "Usage:")
	_, _ = fmt.Fprintln(w, "  turnstiled snapshot export --db PATH --out tickets.yaml")
	_, _ = fmt.Fprintln(w, "  turnstiled snapshot import --db PATH --in tickets.yaml")
}

func runSnapshotExport(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("turnstiled snapshot export", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	db := fs.String("db", "", "path to the SQLite store")
	out := fs.String("out", "", "YAML file to write")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *db == "" || *out == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --db and --out are required")
		return 2
	}

	n, err := bootstrap.ExportSnapshot(context.Background(), *db, *out)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Export failed: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "exported %d tickets to %s\n", n, *out)
	return 0
}

func runSnapshotImport(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("turnstiled snapshot import", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	db := fs.String("db", "", "path to the SQLite store")
	in := fs.String("in", "", "YAML file to read")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *db == "" || *in == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --db and --in are required")
		return 2
	}

	n, err := bootstrap.ImportSnapshot(context.Background(), *db, *in)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Import failed: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "imported %d tickets into %s\n", n, *db)
	return 0
}
