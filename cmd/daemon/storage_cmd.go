// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"

	sqlitestore "github.com/ManuGH/turnstile/internal/store/sqlite"
)

func runStorageCLI(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printStorageUsage(stdout)
		return 0
	}

	switch args[0] {
	case "verify":
		return runStorageVerify(args[1:], stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown subcommand: %s\n\n", args[0])
		printStorageUsage(stderr)
		return 2
	}
}

func printStorageUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "Usage:")
	_, _ = fmt.Fprintln(w, "  turnstiled storage verify --path PATH [--mode quick|full]")
}

func runStorageVerify(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("turnstiled storage verify", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("path", "", "path to the SQLite database file")
	mode := fs.String("mode", "quick", "verification mode: quick or full")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *path == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --path is required")
		return 2
	}
	m := strings.ToLower(strings.TrimSpace(*mode))
	if m != "quick" && m != "full" {
		_, _ = fmt.Fprintf(stderr, "Error: invalid mode %q. Use 'quick' or 'full'.\n", m)
		return 2
	}

	issues, err := sqlitestore.VerifyIntegrity(*path, m)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Verification interrupted: %v\n", err)
		return 1
	}
	if issues != nil {
		_, _ = fmt.Fprintln(stderr, "Corruption detected:")
		for _, issue := range issues {
			_, _ = fmt.Fprintf(stderr, "  - %s\n", issue)
		}
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "%s: ok (%s)\n", *path, m)
	return 0
}
