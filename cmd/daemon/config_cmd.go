// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/ManuGH/turnstile/internal/config"
	"github.com/ManuGH/turnstile/internal/version"
)

func runConfigCLI(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printConfigUsage(stdout)
		return 0
	}

	switch args[0] {
	case "validate":
		return runConfigValidate(args[1:], stdout, stderr)
	case "dump":
		return runConfigDump(args[1:], stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown subcommand: %s\n\n", args[0])
		printConfigUsage(stderr)
		return 2
	}
}

func printConfigUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "Usage:")
	_, _ = fmt.Fprintln(w, "  turnstiled config validate [--file|-f config.yaml]")
	_, _ = fmt.Fprintln(w, "  turnstiled config dump [--file|-f config.yaml]")
}

func loadForCLI(name string, args []string, stderr io.Writer) (config.AppConfig, string, int) {
	fs := pflag.NewFlagSet("turnstiled config "+name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	file := fs.StringP("file", "f", "", "path to YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return config.AppConfig{}, "", 2
	}

	path := resolveConfigPath(*file)
	cfg, err := config.NewLoader(path, version.Version).Load()
	if err != nil {
		source := path
		if source == "" {
			source = "environment"
		}
		_, _ = fmt.Fprintf(stderr, "Configuration error in %s:\n  %v\n", source, err)
		return config.AppConfig{}, path, 1
	}
	return cfg, path, 0
}

func runConfigValidate(args []string, stdout, stderr io.Writer) int {
	_, path, code := loadForCLI("validate", args, stderr)
	if code != 0 {
		return code
	}
	if path == "" {
		path = "environment configuration"
	}
	_, _ = fmt.Fprintf(stdout, "✓ %s is valid\n", path)
	return 0
}

// runConfigDump prints the effective configuration with secrets masked.
func runConfigDump(args []string, stdout, stderr io.Writer) int {
	cfg, _, code := loadForCLI("dump", args, stderr)
	if code != 0 {
		return code
	}
	_, _ = fmt.Fprint(stdout, cfg.String())
	return 0
}
