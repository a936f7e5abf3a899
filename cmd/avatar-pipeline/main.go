package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"avatar-pipeline/internal/config"
	"avatar-pipeline/internal/domain"
	"avatar-pipeline/internal/pipeline"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run wires configuration, builds the command tree, and maps errors to the
// exit code contract: 0 success, 1 input/dependency/process failures,
// 2 unknown backend or unknown flag.
func run(args []string, stdout, stderr io.Writer) int {
	log.SetFlags(0)
	log.SetOutput(stderr)

	store := config.NewJSONStore(config.DefaultStorePath())
	settings, err := store.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Error: load settings: %v\n", err)
		return domain.ExitInput
	}

	settings, err = config.ApplyEnv(settings)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return domain.ExitInput
	}

	overrides, err := config.LoadBackendOverrides(config.DefaultBackendOverridesPath())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return domain.ExitInput
	}

	root := newRootCmd(settings, overrides, stdout)
	root.SetArgs(args)
	root.SetOut(stderr)
	root.SetErr(stderr)

	if err := root.Execute(); err != nil {
		reportError(stderr, err)
		return domain.ExitCode(err)
	}
	return domain.ExitOK
}

// reportError prints a one-line description, the remediation hint when one
// exists, and the failing subprocess stderr for diagnosis.
func reportError(stderr io.Writer, err error) {
	fmt.Fprintf(stderr, "Error: %v\n", err)

	if hint := domain.RemediationHint(err); hint != "" {
		fmt.Fprintf(stderr, "Hint: %s\n", hint)
	}

	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) {
		if out := strings.TrimSpace(stageErr.CommandLog.Stderr); out != "" {
			fmt.Fprintln(stderr, out)
		}
	}
}
