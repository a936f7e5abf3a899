package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"avatar-pipeline/internal/backend"
	"avatar-pipeline/internal/diagnostics"
	"avatar-pipeline/internal/domain"
)

// newDoctorCmd runs dependency diagnostics and prints a pass/fail report
// with remediation hints. Exit 1 when any check fails.
func newDoctorCmd(settings domain.Settings, registry *backend.Registry, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check external tools, backend checkouts, and directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			checker := diagnostics.NewChecker()
			report := checker.Run(settings, registry)

			for _, item := range report.Items {
				fmt.Fprintf(stdout, "[%s] %-24s %s\n",
					strings.ToUpper(string(item.Status)), item.Name, item.Message)
				if item.Status == domain.DiagnosticStatusFail && item.Hint != "" {
					fmt.Fprintf(stdout, "       hint: %s\n", item.Hint)
				}
			}

			if report.HasFailures {
				return domain.NewUserInputError("diagnostics reported failures")
			}
			return nil
		},
	}
}
