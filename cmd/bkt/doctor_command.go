package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/BlenderKit/blenderkit-asset-tasks/internal/doctor"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that this host can run asset tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			results := doctor.Check(cfg)
			out := cmd.OutOrStdout()
			colorize := isatty.IsTerminal(os.Stdout.Fd())
			for _, status := range results {
				fmt.Fprintf(out, "  %-22s %s %s\n", status.Name+":", checkLabel(status, colorize), status.Detail)
			}

			if !doctor.Healthy(results) {
				return fmt.Errorf("host is not ready to run asset tasks")
			}
			return nil
		},
	}
}

func checkLabel(status doctor.Status, colorize bool) string {
	switch {
	case status.Available:
		if colorize {
			return color.GreenString("[OK]  ")
		}
		return "[OK]  "
	case status.Optional:
		if colorize {
			return color.YellowString("[WARN]")
		}
		return "[WARN]"
	default:
		if colorize {
			return color.RedString("[FAIL]")
		}
		return "[FAIL]"
	}
}
