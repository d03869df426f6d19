package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	merrors "github.com/vango-dev/motion/internal/errors"
)

func explainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "explain [code]",
		Short: "Describe an error code",
		Long: `Describe the error codes that motion logs and prints.

Without arguments, every code is listed with a one-line summary.

Examples:
  motion explain
  motion explain M041`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return listCodes(cmd.OutOrStdout())
			}
			return explainCode(cmd.OutOrStdout(), args[0])
		},
	}
}

func listCodes(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, code := range merrors.GetAllCodes() {
		t, _ := merrors.GetTemplate(code)
		fmt.Fprintf(tw, "%s\t%s\t%s\n", code, t.Category, t.Message)
	}
	return tw.Flush()
}

func explainCode(w io.Writer, code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	t, ok := merrors.GetTemplate(code)
	if !ok {
		return fmt.Errorf("unknown error code %q (run 'motion explain' for the list)", code)
	}

	fmt.Fprintf(w, "%s: %s\n", code, t.Message)
	fmt.Fprintf(w, "  Category: %s\n", t.Category)
	if t.Detail != "" {
		fmt.Fprintf(w, "\n  %s\n", t.Detail)
	}
	if t.DocURL != "" {
		fmt.Fprintf(w, "\n  Learn more: %s\n", t.DocURL)
	}
	return nil
}
