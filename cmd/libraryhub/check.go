package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"libraryhub/internal/integrity"
)

func newCheckCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify stock, debt and transaction invariants in the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}

			st, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			report, err := integrity.New(st).Run(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, v := range report.Violations {
				fmt.Fprintln(out, "FAIL", v)
			}
			if !report.Healthy() {
				return fmt.Errorf("%d of %d checks failed", len(report.Violations), report.Checks)
			}
			fmt.Fprintf(out, "ok: %d checks passed\n", report.Checks)
			return nil
		},
	}
}
