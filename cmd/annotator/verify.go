package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/discochess/annotator"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the integrity of the evaluation cache",
	Long: `Scan every stored record and report those that cannot be decoded or
break the record invariants: a WDL that does not sum to 1000, a negative
budget, or a non-finite score.

Malformed records are read as misses and overwritten on the next update, so
they are harmless to annotation but worth knowing about.`,
	RunE: runVerify,
}

var verifyLimit int

func init() {
	verifyCmd.Flags().IntVar(&verifyLimit, "limit", 20, "maximum malformed records to print (0 prints all)")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	rt, err := setup(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	w := cmd.OutOrStdout()
	var checked, errCount int
	err = rt.annotator.Cache().Scan(ctx, func(e annotator.CacheEntry) error {
		checked++
		if e.Err == nil {
			return nil
		}
		errCount++
		if verifyLimit == 0 || errCount <= verifyLimit {
			fmt.Fprintf(w, "  ERROR: %q: %v\n", e.Fingerprint, e.Err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scanning cache: %w", err)
	}

	if errCount > 0 {
		return fmt.Errorf("%d of %d records failed verification", errCount, checked)
	}
	fmt.Fprintf(w, "All %d records verified successfully.\n", checked)
	return nil
}
