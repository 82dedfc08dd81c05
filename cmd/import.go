package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sanitiza-group/cert-cli/internal/ingest"
)

var importCmd = &cobra.Command{
	Use:   "import <spreadsheet>",
	Short: "Process a certificate spreadsheet through the upload pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := newAppEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		receipt, err := env.ingest.ProcessUpload(cmd.Context(), filepath.Base(args[0]), data)
		if err != nil {
			if errors.Is(err, ingest.ErrDuplicate) {
				fmt.Fprintf(cmd.OutOrStdout(), "already processed: %s\n", args[0])
				return nil
			}
			return err
		}
		return printJSON(receipt)
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
