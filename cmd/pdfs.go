package main

import (
	"github.com/spf13/cobra"

	"github.com/sanitiza-group/cert-cli/internal/artifact"
)

var (
	pdfsQuery  string
	pdfsType   string
	pdfsLimit  int
	pdfsOffset int
)

var pdfsCmd = &cobra.Command{
	Use:   "pdfs",
	Short: "List generated documents in the output directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := newAppEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		entries, err := env.resolver.List(artifact.ListFilter{
			Query:     pdfsQuery,
			Extension: pdfsType,
			Limit:     pdfsLimit,
			Offset:    pdfsOffset,
		})
		if err != nil {
			return err
		}
		return printJSON(entries)
	},
}

func init() {
	pdfsCmd.Flags().StringVar(&pdfsQuery, "query", "", "accent-insensitive filename filter")
	pdfsCmd.Flags().StringVar(&pdfsType, "type", "pdf", "file extension to list")
	pdfsCmd.Flags().IntVar(&pdfsLimit, "limit", 0, "maximum entries (0 = all)")
	pdfsCmd.Flags().IntVar(&pdfsOffset, "offset", 0, "entries to skip")
	rootCmd.AddCommand(pdfsCmd)
}
