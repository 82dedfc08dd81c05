package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var certsCmd = &cobra.Command{
	Use:   "certs",
	Short: "Inspect the certificate collection",
}

var certsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all certificates",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := newAppEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		certs, err := env.provider.ListCertificates(cmd.Context())
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NUMERO\tDATA\tCIDADE\tBAIRRO\tVALOR")
		for _, c := range certs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				c.Number, c.ExecutedAt.Format("2006-01-02"), c.City, c.Neighborhood, c.RawValue)
		}
		return tw.Flush()
	},
}

var certsShowCmd = &cobra.Command{
	Use:   "show <number>",
	Short: "Print a certificate bundle as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := newAppEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		bundle, err := env.provider.GetBundleByNumber(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(bundle)
	},
}

var certsPDFCmd = &cobra.Command{
	Use:   "pdf <number>",
	Short: "Locate or generate the certificate PDF and print its path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := newAppEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		bundle, err := env.provider.GetBundleByNumber(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		path, err := env.resolver.EnsureExists(cmd.Context(), *bundle)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	certsCmd.AddCommand(certsListCmd, certsShowCmd, certsPDFCmd)
	rootCmd.AddCommand(certsCmd)
}
