package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sanitiza-group/cert-cli/internal/analytics"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Print the dashboard overview as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := newAppEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		overview, err := buildOverview(cmd.Context(), env)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(overview, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

// buildOverview loads the full collection and aggregates it.
func buildOverview(ctx context.Context, env *appEnv) (analytics.Overview, error) {
	certs, err := env.provider.ListCertificates(ctx)
	if err != nil {
		return analytics.Overview{}, err
	}
	products, err := env.provider.ListProducts(ctx)
	if err != nil {
		return analytics.Overview{}, err
	}
	methods, err := env.provider.ListMethods(ctx)
	if err != nil {
		return analytics.Overview{}, err
	}
	return analytics.BuildOverview(certs, products, methods), nil
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}
