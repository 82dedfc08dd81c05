package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sanitiza-group/cert-cli/internal/heatmap"
)

var (
	heatmapRefresh bool
	heatmapClear   bool
	heatmapStatus  bool
)

var heatmapCmd = &cobra.Command{
	Use:   "heatmap",
	Short: "Print the city/neighborhood heatmap as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := newAppEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		if heatmapClear {
			if err := env.heatmap.ClearCache(); err != nil {
				return err
			}
			fmt.Println("cache cleared")
			return nil
		}
		if heatmapStatus {
			return printJSON(env.heatmap.CacheStatus())
		}

		var items []heatmap.Item
		if heatmapRefresh {
			items, err = env.heatmap.Refresh(cmd.Context())
		} else {
			items, err = env.heatmap.CityHeatmap(cmd.Context())
		}
		if err != nil {
			return err
		}

		resp := struct {
			Data   []heatmap.Item `json:"data"`
			Bounds *[4]float64    `json:"bounds,omitempty"`
		}{Data: items}
		if box, ok := heatmap.Bounds(items); ok {
			resp.Bounds = &box
		}
		return printJSON(resp)
	},
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func init() {
	heatmapCmd.Flags().BoolVar(&heatmapRefresh, "refresh", false, "recompute even when the cache is fresh")
	heatmapCmd.Flags().BoolVar(&heatmapClear, "clear", false, "drop the cached heatmap and exit")
	heatmapCmd.Flags().BoolVar(&heatmapStatus, "status", false, "print cache freshness and exit")
	rootCmd.AddCommand(heatmapCmd)
}
