package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/parcel-resolver/internal/parcel"
)

var (
	resolveAddress string
	resolveLon     float64
	resolveLat     float64
	resolveHandoff bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve one geocoded address",
	Example: `  parcel resolve --address "42 Elm St, Hartford, CT 06106" --lon -72.6851 --lat 41.7637
  parcel resolve --address "..." --lon ... --lat ... --handoff`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initResolver(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		q := parcel.Query{
			Address:    resolveAddress,
			Coordinate: parcel.Coordinate{Lon: resolveLon, Lat: resolveLat},
		}
		res := env.resolve(ctx, q)

		if resolveHandoff {
			h, err := parcel.NewHandoff(q, res)
			if err != nil {
				return eris.Wrap(err, "resolve: build handoff")
			}
			return writeJSON(os.Stdout, h)
		}
		return writeJSON(os.Stdout, res)
	},
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode json")
}

func init() {
	resolveCmd.Flags().StringVar(&resolveAddress, "address", "", "geocoded street address")
	resolveCmd.Flags().Float64Var(&resolveLon, "lon", 0, "longitude (WGS84)")
	resolveCmd.Flags().Float64Var(&resolveLat, "lat", 0, "latitude (WGS84)")
	resolveCmd.Flags().BoolVar(&resolveHandoff, "handoff", false, "print the quote handoff payload instead of the full result")
	_ = resolveCmd.MarkFlagRequired("lon")
	_ = resolveCmd.MarkFlagRequired("lat")
	rootCmd.AddCommand(resolveCmd)
}
