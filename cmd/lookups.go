package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/parcel-resolver/internal/store"
)

var (
	lookupsLimit  int
	lookupsSource string
	lookupsJSON   bool
)

var lookupsCmd = &cobra.Command{
	Use:   "lookups",
	Short: "List recorded lookups and per-source totals",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		lookups, err := st.ListLookups(ctx, store.LookupFilter{DataSource: lookupsSource, Limit: lookupsLimit})
		if err != nil {
			return err
		}
		counts, err := st.CountBySource(ctx)
		if err != nil {
			return err
		}

		if lookupsJSON {
			return writeJSON(os.Stdout, map[string]any{"lookups": lookups, "counts": counts})
		}
		printLookups(lookups, counts)
		return nil
	},
}

func printLookups(lookups []store.Lookup, counts map[string]int) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tSOURCE\tSTRATEGY\tSQFT\tADDRESS")
	for _, l := range lookups {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			l.CreatedAt.Format("2006-01-02 15:04:05"), l.DataSource, l.Strategy, l.SizeSqFt, l.Address)
	}
	_ = tw.Flush()

	sources := make([]string, 0, len(counts))
	for s := range counts {
		sources = append(sources, s)
	}
	sort.Strings(sources)

	fmt.Println()
	for _, s := range sources {
		fmt.Printf("%-10s %d\n", s, counts[s])
	}
}

func init() {
	lookupsCmd.Flags().IntVar(&lookupsLimit, "limit", 50, "max lookups to list")
	lookupsCmd.Flags().StringVar(&lookupsSource, "source", "", "filter by data source (cadastre, building, estimate)")
	lookupsCmd.Flags().BoolVar(&lookupsJSON, "json", false, "print JSON instead of a table")
	rootCmd.AddCommand(lookupsCmd)
}
