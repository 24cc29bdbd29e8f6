package main

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/parcel-resolver/internal/export"
	"github.com/sells-group/parcel-resolver/internal/parcel"
)

var (
	batchCSV         string
	batchConcurrency int
	batchOutput      string
	batchShp         string
	batchLimit       int
)

// batchResult is one output record of a batch run.
type batchResult struct {
	Address    string                  `json:"address"`
	Coordinate parcel.Coordinate       `json:"coordinates"`
	Result     parcel.ResolvedProperty `json:"result"`
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Resolve every address in a CSV",
	Long: `Reads a CSV with an address,lon,lat header and resolves each row.

Rows run concurrently; each row's cascade stays sequential.

Examples:
  parcel batch --csv quotes.csv --output lots.json
  parcel batch --csv quotes.csv --shp lots.shp --concurrency 8`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		f, err := os.Open(batchCSV)
		if err != nil {
			return eris.Wrap(err, "batch: open csv")
		}
		queries, err := parseQueriesCSV(f)
		_ = f.Close()
		if err != nil {
			return err
		}
		if batchLimit > 0 && batchLimit < len(queries) {
			queries = queries[:batchLimit]
		}
		zap.L().Info("parsed csv", zap.Int("rows", len(queries)))

		env, err := initResolver(ctx)
		if err != nil {
			return eris.Wrap(err, "batch: init resolver")
		}
		defer env.Close()

		concurrency := batchConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.Concurrency
		}

		rows := runBatch(ctx, env, queries, concurrency)

		if err := writeBatchResults(rows); err != nil {
			return err
		}

		if batchShp != "" {
			exp := make([]export.Row, len(rows))
			for i, r := range rows {
				exp[i] = export.Row{
					Query:  parcel.Query{Address: r.Address, Coordinate: r.Coordinate},
					Result: r.Result,
				}
			}
			n, err := export.WriteShapefile(batchShp, exp)
			if err != nil {
				return err
			}
			zap.L().Info("batch: shapefile written", zap.String("path", batchShp), zap.Int("records", n))
		}
		return nil
	},
}

// runBatch resolves queries with bounded concurrency. Output order matches input.
func runBatch(ctx context.Context, env *resolverEnv, queries []parcel.Query, concurrency int) []batchResult {
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))

	rows := make([]batchResult, len(queries))
	var done atomic.Int64
	counts := make([]atomic.Int64, 3)

	for i, q := range queries {
		g.Go(func() error {
			res := env.resolve(gCtx, q)
			rows[i] = batchResult{Address: q.Address, Coordinate: q.Coordinate, Result: res}

			switch res.DataSource {
			case parcel.SourceCadastre:
				counts[0].Add(1)
			case parcel.SourceBuilding:
				counts[1].Add(1)
			default:
				counts[2].Add(1)
			}
			if n := done.Add(1); n%50 == 0 {
				zap.L().Info("batch: progress", zap.Int64("done", n), zap.Int("total", len(queries)))
			}
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Info("batch: complete",
		zap.Int("total", len(queries)),
		zap.Int64("cadastre", counts[0].Load()),
		zap.Int64("building", counts[1].Load()),
		zap.Int64("estimate", counts[2].Load()),
	)
	return rows
}

// parseQueriesCSV reads address,lon,lat rows. Columns are located by header name.
func parseQueriesCSV(r io.Reader) ([]parcel.Query, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "batch: read csv")
	}
	if len(records) < 2 {
		return nil, eris.New("batch: csv has no data rows")
	}

	colIdx := make(map[string]int, len(records[0]))
	for i, col := range records[0] {
		colIdx[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, col := range []string{"address", "lon", "lat"} {
		if _, ok := colIdx[col]; !ok {
			return nil, eris.Errorf("batch: missing required column %q", col)
		}
	}

	queries := make([]parcel.Query, 0, len(records)-1)
	for line, row := range records[1:] {
		lon, lonErr := strconv.ParseFloat(getCol(row, colIdx, "lon"), 64)
		lat, latErr := strconv.ParseFloat(getCol(row, colIdx, "lat"), 64)
		if lonErr != nil || latErr != nil {
			zap.L().Warn("batch: skipping row with bad coordinates", zap.Int("line", line+2))
			continue
		}
		queries = append(queries, parcel.Query{
			Address:    getCol(row, colIdx, "address"),
			Coordinate: parcel.Coordinate{Lon: lon, Lat: lat},
		})
	}
	return queries, nil
}

func getCol(row []string, colIdx map[string]int, name string) string {
	i, ok := colIdx[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func writeBatchResults(rows []batchResult) error {
	if batchOutput == "" {
		return writeJSON(os.Stdout, rows)
	}
	f, err := os.Create(batchOutput)
	if err != nil {
		return eris.Wrap(err, "batch: create output file")
	}
	defer f.Close() //nolint:errcheck
	return writeJSON(f, rows)
}

func init() {
	batchCmd.Flags().StringVar(&batchCSV, "csv", "", "path to CSV with address,lon,lat columns (required)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "rows to resolve concurrently (default from config)")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max rows to process (0 = all)")
	batchCmd.Flags().StringVar(&batchOutput, "output", "", "write results JSON to file (default: stdout)")
	batchCmd.Flags().StringVar(&batchShp, "shp", "", "also write lot polygons to this shapefile")
	_ = batchCmd.MarkFlagRequired("csv")
	rootCmd.AddCommand(batchCmd)
}
