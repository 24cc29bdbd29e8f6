// Package export writes resolved lots to files for GIS tooling.
package export

import (
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-resolver/internal/parcel"
)

// Row pairs a cascade input with its result.
type Row struct {
	Query  parcel.Query
	Result parcel.ResolvedProperty
}

const addressFieldLen = 254

// Fields is the DBF layout written alongside each lot polygon.
var Fields = []shp.Field{
	shp.StringField("ADDRESS", addressFieldLen),
	shp.StringField("SOURCE", 16),
	shp.StringField("STRATEGY", 32),
	shp.NumberField("SQFT", 12),
	shp.StringField("ACRES", 12),
}

// WriteShapefile writes one POLYGON record per row with a valid lot ring and
// returns the number of records written. Rows without a polygon are skipped.
func WriteShapefile(path string, rows []Row) (int, error) {
	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return 0, eris.Wrapf(err, "export: create shapefile %s", path)
	}
	defer w.Close()

	if err := w.SetFields(Fields); err != nil {
		return 0, eris.Wrap(err, "export: set fields")
	}

	var written, skipped int
	for _, r := range rows {
		if !r.Result.Polygon.Valid() {
			skipped++
			continue
		}
		idx := int(w.Write(polygon(r.Result.Polygon)))

		values := []any{
			truncate(r.Query.Address, addressFieldLen),
			string(r.Result.DataSource),
			truncate(r.Result.Strategy, 32),
			r.Result.SizeSqFt,
			r.Result.SizeAcres,
		}
		for field, v := range values {
			if err := w.WriteAttribute(idx, field, v); err != nil {
				return written, eris.Wrapf(err, "export: write attribute %d of record %d", field, idx)
			}
		}
		written++
	}

	if skipped > 0 {
		zap.L().Debug("export: skipped rows without polygon", zap.Int("skipped", skipped))
	}
	return written, nil
}

// polygon converts a ring to a single-part shapefile polygon. Shapefile outer
// rings are clockwise.
func polygon(r parcel.Ring) *shp.Polygon {
	closed := r.Closed()
	pts := make([]shp.Point, len(closed))
	for i, c := range closed {
		pts[i] = shp.Point{X: c.Lon, Y: c.Lat}
	}
	if signedArea(pts) > 0 {
		for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
			pts[i], pts[j] = pts[j], pts[i]
		}
	}
	p := shp.Polygon(*shp.NewPolyLine([][]shp.Point{pts}))
	return &p
}

// signedArea is positive for counter-clockwise rings.
func signedArea(pts []shp.Point) float64 {
	var sum float64
	for i := 0; i+1 < len(pts); i++ {
		sum += pts[i].X*pts[i+1].Y - pts[i+1].X*pts[i].Y
	}
	return sum / 2
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
