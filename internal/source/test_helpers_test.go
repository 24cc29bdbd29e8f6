package source

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/sells-group/parcel-resolver/internal/parcel"
)

var hartford = parcel.Coordinate{Lon: -72.6, Lat: 41.76}

// newRewriteClient creates an HTTP client that rewrites requests to a test server URL.
// All requests matching the target prefix are redirected to the test server.
func newRewriteClient(testServerURL, targetPrefix string) *http.Client {
	return &http.Client{
		Transport: &rewriteTransport{
			base:         http.DefaultTransport,
			testServer:   testServerURL,
			targetPrefix: targetPrefix,
		},
	}
}

type rewriteTransport struct {
	base         http.RoundTripper
	testServer   string
	targetPrefix string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	origURL := req.URL.String()
	if strings.HasPrefix(origURL, t.targetPrefix) {
		suffix := origURL[len(t.targetPrefix):]
		newURL := t.testServer + suffix
		newReq := req.Clone(req.Context())
		parsed, err := req.URL.Parse(newURL)
		if err != nil {
			return nil, err
		}
		newReq.URL = parsed
		newReq.Host = parsed.Host
		return t.base.RoundTrip(newReq)
	}
	return t.base.RoundTrip(req)
}

// boxPairs renders an axis-aligned box as a closed [[lon,lat],...] ring.
func boxPairs(minLon, minLat, maxLon, maxLat float64) string {
	return fmt.Sprintf("[[%[1]g,%[2]g],[%[3]g,%[2]g],[%[3]g,%[4]g],[%[1]g,%[4]g],[%[1]g,%[2]g]]",
		minLon, minLat, maxLon, maxLat)
}

// arcgisFeatureJSON renders one ArcGIS feature with the given attributes JSON.
func arcgisFeatureJSON(ring, attrs string) string {
	return fmt.Sprintf(`{"geometry":{"rings":[%s]},"attributes":%s}`, ring, attrs)
}

// polygonJSON renders a GeoJSON Polygon.
func polygonJSON(ring string) string {
	return fmt.Sprintf(`{"type":"Polygon","coordinates":[%s]}`, ring)
}

// around returns a box of half-width d degrees centered on c.
func around(c parcel.Coordinate, d float64) string {
	return boxPairs(c.Lon-d, c.Lat-d, c.Lon+d, c.Lat+d)
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
