// Package source implements the network strategies of the parcel cascade: town
// assessor GIS, the statewide cadastre, two commercial parcel APIs, Overpass and
// Mapbox building footprints.
package source

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/parcel-resolver/internal/resilience"
)

// HTTPOptions are the transport settings shared by every strategy.
type HTTPOptions struct {
	// Client defaults to a plain http.Client. Per-call timeouts come from the
	// resolver's context.
	Client *http.Client
	// RPS limits requests per second to the upstream; zero means unlimited.
	RPS   float64
	Burst int
}

// fetcher issues rate-limited JSON GETs for one upstream.
type fetcher struct {
	service string
	client  *http.Client
	limiter *rate.Limiter
}

func newFetcher(service string, o HTTPOptions) *fetcher {
	client := o.Client
	if client == nil {
		client = &http.Client{}
	}
	limit := rate.Inf
	if o.RPS > 0 {
		limit = rate.Limit(o.RPS)
	}
	burst := o.Burst
	if burst <= 0 {
		burst = 1
	}
	return &fetcher{
		service: service,
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// getJSON fetches rawURL and decodes the body into out. Non-2xx responses become
// errors classified by resilience.HTTPStatusError.
func (f *fetcher) getJSON(ctx context.Context, rawURL string, header http.Header, out any) error {
	if err := f.limiter.Wait(ctx); err != nil {
		return eris.Wrapf(err, "%s: rate limit", f.service)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return eris.Wrapf(err, "%s: build request", f.service)
	}
	req.Header.Set("Accept", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return eris.Wrapf(err, "%s: request", f.service)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrapf(err, "%s: read body", f.service)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resilience.HTTPStatusError(f.service, resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrapf(err, "%s: decode response", f.service)
	}
	return nil
}

// withQuery appends params to base, keeping any query the base already has.
func withQuery(base string, params url.Values) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", eris.Wrapf(err, "source: parse url %q", base)
	}
	q := u.Query()
	for k, vs := range params {
		q[k] = vs
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
