package source

import (
	"net/url"

	"github.com/rotisserie/eris"
)

// DefaultProxyParam is the query parameter carrying the proxied target URL.
const DefaultProxyParam = "url"

// Proxy routes requests through a CORS pass-through proxy that takes the target
// URL, encoded, as a single query parameter.
type Proxy struct {
	BaseURL string
	Param   string
}

// Enabled reports whether a proxy base URL is configured.
func (p *Proxy) Enabled() bool {
	return p != nil && p.BaseURL != ""
}

// Wrap returns the proxied form of target, or target unchanged when no proxy is
// configured.
func (p *Proxy) Wrap(target string) (string, error) {
	if !p.Enabled() {
		return target, nil
	}
	u, err := url.Parse(p.BaseURL)
	if err != nil {
		return "", eris.Wrapf(err, "proxy: parse base url %q", p.BaseURL)
	}
	param := p.Param
	if param == "" {
		param = DefaultProxyParam
	}
	q := u.Query()
	q.Set(param, target)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
