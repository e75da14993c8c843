package observability

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewHTTPClient returns an http.Client instrumented with otelhttp transport.
func NewHTTPClient(base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	rt := base.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	base.Transport = otelhttp.NewTransport(rt)
	return base
}

// WithHeaders wraps base's transport so every outgoing request carries
// extra. A header already set on the request (e.g. Authorization set by a
// provider backend) is left alone; extra only fills in what's missing —
// used for provider-specific headers (§4.A backend credentials) that
// aren't part of the backend's own Authorization scheme.
func WithHeaders(base *http.Client, extra map[string]string) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	if len(extra) == 0 {
		return base
	}
	rt := base.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	base.Transport = headerTransport{rt: rt, headers: extra}
	return base
}

type headerTransport struct {
	rt      http.RoundTripper
	headers map[string]string
}

func (h headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for k, v := range h.headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	return h.rt.RoundTrip(req)
}
