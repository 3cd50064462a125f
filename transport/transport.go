package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Request describes one outbound call. Callers treat a Request as immutable
// once it has been handed to a client; Clone returns an independent copy.
type Request struct {
	Method string
	Path   string
	Query  map[string]string
	Header map[string]string
	Body   any
}

// Clone returns a copy of r whose maps can be modified without affecting r.
func (r Request) Clone() Request {
	out := r
	out.Query = cloneMap(r.Query)
	out.Header = cloneMap(r.Header)
	return out
}

// WithHeader returns a copy of r with key set to value.
func (r Request) WithHeader(key, value string) Request {
	out := r.Clone()
	if out.Header == nil {
		out.Header = make(map[string]string, 1)
	}
	out.Header[key] = value
	return out
}

// Response is a fully read response. Body holds the raw payload.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if r == nil {
		return errors.New("nil response")
	}
	if len(r.Body) == 0 {
		return errors.New("empty response body")
	}
	return json.Unmarshal(r.Body, v)
}

// Transport performs a single network round trip. An empty accessToken means
// the call is sent without an Authorization header. A non-nil error is
// returned only for network-level failures; any HTTP status is a Response.
type Transport interface {
	Do(ctx context.Context, req Request, accessToken string) (*Response, error)
}

// Config holds transport settings.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	Headers   map[string]string
}

// Resty is the default Transport, backed by a resty client.
type Resty struct {
	client *resty.Client
}

// NewResty builds a resty client from cfg.
func NewResty(cfg Config) *Resty {
	client := resty.New().SetBaseURL(cfg.BaseURL)
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}
	if len(cfg.Headers) > 0 {
		client.SetHeaders(cfg.Headers)
	}
	return &Resty{client: client}
}

// NewRestyFromClient wraps an existing resty client.
func NewRestyFromClient(client *resty.Client) *Resty {
	if client == nil {
		client = resty.New()
	}
	return &Resty{client: client}
}

// Client exposes the underlying resty client so endpoint helpers can share
// its base URL and connection pool.
func (t *Resty) Client() *resty.Client {
	return t.client
}

// Do implements Transport.
func (t *Resty) Do(ctx context.Context, req Request, accessToken string) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	r := t.client.R().SetContext(ctx)
	if len(req.Header) > 0 {
		r.SetHeaders(req.Header)
	}
	if len(req.Query) > 0 {
		r.SetQueryParams(req.Query)
	}
	if req.Body != nil {
		r.SetBody(req.Body)
	}
	if accessToken != "" {
		r.SetAuthToken(accessToken)
	}

	resp, err := r.Execute(method, req.Path)
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode: resp.StatusCode(),
		Header:     resp.Header(),
		Body:       resp.Body(),
	}, nil
}

func cloneMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
