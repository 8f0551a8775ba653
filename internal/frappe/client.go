package frappe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/admitly/admissions/internal/errors"
)

const (
	defaultTimeout    = 10 * time.Second
	defaultTracerName = "github.com/admitly/admissions/internal/frappe"

	// maxBody caps how much of a response is read.
	maxBody = 4 << 20
)

// Client talks to one Frappe site.
type Client struct {
	base           *url.URL
	apiKey         string
	apiSecret      string
	metadataMethod string
	leadsMethod    string
	http           *http.Client
	tracer         trace.Tracer
	logger         *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithCredentials sets the API key pair.
func WithCredentials(key, secret string) Option {
	return func(c *Client) {
		c.apiKey = key
		c.apiSecret = secret
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithMethods overrides the whitelisted method names.
func WithMethods(metadata, leads string) Option {
	return func(c *Client) {
		if metadata != "" {
			c.metadataMethod = metadata
		}
		if leads != "" {
			c.leadsMethod = leads
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTracerName sets the tracer name.
func WithTracerName(name string) Option {
	return func(c *Client) {
		c.tracer = otel.Tracer(name)
	}
}

// New creates a client for the site at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.New(errors.CodeConfigInvalid).
			WithField("crm.baseURL", "must be an absolute URL")
	}
	c := &Client{
		base:           u,
		metadataMethod: "admissions.api.get_form_metadata",
		leadsMethod:    "admissions.api.get_leads",
		http:           &http.Client{Timeout: defaultTimeout},
		tracer:         otel.Tracer(defaultTracerName),
		logger:         slog.Default().With("component", "frappe"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the site URL.
func (c *Client) BaseURL() string {
	return c.base.String()
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// response is a completed call: status and (capped) body.
type response struct {
	status int
	body   []byte
}

func (r response) ok() bool {
	return r.status >= 200 && r.status < 300
}

// do runs one request inside a client span. Transport failures are returned
// as errors; HTTP error statuses are not.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, payload any) (response, error) {
	ctx, span := c.tracer.Start(ctx, "frappe."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("frappe.path", path),
		),
	)
	defer span.End()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return response{}, fmt.Errorf("frappe: encode %s payload: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return response{}, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	if c.apiKey != "" {
		req.Header.Set("Authorization", "token "+c.apiKey+":"+c.apiSecret)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("crm request failed", "op", op, "error", err)
		return response{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return response{}, err
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	c.logger.Debug("crm request",
		"op", op,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)
	return response{status: resp.StatusCode, body: data}, nil
}

// unwrapMessage returns the "message" member of a whitelisted method
// response, or the whole body when there is no envelope.
func unwrapMessage(body []byte) json.RawMessage {
	var env struct {
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(body, &env); err == nil && len(env.Message) > 0 && env.Message[0] == '{' {
		return env.Message
	}
	return body
}
