package product

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Operation names shared by logs and metrics.
const (
	OpList     = "list"
	OpFindByID = "findById"
	OpCreate   = "create"
	OpUpdate   = "update"
	OpDelete   = "delete"
)

// maxErrorBody caps how much of a failed upstream response is kept and
// relayed. Longer bodies are cut and flagged as Truncated.
const maxErrorBody = 1 << 20

// Recorder receives one observation per upstream call.
type Recorder interface {
	ObserveUpstream(operation, outcome string, d time.Duration)
}

// Client talks to the product service rooted at a base endpoint:
// GET / , GET /{id}, POST /, PUT /{id}, DELETE /{id}.
type Client struct {
	http     *http.Client
	baseURL  string
	timeout  time.Duration
	recorder Recorder
}

type ClientOption func(*Client)

// WithTransport sets the round tripper used for upstream calls.
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(c *Client) { c.http = newHTTPClient(rt) }
}

// WithRecorder reports every call outcome to r.
func WithRecorder(r Recorder) ClientOption {
	return func(c *Client) { c.recorder = r }
}

// NewClient returns a client for baseURL. Every call, including reading a
// streamed list, must finish within timeout.
func NewClient(baseURL string, timeout time.Duration, opts ...ClientOption) *Client {
	c := &Client{
		http:    newHTTPClient(nil),
		baseURL: baseURL,
		timeout: timeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newHTTPClient never follows redirects: a 3xx is an upstream answer like
// any other non-2xx.
func newHTTPClient(rt http.RoundTripper) *http.Client {
	return &http.Client{
		Transport: rt,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (c *Client) itemURL(id string) string {
	return strings.TrimRight(c.baseURL, "/") + "/" + url.PathEscape(id)
}

// List opens the product collection as a stream. The caller must Close it.
func (c *Client) List(ctx context.Context) (s *Stream, err error) {
	start := time.Now()
	defer func() { c.observe(OpList, start, err) }()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	res, err := c.send(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	s, err = newStream(res.Body, cancel)
	if err != nil {
		err = bodyError(ctx, http.MethodGet, c.baseURL, err)
		_ = res.Body.Close()
		cancel()
		return nil, err
	}
	return s, nil
}

// Get fetches one product. A 2xx with an empty body counts as not found.
func (c *Client) Get(ctx context.Context, id string) (p *Product, err error) {
	start := time.Now()
	defer func() { c.observe(OpFindByID, start, err) }()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := c.itemURL(id)
	res, err := c.send(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	p, err = decodeProduct(res.Body)
	if errors.Is(err, io.EOF) {
		return nil, &UpstreamError{Status: http.StatusNotFound, Method: http.MethodGet, URL: target}
	}
	if err != nil {
		return nil, bodyError(ctx, http.MethodGet, target, err)
	}
	return p, nil
}

// Create posts p and returns the product the service stored.
func (c *Client) Create(ctx context.Context, p *Product) (out *Product, err error) {
	start := time.Now()
	defer func() { c.observe(OpCreate, start, err) }()

	return c.write(ctx, http.MethodPost, c.baseURL, p)
}

// Update puts p under id and returns the product the service stored.
func (c *Client) Update(ctx context.Context, id string, p *Product) (out *Product, err error) {
	start := time.Now()
	defer func() { c.observe(OpUpdate, start, err) }()

	return c.write(ctx, http.MethodPut, c.itemURL(id), p)
}

// Delete removes id. Any response body is discarded.
func (c *Client) Delete(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { c.observe(OpDelete, start, err) }()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.send(ctx, http.MethodDelete, c.itemURL(id), nil)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)
	return nil
}

func (c *Client) write(ctx context.Context, method, target string, p *Product) (*Product, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.send(ctx, method, target, p)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	out, err := decodeProduct(res.Body)
	if err != nil {
		return nil, bodyError(ctx, method, target, err)
	}
	return out, nil
}

// send issues the request and turns transport failures and non-2xx answers
// into TransportError and UpstreamError. On success the caller owns the body.
func (c *Client) send(ctx context.Context, method, target string, in any) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, &TransportError{Method: method, URL: target, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(method, target, err)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		defer res.Body.Close()
		b, readErr := io.ReadAll(io.LimitReader(res.Body, maxErrorBody+1))
		if readErr != nil {
			return nil, transportError(method, target, readErr)
		}
		truncated := len(b) > maxErrorBody
		if truncated {
			b = b[:maxErrorBody]
		}
		return nil, &UpstreamError{
			Status:      res.StatusCode,
			Method:      method,
			URL:         target,
			ContentType: res.Header.Get("Content-Type"),
			Body:        b,
			Truncated:   truncated,
		}
	}
	return res, nil
}

func (c *Client) observe(op string, start time.Time, err error) {
	if c.recorder != nil {
		c.recorder.ObserveUpstream(op, Outcome(err), time.Since(start))
	}
}

func transportError(method, target string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", ErrUpstreamTimeout, err)
	}
	return &TransportError{Method: method, URL: target, Err: err}
}

// bodyError classifies a failure while reading a 2xx body: a dead context
// is a transport problem, anything else is an unexpected payload.
func bodyError(ctx context.Context, method, target string, err error) error {
	if ctx.Err() != nil {
		return transportError(method, target, ctx.Err())
	}
	if errors.Is(err, ErrInvalidResponse) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrInvalidResponse, err)
}

func decodeProduct(r io.Reader) (*Product, error) {
	var p Product
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return &p, nil
}

// Outcome names the class of an upstream call result.
func Outcome(err error) string {
	var upErr *UpstreamError
	var tErr *TransportError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &upErr):
		switch upErr.Status {
		case http.StatusNotFound:
			return "not_found"
		case http.StatusBadRequest:
			return "bad_request"
		}
		return "upstream_error"
	case errors.Is(err, ErrUpstreamTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &tErr):
		return "transport_error"
	case errors.Is(err, ErrInvalidResponse):
		return "invalid_response"
	}
	return "error"
}

// Stream yields the products of a list response one at a time, decoding
// straight from the upstream body. It accepts a JSON array, a lone object
// (a one-element list), null or an empty body (no elements).
type Stream struct {
	body   io.ReadCloser
	dec    *json.Decoder
	cancel context.CancelFunc
	single bool
	done   bool
}

// newStream reads up to the first element. On error the caller still owns
// body and cancel.
func newStream(body io.ReadCloser, cancel context.CancelFunc) (*Stream, error) {
	s := &Stream{body: body, cancel: cancel}
	br := bufio.NewReader(body)

	first, err := peekNonSpace(br)
	if errors.Is(err, io.EOF) {
		s.done = true
		return s, nil
	}
	if err != nil {
		return nil, err
	}

	s.dec = json.NewDecoder(br)
	switch first {
	case '[':
		if _, err := s.dec.Token(); err != nil {
			return nil, err
		}
	case '{':
		s.single = true
	case 'n':
		s.done = true
	default:
		return nil, fmt.Errorf("%w: expected a JSON array, got %q", ErrInvalidResponse, first)
	}
	return s, nil
}

// Next returns the next product, or io.EOF once the list is exhausted.
func (s *Stream) Next() (*Product, error) {
	if s.done {
		return nil, io.EOF
	}
	if s.single {
		s.done = true
		return s.decode()
	}
	if !s.dec.More() {
		s.done = true
		if _, err := s.dec.Token(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
		}
		return nil, io.EOF
	}
	return s.decode()
}

func (s *Stream) decode() (*Product, error) {
	var p Product
	if err := s.dec.Decode(&p); err != nil {
		s.done = true
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return &p, nil
}

// Close releases the upstream connection and its deadline.
func (s *Stream) Close() error {
	s.cancel()
	return s.body.Close()
}

func peekNonSpace(r *bufio.Reader) (byte, error) {
	for {
		b, err := r.Peek(1)
		if err != nil {
			return 0, err
		}
		switch b[0] {
		case ' ', '\t', '\r', '\n':
			_, _ = r.ReadByte()
			continue
		}
		return b[0], nil
	}
}
