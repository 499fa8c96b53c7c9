package parser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"IdeaDigest/internal/infrastructure/pacing"
)

const defaultUserAgent = "IdeaDigest/1.0"

// errPacing marks a request that never left because the pacer gave up.
var errPacing = errors.New("wait for pacer")

type options struct {
	client    *http.Client
	baseURL   string
	logger    *slog.Logger
	pacer     *pacing.Pacer
	now       func() time.Time
	userAgent string
}

// Option customises a scanner.
type Option func(*options)

// WithHTTPClient replaces the default client (20s timeout).
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		if client != nil {
			o.client = client
		}
	}
}

// WithBaseURL points the scanner at another host, mostly for tests.
func WithBaseURL(base string) Option {
	return func(o *options) { o.baseURL = base }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithPacer enforces a minimum delay between outbound requests.
func WithPacer(p *pacing.Pacer) Option {
	return func(o *options) { o.pacer = p }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(defaultBase string, opts []Option) options {
	o := options{
		client:    &http.Client{Timeout: 20 * time.Second},
		baseURL:   defaultBase,
		logger:    slog.Default(),
		now:       time.Now,
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// get performs a paced GET and returns the body of a 200 response.
func (o options) get(ctx context.Context, target string, accept string) (io.ReadCloser, error) {
	if err := o.pacer.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", errPacing, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", o.userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", target, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%s returned %s", target, resp.Status)
	}
	return resp.Body, nil
}

func (o options) getJSON(ctx context.Context, target string, out any) error {
	body, err := o.get(ctx, target, "application/json")
	if err != nil {
		return err
	}
	defer body.Close()

	if err := json.NewDecoder(body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", target, err)
	}
	return nil
}
