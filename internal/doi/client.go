// Package doi resolves DOIs to document metadata through the Crossref REST
// API.
package doi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/matsen/bibshelf/internal/docmeta"
	"github.com/matsen/bibshelf/internal/liberr"
)

const (
	// BaseURL is the Crossref works endpoint.
	BaseURL = "https://api.crossref.org/works/"

	// DefaultTimeout bounds one lookup, rate-limit wait included.
	DefaultTimeout = 15 * time.Second

	// RateLimit stays well under the Crossref polite-pool allowance.
	RateLimit = 5.0

	// UserAgent identifies the client; a mailto is appended when configured.
	UserAgent = "bibshelf/1.0 (https://github.com/matsen/bibshelf)"

	maxBody = 4 << 20
)

// Client is a rate-limited Crossref client.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	mailto     string
	timeout    time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		if !strings.HasSuffix(u, "/") {
			u += "/"
		}
		c.baseURL = u
	}
}

// WithMailto adds a contact address to the User-Agent and query string.
func WithMailto(addr string) ClientOption {
	return func(c *Client) {
		c.mailto = strings.TrimSpace(addr)
	}
}

// WithTimeout sets the per-lookup deadline.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit sets the request rate in requests per second.
func WithRateLimit(perSecond float64) ClientOption {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// NewClient creates a Crossref client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Limit(RateLimit), 1),
		baseURL:    BaseURL,
		timeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) userAgent() string {
	if c.mailto == "" {
		return UserAgent
	}
	return strings.TrimSuffix(UserAgent, ")") + "; mailto:" + c.mailto + ")"
}

// Normalize strips resolver URL and "doi:" prefixes and surrounding space.
func Normalize(doi string) string {
	doi = strings.TrimSpace(doi)
	lower := strings.ToLower(doi)
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "http://dx.doi.org/", "doi:"} {
		if strings.HasPrefix(lower, prefix) {
			doi = strings.TrimSpace(doi[len(prefix):])
			break
		}
	}
	return doi
}

// Resolve looks up one DOI. It returns liberr.ErrNotFound for unknown
// DOIs, liberr.ErrNetwork for transport failures, timeouts and server
// errors, liberr.ErrParse for undecodable responses and liberr.ErrCanceled
// when ctx is canceled.
func (c *Client) Resolve(ctx context.Context, doi string) (*docmeta.Meta, error) {
	const op = "resolve doi"
	doi = Normalize(doi)
	if !strings.HasPrefix(doi, "10.") || !strings.Contains(doi, "/") {
		return nil, liberr.Errorf(liberr.ErrParse, "%s: %q is not a DOI", op, doi)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, c.contextError(ctx, op, doi, err)
	}

	u := c.baseURL + url.PathEscape(doi)
	if c.mailto != "" {
		u += "?mailto=" + url.QueryEscape(c.mailto)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, liberr.New(liberr.ErrParse, op, doi, err)
	}
	req.Header.Set("User-Agent", c.userAgent())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.contextError(ctx, op, doi, err)
	}
	defer resp.Body.Close()

	if kind := statusKind(resp.StatusCode); kind != nil {
		return nil, liberr.New(kind, op, doi, fmt.Errorf("HTTP %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, c.contextError(ctx, op, doi, err)
	}
	var envelope struct {
		Status  string `json:"status"`
		Message *Work  `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, liberr.New(liberr.ErrParse, op, doi, err)
	}
	if envelope.Message == nil {
		return nil, liberr.New(liberr.ErrParse, op, doi, errors.New("response has no message"))
	}
	m := MapWork(*envelope.Message)
	if m.DOI == "" {
		m.DOI = doi
	}
	return m, nil
}

// contextError classifies a failure that may stem from the deadline or
// from the caller canceling.
func (c *Client) contextError(ctx context.Context, op, doi string, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return liberr.New(liberr.ErrCanceled, op, doi, err)
	}
	return liberr.New(liberr.ErrNetwork, op, doi, err)
}

// statusKind maps an HTTP status to an error kind, nil for success.
func statusKind(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound:
		return liberr.ErrNotFound
	case code == http.StatusBadRequest:
		return liberr.ErrParse
	default:
		return liberr.ErrNetwork
	}
}
