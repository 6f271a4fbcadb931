package api

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/phuslu/log"
	"golang.org/x/time/rate"

	"github.com/campusdesk/cli/internal/logging"
	"github.com/campusdesk/cli/internal/utils"
)

const (
	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second).
	DefaultRateLimit = 5

	maxRedirects = 10

	// DefaultUserAgent mimics a desktop browser; the portal serves reduced
	// pages to unknown agents.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// Client is the single HTTP client shared by every portal request. It knows
// the base origin and default headers but nothing about sessions or retries.
type Client struct {
	baseURL    *url.URL
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithUserAgent overrides the browser user agent.
func WithUserAgent(userAgent string) ClientOption {
	return func(c *Client) {
		if userAgent != "" {
			c.userAgent = userAgent
		}
	}
}

// WithTimeout sets the per request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithInsecureTLS controls certificate validation. The portal presents a
// chain that fails verification, so the CLI enables this by default.
func WithInsecureTLS(insecure bool) ClientOption {
	return func(c *Client) {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: insecure} //nolint:gosec
		c.httpClient.Transport = transport
	}
}

// WithRateLimit sets a custom rate limit. Zero disables pacing.
func WithRateLimit(requestsPerSecond float64) ClientOption {
	return func(c *Client) {
		if requestsPerSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		burst := int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
}

// WithLogger sets a logger.
func WithLogger(logger *log.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a portal client rooted at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL: %q", baseURL)
	}

	c := &Client{
		baseURL:   u,
		userAgent: DefaultUserAgent,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  logging.Nop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Request describes one portal call.
type Request struct {
	Method string
	// Path is relative to the base URL unless it is absolute.
	Path    string
	Form    url.Values
	Cookies string
	// NoRedirect returns 3xx responses to the caller instead of following them.
	NoRedirect bool
}

// Response is a fully read portal response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	URL        *url.URL
	setCookies []*http.Cookie
}

// SetCookies returns the name=value pairs the server set on this response.
// Cookies set by redirects followed on the way come first.
func (r *Response) SetCookies() []string {
	return cookiePairs(r.setCookies)
}

func cookiePairs(cookies []*http.Cookie) []string {
	pairs := make([]string, 0, len(cookies))
	for _, c := range cookies {
		pairs = append(pairs, c.Name+"="+c.Value)
	}
	return pairs
}

// Location returns the redirect target, if any.
func (r *Response) Location() string {
	return r.Header.Get("Location")
}

// Get performs a GET with the given cookie header.
func (c *Client) Get(ctx context.Context, path, cookies string) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodGet, Path: path, Cookies: cookies})
}

// PostForm performs a form encoded POST with the given cookie header.
func (c *Client) PostForm(ctx context.Context, path string, form url.Values, cookies string) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPost, Path: path, Form: form, Cookies: cookies})
}

// Do executes req. Any status outside 2xx, or 3xx for NoRedirect requests,
// is returned as *utils.HTTPError.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	target := c.ResolveURL(req.Path)

	var body io.Reader
	if req.Form != nil {
		body = strings.NewReader(req.Form.Encode())
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if req.Form != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if req.Cookies != "" {
		httpReq.Header.Set("Cookie", req.Cookies)
	}

	// Cookies set on intermediate redirects are kept and sent on the next hop.
	var hopCookies []*http.Cookie
	hc := *c.httpClient
	hc.CheckRedirect = func(next *http.Request, via []*http.Request) error {
		if req.NoRedirect {
			return http.ErrUseLastResponse
		}
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		if next.Response != nil {
			// each hop starts from the first request's headers
			hopCookies = append(hopCookies, next.Response.Cookies()...)
			if header := MergeCookies(next.Header.Get("Cookie"), cookiePairs(hopCookies)...); header != "" {
				next.Header.Set("Cookie", header)
			}
		}
		return nil
	}

	c.logger.Debug().Str("method", req.Method).Str("url", target).Msg("portal request")

	resp, err := hc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.Debug().Str("url", target).Int("status", resp.StatusCode).Int("bytes", len(data)).Msg("portal response")

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if req.NoRedirect && resp.StatusCode >= 300 && resp.StatusCode < 400 {
		ok = true
	}
	if !ok {
		return nil, utils.NewHTTPError(resp.StatusCode, req.Method, target)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		URL:        resp.Request.URL,
		setCookies: append(hopCookies, resp.Cookies()...),
	}, nil
}

// ResolveURL turns a portal path, a path relative to the site root, or an
// absolute URL into an absolute URL.
func (c *Client) ResolveURL(ref string) string {
	if ref == "" {
		return c.baseURL.String()
	}
	u, err := url.Parse(ref)
	if err != nil {
		return c.baseURL.String() + ref
	}
	if u.IsAbs() {
		return u.String()
	}
	if strings.HasPrefix(ref, c.baseURL.Path+"/") && c.baseURL.Path != "" {
		return c.baseURL.ResolveReference(u).String()
	}
	return c.baseURL.String() + "/" + strings.TrimLeft(ref, "/")
}
