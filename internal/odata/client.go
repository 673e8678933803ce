package odata

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultServicePath = "/sap/opu/odata/sap/API_SALES_ORDER_SRV"
	DefaultTimeout     = 30 * time.Second

	headerCSRFToken = "x-csrf-token"
	headerSAPClient = "sap-client"

	// maxBodyBytes bounds how much of any response is buffered.
	maxBodyBytes = 16 << 20
)

// Config holds the SAP connection settings. Immutable once a Client is built.
type Config struct {
	BaseURL            string        `envconfig:"SAP_BASE_URL" required:"true"`
	ServicePath        string        `envconfig:"SAP_SERVICE_PATH" default:"/sap/opu/odata/sap/API_SALES_ORDER_SRV"`
	Username           string        `envconfig:"SAP_USERNAME" required:"true"`
	Password           string        `envconfig:"SAP_PASSWORD" required:"true"`
	Client             string        `envconfig:"SAP_CLIENT"`
	Timeout            time.Duration `envconfig:"SAP_TIMEOUT" default:"30s"`
	InsecureSkipVerify bool          `envconfig:"SAP_INSECURE_SKIP_VERIFY" default:"false"`
}

// Client issues authenticated requests against one OData service.
// It holds no session state and is safe for concurrent use; writes go
// through a SafeWriter.
type Client struct {
	cfg        Config
	serviceURL string
	http       *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client built from Config.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// NewClient validates cfg and builds a Client.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("odata: base url is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("odata: invalid base url %q", cfg.BaseURL)
	}
	if cfg.ServicePath == "" {
		cfg.ServicePath = DefaultServicePath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	c := &Client{
		cfg:        cfg,
		serviceURL: strings.TrimSuffix(cfg.BaseURL, "/") + "/" + strings.Trim(cfg.ServicePath, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		c.http = &http.Client{Timeout: cfg.Timeout, Transport: transport}
	}
	return c, nil
}

// BaseURL returns the configured system URL.
func (c *Client) BaseURL() string {
	return c.cfg.BaseURL
}

// ServiceURL returns the service root without a trailing slash.
func (c *Client) ServiceURL() string {
	return c.serviceURL
}

// NewWriter returns a SafeWriter with empty token state bound to this client.
func (c *Client) NewWriter() *SafeWriter {
	return &SafeWriter{client: c}
}

type response struct {
	Status int
	Header http.Header
	Body   []byte
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string, body []byte) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, rd)
	if err != nil {
		return nil, fmt.Errorf("odata: build request: %w", err)
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	if c.cfg.Client != "" {
		req.Header.Set(headerSAPClient, c.cfg.Client)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, op string) (*response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, URL: redact(req.URL), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransportError{Op: op, URL: redact(req.URL), Err: fmt.Errorf("read body: %w", err)}
	}
	return &response{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func (c *Client) rootURL() string {
	return c.serviceURL + "/?" + encodeQuery([]queryParam{{"$format", "json"}})
}

func (c *Client) entityURL(entitySet, key string) string {
	if key == "" {
		return c.serviceURL + "/" + entitySet
	}
	return c.serviceURL + "/" + entitySet + "('" + url.PathEscape(escapeKey(key)) + "')"
}

func redact(u *url.URL) string {
	cp := *u
	cp.User = nil
	cp.RawQuery = ""
	return cp.String()
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// escapeKey doubles single quotes as required for OData string literals.
// Keys placed in a path are additionally percent-encoded by entityURL so a
// key can never add path segments or a query.
func escapeKey(key string) string {
	return strings.ReplaceAll(key, "'", "''")
}

type queryParam struct {
	name  string
	value string
}

var queryValueReplacer = strings.NewReplacer("+", "%20", "%27", "'", "%2C", ",", "%24", "$")

// encodeQuery keeps system query option names literal ($format) and
// percent-encodes values with %20 for spaces.
func encodeQuery(params []queryParam) string {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		parts = append(parts, p.name+"="+queryValueReplacer.Replace(url.QueryEscape(p.value)))
	}
	return strings.Join(parts, "&")
}
