// Package linode implements a thin client for the Linode DNS Manager API,
// covering the domain and record operations dnsanchor needs.
package linode

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"gitlab.bluewillows.net/root/dnsanchor/internal/metrics"
	"gitlab.bluewillows.net/root/dnsanchor/pkg/httputil"
)

// ErrNotFound indicates a domain or record was not found.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx response from the provider API. The raw body is kept
// for diagnostics; callers decide retry policy.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: status %d: %s", e.Status, e.Body)
}

// IsNotFound returns true if the error indicates a missing domain or record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Domain is a DNS zone as reported by the provider.
type Domain struct {
	ID     int    `json:"id"`
	Domain string `json:"domain"`
}

// Record is a single DNS record under a domain. Name is the subdomain label,
// empty for the apex record. Target holds the record value.
type Record struct {
	ID     int    `json:"id"`
	Type   string `json:"type"`
	Name   string `json:"name"`
	Target string `json:"target"`
}

type domainsResponse struct {
	Data []Domain `json:"data"`
}

type recordsResponse struct {
	Data []Record `json:"data"`
}

// Client is a Linode DNS API client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a new API client. baseURL is the API root without a
// trailing slash; token is sent as a bearer credential on every call.
func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: httputil.DefaultClient(),
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Call performs a single API request and returns the raw response body.
// Any 2xx status is a success; any other status yields an *APIError carrying
// the status code and body. Parsing the body is the caller's responsibility.
func (c *Client) Call(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("making API request",
		slog.String("method", method),
		slog.String("path", path),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	return body, nil
}

// countCall records an API request metric for the given operation.
func countCall(operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.ProviderAPIRequestsTotal.WithLabelValues(operation, status).Inc()
}

// Ping checks connectivity and credential validity by listing domains.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Call(ctx, http.MethodGet, "/domains", nil)
	countCall("ping", err)
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// FindDomainID looks up the id of the zone whose name exactly matches
// domain. Returns ErrNotFound if the account has no such zone.
func (c *Client) FindDomainID(ctx context.Context, domain string) (int, error) {
	body, err := c.Call(ctx, http.MethodGet, "/domains", nil)
	countCall("list_domains", err)
	if err != nil {
		return 0, fmt.Errorf("listing domains: %w", err)
	}

	var resp domainsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("parsing domains response: %w", err)
	}

	for _, d := range resp.Data {
		if d.Domain == domain {
			return d.ID, nil
		}
	}

	return 0, fmt.Errorf("domain %q: %w", domain, ErrNotFound)
}

// findARecord returns the first A record under domainID whose name matches
// hostname (empty for apex). First match wins; duplicate records with the
// same name are a provider-side condition this client does not correct.
func (c *Client) findARecord(ctx context.Context, domainID int, hostname string) (*Record, error) {
	body, err := c.Call(ctx, http.MethodGet, fmt.Sprintf("/domains/%d/records", domainID), nil)
	countCall("list_records", err)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}

	var resp recordsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing records response: %w", err)
	}

	for _, r := range resp.Data {
		if r.Type == "A" && r.Name == hostname {
			return &r, nil
		}
	}

	return nil, fmt.Errorf("A record %q in domain %d: %w", hostname, domainID, ErrNotFound)
}

// FindRecordID returns the id of the A record named hostname under domainID.
func (c *Client) FindRecordID(ctx context.Context, domainID int, hostname string) (int, error) {
	rec, err := c.findARecord(ctx, domainID, hostname)
	if err != nil {
		return 0, err
	}
	return rec.ID, nil
}

// FindRecordTarget returns the target value of the A record named hostname
// under domainID. Used for baseline discovery on first run.
func (c *Client) FindRecordTarget(ctx context.Context, domainID int, hostname string) (string, error) {
	rec, err := c.findARecord(ctx, domainID, hostname)
	if err != nil {
		return "", err
	}
	return rec.Target, nil
}

// CreateRecord creates a new A record. An empty hostname creates the apex
// record of the domain.
func (c *Client) CreateRecord(ctx context.Context, domainID int, hostname, ip string) error {
	payload := map[string]string{
		"type":   "A",
		"name":   hostname,
		"target": ip,
	}

	_, err := c.Call(ctx, http.MethodPost, fmt.Sprintf("/domains/%d/records", domainID), payload)
	countCall("create_record", err)
	if err != nil {
		return fmt.Errorf("creating A record %q: %w", hostname, err)
	}

	c.logger.Info("created A record",
		slog.Int("domain_id", domainID),
		slog.String("hostname", hostname),
		slog.String("target", ip),
	)

	return nil
}

// UpdateRecord sets the target of an existing record, leaving its name and
// type untouched.
func (c *Client) UpdateRecord(ctx context.Context, domainID, recordID int, ip string) error {
	payload := map[string]string{
		"target": ip,
	}

	_, err := c.Call(ctx, http.MethodPut, fmt.Sprintf("/domains/%d/records/%d", domainID, recordID), payload)
	countCall("update_record", err)
	if err != nil {
		return fmt.Errorf("updating record %d: %w", recordID, err)
	}

	c.logger.Info("updated A record",
		slog.Int("domain_id", domainID),
		slog.Int("record_id", recordID),
		slog.String("target", ip),
	)

	return nil
}
