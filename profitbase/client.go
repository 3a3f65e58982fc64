// Package profitbase talks to the Profitbase property API used to enrich sold deals.
package profitbase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"deal_watcher/httputil"
	"deal_watcher/models"

	"golang.org/x/time/rate"
)

const DefaultRateLimit = 5

type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithRateLimit(requestsPerSecond int) Option {
	return func(c *Client) {
		if requestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
		}
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type authRequest struct {
	Type        string          `json:"type"`
	Credentials authCredentials `json:"credentials"`
}

type authCredentials struct {
	APIKey string `json:"pb_api_key"`
}

type authResponse struct {
	AccessToken string `json:"access_token"`
}

// Authenticate exchanges the API key for a short-lived access token.
func (c *Client) Authenticate(ctx context.Context, apiKey string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrAuthentication, err)
	}

	body, err := json.Marshal(authRequest{Type: "api-app", Credentials: authCredentials{APIKey: apiKey}})
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrAuthentication, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/authentication", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrAuthentication, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrAuthentication, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d: %s", models.ErrAuthentication, resp.StatusCode, httputil.ErrorBody(resp))
	}

	var result authResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: decode token: %w", models.ErrAuthentication, err)
	}
	if result.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", models.ErrAuthentication)
	}

	log.Printf("Profitbase: authenticated")
	return result.AccessToken, nil
}

type propertyResponse struct {
	Status string            `json:"status"`
	Data   []json.RawMessage `json:"data"`
}

// FetchProperty returns the first property attached to the CRM deal.
func (c *Client) FetchProperty(ctx context.Context, dealID int64, token string) (*models.EnrichmentResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, enrichErr(dealID, err)
	}

	endpoint := fmt.Sprintf("%s/property/deal/%d?access_token=%s", c.baseURL, dealID, url.QueryEscape(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, enrichErr(dealID, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, enrichErr(dealID, redact(err, token))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, enrichErr(dealID, fmt.Errorf("status %d: %s", resp.StatusCode, httputil.ErrorBody(resp)))
	}

	var result propertyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, enrichErr(dealID, fmt.Errorf("decode property: %w", err))
	}
	if result.Status != "success" {
		return nil, enrichErr(dealID, fmt.Errorf("status %q", result.Status))
	}
	if len(result.Data) == 0 {
		return nil, enrichErr(dealID, fmt.Errorf("no property attached"))
	}

	var property models.EnrichmentResult
	if err := json.Unmarshal(result.Data[0], &property); err != nil {
		return nil, enrichErr(dealID, fmt.Errorf("decode property: %w", err))
	}
	property.Status = result.Status
	property.Raw = result.Data[0]

	return &property, nil
}

func enrichErr(dealID int64, err error) error {
	return fmt.Errorf("%w: deal %d: %w", models.ErrEnrichment, dealID, err)
}

// redact keeps the access token out of transport errors, which embed the request URL.
func redact(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return fmt.Errorf("%s", strings.ReplaceAll(err.Error(), token, "***"))
}
