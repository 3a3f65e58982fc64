// Package crm reads sold-deal leads from the amoCRM leads API.
package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"deal_watcher/httputil"
	"deal_watcher/models"
)

const (
	DefaultPageSize = 250
	DefaultMaxPages = 500
)

// APIError carries a non-success response from the CRM.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("crm API error %d: %s", e.StatusCode, e.Body)
}

type Client struct {
	baseURL    *url.URL
	token      string
	pageSize   int
	maxPages   int
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

func WithMaxPages(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxPages = n
		}
	}
}

func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid CRM url %q", models.ErrConfig, baseURL)
	}

	c := &Client{
		baseURL:    u,
		token:      token,
		pageSize:   DefaultPageSize,
		maxPages:   DefaultMaxPages,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type leadsPage struct {
	Links struct {
		Next *struct {
			Href string `json:"href"`
		} `json:"next"`
	} `json:"_links"`
	Embedded struct {
		Leads []models.Lead `json:"leads"`
	} `json:"_embedded"`
}

// FetchLeadsSince returns every lead created at or after watermark, following
// the next-page cursor until it is absent. Any failing page fails the whole call.
func (c *Client) FetchLeadsSince(ctx context.Context, watermark int64) ([]models.Lead, error) {
	next := c.firstPageURL(watermark)
	visited := make(map[string]bool)
	var leads []models.Lead

	for page := 1; next != ""; page++ {
		if page > c.maxPages {
			return nil, fmt.Errorf("%w: leads listing exceeded %d pages", models.ErrExternalService, c.maxPages)
		}
		if visited[next] {
			return nil, fmt.Errorf("%w: leads cursor repeats at page %d", models.ErrExternalService, page)
		}
		visited[next] = true

		log.Printf("CRM: fetching page %d", page)
		result, err := c.fetchPage(ctx, next)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %w", models.ErrExternalService, page, err)
		}
		if result == nil {
			log.Printf("CRM: no content at page %d", page)
			break
		}

		leads = append(leads, result.Embedded.Leads...)
		log.Printf("CRM: page %d: %d leads (total: %d)", page, len(result.Embedded.Leads), len(leads))

		next = ""
		if result.Links.Next != nil && result.Links.Next.Href != "" {
			u, err := c.baseURL.Parse(result.Links.Next.Href)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid next cursor %q: %w", models.ErrExternalService, result.Links.Next.Href, err)
			}
			next = u.String()
		}
	}

	return leads, nil
}

func (c *Client) firstPageURL(watermark int64) string {
	u := c.baseURL.JoinPath("api", "v4", "leads")
	q := url.Values{}
	q.Set("filter[created_at][from]", strconv.FormatInt(watermark, 10))
	q.Set("limit", strconv.Itoa(c.pageSize))
	u.RawQuery = q.Encode()
	return u.String()
}

// fetchPage returns nil, nil on 204 No Content.
func (c *Client) fetchPage(ctx context.Context, pageURL string) (*leadsPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return nil, nil
	case http.StatusOK:
	default:
		return nil, &APIError{StatusCode: resp.StatusCode, Body: httputil.ErrorBody(resp)}
	}

	var result leadsPage
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode leads: %w", err)
	}
	return &result, nil
}
