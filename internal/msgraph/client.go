package msgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "https://graph.microsoft.com/v1.0"

// Client is a Microsoft Graph API client for SharePoint list operations.
type Client struct {
	auth       *Auth
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new Graph API client. baseURL overrides the Graph
// endpoint; "" means the public endpoint.
func NewClient(auth *Auth, baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		auth:    auth,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// SiteID resolves a SharePoint site's identifier from its hostname and
// server-relative site path.
func (c *Client) SiteID(ctx context.Context, hostname, sitePath string) (string, error) {
	requestURL := fmt.Sprintf("%s/sites/%s:/sites/%s", c.baseURL, hostname, url.PathEscape(sitePath))

	body, err := c.get(ctx, requestURL)
	if err != nil {
		return "", fmt.Errorf("resolving site %s/%s: %w", hostname, sitePath, err)
	}

	var site siteResponse
	if err := json.Unmarshal(body, &site); err != nil {
		return "", fmt.Errorf("parsing site response: %w", err)
	}
	if site.ID == "" {
		return "", fmt.Errorf("site response missing id")
	}

	c.logger.Debug("resolved sharepoint site", "hostname", hostname, "path", sitePath, "site_id", site.ID)
	return site.ID, nil
}

// ListQuery describes one paginated list fetch.
type ListQuery struct {
	SiteID  string
	ListID  string
	Select  []string // field names for the $expand=fields($select=...) clause
	Filter  string   // optional server-side $filter clause
	OrderBy string   // optional $orderby clause
	// MaxItems caps the total rows fetched across pages; 0 means full list.
	MaxItems int
}

// ListItems fetches every item of a SharePoint list, following
// @odata.nextLink until the list (or MaxItems) is exhausted. Each returned
// map is one item's fields object.
func (c *Client) ListItems(ctx context.Context, q ListQuery) ([]map[string]any, error) {
	expand := "fields"
	if len(q.Select) > 0 {
		expand = "fields($select=" + strings.Join(q.Select, ",") + ")"
	}

	params := url.Values{
		"expand": {expand},
	}
	if q.MaxItems > 0 && q.MaxItems < 9999 {
		params.Set("$top", strconv.Itoa(q.MaxItems))
	} else {
		params.Set("$top", "9999")
	}
	if q.Filter != "" {
		params.Set("$filter", q.Filter)
	}
	if q.OrderBy != "" {
		params.Set("$orderby", q.OrderBy)
	}

	requestURL := fmt.Sprintf("%s/sites/%s/lists/%s/items?%s", c.baseURL, q.SiteID, q.ListID, params.Encode())

	var items []map[string]any
	pages := 0
	for requestURL != "" {
		body, err := c.get(ctx, requestURL)
		if err != nil {
			return nil, fmt.Errorf("fetching list items (page %d): %w", pages+1, err)
		}

		var page listItemsResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("parsing list items response: %w", err)
		}

		for _, item := range page.Value {
			items = append(items, item.Fields)
		}
		pages++

		if q.MaxItems > 0 && len(items) >= q.MaxItems {
			items = items[:q.MaxItems]
			break
		}
		requestURL = page.NextLink
	}

	c.logger.Info("sharepoint list fetched", "list_id", q.ListID, "items", len(items), "pages", pages)
	return items, nil
}

// get performs an authenticated GET with retry on throttling and server
// errors. Retries live here in the transport layer, never in the analysis
// core.
func (c *Client) get(ctx context.Context, requestURL string) ([]byte, error) {
	token, err := c.auth.Token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating graph request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	var resp *http.Response
	maxRetries := 3
	for attempt := 0; attempt <= maxRetries; attempt++ {
		resp, err = c.httpClient.Do(req)
		if err != nil {
			if attempt == maxRetries {
				return nil, fmt.Errorf("graph API request failed: %w", err)
			}
			time.Sleep(backoff(attempt))
			continue
		}

		if resp.StatusCode == 429 || resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return nil, fmt.Errorf("graph API returned status %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.logger.Debug("graph API retrying", "status", resp.StatusCode, "attempt", attempt+1)
			time.Sleep(backoff(attempt))
			continue
		}
		break
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading graph response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.auth.Invalidate()
		return nil, fmt.Errorf("%w: graph API rejected token (status 401): %s", ErrAuth, truncateStr(string(body), 200))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("graph API error (status %d): %s", resp.StatusCode, truncateStr(string(body), 200))
	}

	return body, nil
}

func backoff(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * time.Second
}

func truncateStr(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
