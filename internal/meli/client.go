package meli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the marketplace REST API root.
	DefaultBaseURL = "https://api.mercadolibre.com"

	// DefaultMaxRetries is the retry ceiling for 429/5xx responses.
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the initial backoff delay, doubled per attempt.
	DefaultRetryDelay = 1 * time.Second

	// BatchSize is the multiget endpoint's maximum ids per call.
	BatchSize = 20
)

// TokenSource supplies a valid access token for authenticated calls.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Client wraps the marketplace REST API with bounded exponential
// backoff retry. Client errors (4xx except 429) fail immediately;
// rate limits and server errors are retried with doubling delays.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	maxRetries int
	retryDelay time.Duration

	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Config holds client construction options.
type Config struct {
	BaseURL    string
	Tokens     TokenSource
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
}

// NewClient creates a marketplace API client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		tokens:     cfg.Tokens,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// request performs an authenticated call with the retry ladder:
// 2xx returns the body, 429 and 5xx back off and retry, other 4xx
// fail immediately. maxRetries+1 total attempts.
func (c *Client) request(ctx context.Context, method, rawURL string, body []byte) ([]byte, error) {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &Error{Kind: KindTimeout, Message: "request cancelled", Err: ctx.Err()}
			}
			lastErr = err
			if attempt < c.maxRetries {
				log.Printf("[MeliClient] Request failed, retrying in %v (attempt %d/%d): %v", delay, attempt+1, c.maxRetries, err)
				if serr := c.sleep(ctx, delay); serr != nil {
					return nil, &Error{Kind: KindTimeout, Message: "cancelled during backoff", Err: serr}
				}
				delay *= 2
				continue
			}
			return nil, &Error{Kind: KindRetriesExhausted, Message: fmt.Sprintf("request failed after %d retries", c.maxRetries), Err: lastErr}
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			if attempt < c.maxRetries {
				if serr := c.sleep(ctx, delay); serr != nil {
					return nil, &Error{Kind: KindTimeout, Message: "cancelled during backoff", Err: serr}
				}
				delay *= 2
				continue
			}
			return nil, &Error{Kind: KindRetriesExhausted, Message: "failed to read response body", Err: lastErr}
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return respBody, nil

		case resp.StatusCode == http.StatusTooManyRequests:
			if attempt < c.maxRetries {
				log.Printf("[MeliClient] Rate limited (429), retrying in %v (attempt %d/%d)", delay, attempt+1, c.maxRetries)
				if serr := c.sleep(ctx, delay); serr != nil {
					return nil, &Error{Kind: KindTimeout, Message: "cancelled during backoff", Err: serr}
				}
				delay *= 2
				continue
			}
			return nil, &Error{Kind: KindRateLimited, Status: resp.StatusCode, Message: fmt.Sprintf("rate limited after %d retries", c.maxRetries)}

		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return nil, &Error{Kind: KindClientError, Status: resp.StatusCode, Message: string(respBody)}

		default: // 5xx
			lastErr = fmt.Errorf("server error (HTTP %d)", resp.StatusCode)
			if attempt < c.maxRetries {
				log.Printf("[MeliClient] Server error (%d), retrying in %v (attempt %d/%d)", resp.StatusCode, delay, attempt+1, c.maxRetries)
				if serr := c.sleep(ctx, delay); serr != nil {
					return nil, &Error{Kind: KindTimeout, Message: "cancelled during backoff", Err: serr}
				}
				delay *= 2
				continue
			}
			return nil, &Error{Kind: KindRetriesExhausted, Status: resp.StatusCode, Message: fmt.Sprintf("server error after %d retries", c.maxRetries), Err: lastErr}
		}
	}

	return nil, &Error{Kind: KindRetriesExhausted, Message: "unexpected retry loop exit", Err: lastErr}
}

// GetItem fetches a single item by id.
func (c *Client) GetItem(ctx context.Context, itemID string) (*Item, error) {
	body, err := c.request(ctx, http.MethodGet, fmt.Sprintf("%s/items/%s", c.baseURL, itemID), nil)
	if err != nil {
		return nil, err
	}
	var item Item
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, fmt.Errorf("failed to parse item %s: %w", itemID, err)
	}
	return &item, nil
}

// GetItemsBatch fetches up to BatchSize items via the multiget
// endpoint. Per-item failures inside the batch are skipped.
func (c *Client) GetItemsBatch(ctx context.Context, itemIDs []string) ([]Item, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	if len(itemIDs) > BatchSize {
		itemIDs = itemIDs[:BatchSize]
	}
	u := fmt.Sprintf("%s/items?ids=%s&attributes=id,title,available_quantity,seller_custom_field",
		c.baseURL, strings.Join(itemIDs, ","))
	body, err := c.request(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	var results []multigetResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("failed to parse multiget response: %w", err)
	}

	items := make([]Item, 0, len(results))
	for _, r := range results {
		if r.Code != http.StatusOK {
			continue
		}
		var item Item
		if err := json.Unmarshal(r.Body, &item); err != nil {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// SearchUserItemsScroll fetches one page of a cursor-based full
// catalog scan. An empty scrollID starts a fresh scan.
func (c *Client) SearchUserItemsScroll(ctx context.Context, userID int64, scrollID string, limit int) (*ScrollPage, error) {
	u := fmt.Sprintf("%s/users/%d/items/search?search_type=scan&limit=%d", c.baseURL, userID, limit)
	if scrollID != "" {
		u += "&scroll_id=" + url.QueryEscape(scrollID)
	}
	body, err := c.request(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	var page ScrollPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to parse scroll page: %w", err)
	}
	return &page, nil
}

// SearchActiveItems fetches one offset-paginated page of active items.
func (c *Client) SearchActiveItems(ctx context.Context, userID int64, offset, limit int) (*ScrollPage, error) {
	u := fmt.Sprintf("%s/users/%d/items/search?status=active&offset=%d&limit=%d", c.baseURL, userID, offset, limit)
	body, err := c.request(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	var page ScrollPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to parse search page: %w", err)
	}
	return &page, nil
}

// SearchRecentOrders fetches orders created since the given time.
func (c *Client) SearchRecentOrders(ctx context.Context, sellerID int64, since time.Time) (*OrderSearch, error) {
	u := fmt.Sprintf("%s/orders/search?seller=%d&order.date_created.from=%s",
		c.baseURL, sellerID, url.QueryEscape(since.UTC().Format(time.RFC3339)))
	body, err := c.request(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	var search OrderSearch
	if err := json.Unmarshal(body, &search); err != nil {
		return nil, fmt.Errorf("failed to parse orders search: %w", err)
	}
	return &search, nil
}

// GetResource fetches an arbitrary resource path (orders, questions,
// shipments, payments) and returns the raw payload for record tables.
func (c *Client) GetResource(ctx context.Context, resource string) ([]byte, error) {
	if !strings.HasPrefix(resource, "/") {
		resource = "/" + resource
	}
	return c.request(ctx, http.MethodGet, c.baseURL+resource, nil)
}

// GetMissedFeeds fetches one page of notifications the marketplace
// could not deliver to the registered webhook URL.
func (c *Client) GetMissedFeeds(ctx context.Context, appID int64, topic string, offset, limit int) (*FeedPage, error) {
	u := fmt.Sprintf("%s/missed_feeds?app_id=%d&topic=%s&offset=%d&limit=%d",
		c.baseURL, appID, url.QueryEscape(topic), offset, limit)
	body, err := c.request(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	var page FeedPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to parse missed feeds page: %w", err)
	}
	return &page, nil
}

// Me fetches the authenticated user, used to resolve the seller id.
func (c *Client) Me(ctx context.Context) (*User, error) {
	body, err := c.request(ctx, http.MethodGet, c.baseURL+"/users/me", nil)
	if err != nil {
		return nil, err
	}
	var user User
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("failed to parse user: %w", err)
	}
	return &user, nil
}

// UpdateItemStock sets an item's available quantity.
func (c *Client) UpdateItemStock(ctx context.Context, itemID string, quantity int) error {
	payload, _ := json.Marshal(map[string]int{"available_quantity": quantity})
	_, err := c.request(ctx, http.MethodPut, fmt.Sprintf("%s/items/%s", c.baseURL, itemID), payload)
	return err
}

// RegisterWebhook sets the application's notification URL.
func (c *Client) RegisterWebhook(ctx context.Context, appID int64, notificationURL string) error {
	payload, _ := json.Marshal(map[string]string{"notification_url": notificationURL})
	_, err := c.request(ctx, http.MethodPut, fmt.Sprintf("%s/applications/%d", c.baseURL, appID), payload)
	return err
}

// OAuthGrant performs an /oauth/token grant. grantType is either
// "authorization_code" or "refresh_token"; the corresponding code or
// refresh token goes in credential. Unauthenticated by design.
func (c *Client) OAuthGrant(ctx context.Context, grantType, clientID, clientSecret, credential, redirectURI string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", grantType)
	form.Set("client_id", clientID)
	form.Set("client_secret", clientSecret)
	switch grantType {
	case "authorization_code":
		form.Set("code", credential)
		form.Set("redirect_uri", redirectURI)
	case "refresh_token":
		form.Set("refresh_token", credential)
	default:
		return nil, fmt.Errorf("unsupported grant type: %s", grantType)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	var tr TokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := tr.Message
		if msg == "" {
			msg = tr.Error
		}
		return nil, &Error{Kind: KindAuth, Status: resp.StatusCode, Message: "token grant failed: " + msg}
	}
	return &tr, nil
}
