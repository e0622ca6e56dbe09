package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"restack-guard/internal/model"
	"restack-guard/internal/opclock"

	"golang.org/x/time/rate"
)

// maxBodyBytes bounds how much of an upstream response is read.
const maxBodyBytes = 16 << 20

// Config holds client settings.
type Config struct {
	ApexBaseURL      string
	LoadEntryBaseURL string
	Timeout          time.Duration
	RatePerSecond    float64 // <= 0 disables pacing
	Burst            int
	HTTPClient       *http.Client
}

// Client is a thin authenticated wrapper over the Apex and Load-Entry REST
// services. Every failure it returns is an *AuthExpiredError, *StatusError,
// *MalformedResponseError, or a transport/context error.
type Client struct {
	httpClient *http.Client
	bases      map[Source]string
	limiter    *rate.Limiter
}

// New creates a new upstream client.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		httpClient: httpClient,
		bases: map[Source]string{
			SourceApex:      strings.TrimRight(cfg.ApexBaseURL, "/"),
			SourceLoadEntry: strings.TrimRight(cfg.LoadEntryBaseURL, "/"),
		},
		limiter: rate.NewLimiter(limit, burst),
	}
}

// FetchPurchaseOrders lists POs for a sub-department on an operational date.
func (c *Client) FetchPurchaseOrders(ctx context.Context, subDept int, date time.Time, token string) ([]model.PurchaseOrder, error) {
	d := opclock.ApexFormat(date)
	path := fmt.Sprintf("/subdept/%d/pos/%s/%s", subDept, d, d)

	var pos []model.PurchaseOrder
	if err := c.getJSON(ctx, SourceApex, path, token, &pos); err != nil {
		return nil, err
	}
	return pos, nil
}

// FetchAncillaryItems lists ancillary fee lines for a sub-department on an
// operational date.
func (c *Client) FetchAncillaryItems(ctx context.Context, subDept int, date time.Time, token string) ([]model.AncillaryItem, error) {
	d := opclock.ApexFormat(date)
	path := fmt.Sprintf("/subdept/%d/ancillaryItems/%s/%s", subDept, d, d)

	var items []model.AncillaryItem
	if err := c.getJSON(ctx, SourceApex, path, token, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// FetchTruckSummaries lists trucks for a sub-department on an operational date.
func (c *Client) FetchTruckSummaries(ctx context.Context, subDept int, date time.Time, token string) ([]model.TruckSummary, error) {
	path := fmt.Sprintf("/truckSummaries/%d/%s/", subDept, opclock.LoadEntryFormat(date))

	var trucks []model.TruckSummary
	if err := c.getJSON(ctx, SourceLoadEntry, path, token, &trucks); err != nil {
		return nil, err
	}
	return trucks, nil
}

// VoidWalletCheckout cancels a pending driver wallet payment. The response
// body is ignored.
func (c *Client) VoidWalletCheckout(ctx context.Context, checkoutID, token string) error {
	path := "/payment/driverwallet/checkout/void/" + url.PathEscape(checkoutID)
	_, err := c.do(ctx, http.MethodDelete, SourceLoadEntry, path, token)
	return err
}

func (c *Client) getJSON(ctx context.Context, src Source, path, token string, out any) error {
	body, err := c.do(ctx, http.MethodGet, src, path, token)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &MalformedResponseError{Source: src, Path: path, Snippet: snippet(body), Err: err}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method string, src Source, path, token string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.bases[src]+path, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build request for %s: %w", src, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %s %s: %w", src, method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read response for %s: %w", src, path, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		log.Printf("[Upstream] %s %s %s -> 401", src, method, path)
		return nil, &AuthExpiredError{Source: src, Path: path}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		log.Printf("[Upstream] %s %s %s -> %d", src, method, path, resp.StatusCode)
		return nil, &StatusError{Source: src, StatusCode: resp.StatusCode, Path: path}
	}

	return body, nil
}
