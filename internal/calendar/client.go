// Package calendar fetches scheduled economic events from an HTTP calendar
// feed or a JSON file and converts them to models.EconomicEvent.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rewired-gh/econoracle/internal/classifier"
	"github.com/rewired-gh/econoracle/internal/logger"
	"github.com/rewired-gh/econoracle/internal/models"
)

const dateLayout = "2006-01-02"

// Client provides access to the calendar API
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
}

// FetchResult holds the usable events of one fetch and the rows that were skipped.
type FetchResult struct {
	Events  []models.EconomicEvent
	Skipped []models.DataError
}

// NewClient creates a new calendar client
func NewClient(baseURL string, timeout time.Duration, maxRetries int, retryDelay time.Duration) *Client {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}
}

// FetchEvents retrieves events scheduled within [from, to]. Rows the feed
// returns outside the window are dropped.
func (c *Client) FetchEvents(ctx context.Context, from, to time.Time) (FetchResult, error) {
	q := url.Values{}
	q.Set("from", from.UTC().Format(dateLayout))
	q.Set("to", to.UTC().Format(dateLayout))
	endpoint := fmt.Sprintf("%s/events?%s", c.baseURL, q.Encode())

	body, err := c.doRequest(ctx, endpoint)
	if err != nil {
		return FetchResult{}, fmt.Errorf("failed to fetch events: %w", err)
	}

	result, err := Decode(body)
	if err != nil {
		return FetchResult{}, fmt.Errorf("failed to decode events: %w", err)
	}

	inWindow := classifier.ByTimeWindow(result.Events, from, to)
	if dropped := len(result.Events) - len(inWindow); dropped > 0 {
		logger.Debug("Dropped %d events outside %s..%s", dropped, from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	result.Events = inWindow
	return result, nil
}

// doRequest performs a GET with retry on transport errors and 5xx responses
func (c *Client) doRequest(ctx context.Context, endpoint string) ([]byte, error) {
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(i)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			logger.Warn("Calendar request failed (attempt %d/%d): %v", i+1, c.maxRetries, err)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			logger.Warn("Calendar server error %d (attempt %d/%d)", resp.StatusCode, i+1, c.maxRetries)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200))
		}
		if readErr != nil {
			lastErr = readErr
			continue
		}
		return body, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// feed is the wire envelope. Bare arrays are accepted too.
type feed struct {
	Events []Row `json:"events"`
}

func unmarshalRows(data []byte) ([]Row, error) {
	if trimmed := bytes.TrimLeft(data, " \t\r\n"); len(trimmed) > 0 && trimmed[0] == '[' {
		var rows []Row
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return nil, err
		}
		return rows, nil
	}
	var f feed
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return f.Events, nil
}
