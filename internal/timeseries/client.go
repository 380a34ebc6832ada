// Package timeseries is the HTTP client for the plant historian, the source
// of discrete tagged condition intervals (grade runs, calendar blocks) and
// regularly sampled usage signals.
package timeseries

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/sebastiankruger/mill-forecaster/internal/core"
)

const (
	intervalsPath = "/api/v1/intervals"
	seriesPath    = "/api/v1/series"
)

// Interval is one tagged condition row: the tag held Value over [Start, End).
// Values arrive un-normalized; callers run them through the grade normalizer.
type Interval struct {
	Value string    `json:"value"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type intervalResponse struct {
	Items []Interval `json:"items"`
}

type sampleResponse struct {
	Items []core.Sample `json:"items"`
}

// Client talks to the historian's windowed query API. Failures surface as
// errors so callers can log and degrade to empty data; the client itself
// never retries.
type Client struct {
	base       string
	httpClient *http.Client
}

// NewClient creates a historian client for the given base URL.
func NewClient(base string) *Client {
	return &Client{
		base: base,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Intervals fetches the condition intervals recorded for a tag over
// [from, to), converted into the named timezone, ordered by start time.
// An empty window is not an error.
func (c *Client) Intervals(ctx context.Context, tag string, from, to time.Time, tz string) ([]Interval, error) {
	var payload intervalResponse
	if err := c.get(ctx, intervalsPath, url.Values{"tag": {tag}}, from, to, tz, &payload); err != nil {
		return nil, fmt.Errorf("failed to fetch intervals for %s: %w", tag, err)
	}
	sort.Slice(payload.Items, func(i, j int) bool {
		return payload.Items[i].Start.Before(payload.Items[j].Start)
	})
	return payload.Items, nil
}

// Series fetches the sampled values of a signal over [from, to), converted
// into the named timezone, ordered by timestamp. An empty window is not an
// error.
func (c *Client) Series(ctx context.Context, signal string, from, to time.Time, tz string) ([]core.Sample, error) {
	var payload sampleResponse
	if err := c.get(ctx, seriesPath, url.Values{"signal": {signal}}, from, to, tz, &payload); err != nil {
		return nil, fmt.Errorf("failed to fetch series for %s: %w", signal, err)
	}
	sort.Slice(payload.Items, func(i, j int) bool {
		return payload.Items[i].Timestamp.Before(payload.Items[j].Timestamp)
	})
	return payload.Items, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, from, to time.Time, tz string, out interface{}) error {
	u, err := url.Parse(c.base + path)
	if err != nil {
		return fmt.Errorf("failed to build url: %w", err)
	}
	query.Set("from", from.Format(time.RFC3339))
	query.Set("to", to.Format(time.RFC3339))
	if tz != "" {
		query.Set("tz", tz)
	}
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("historian returned %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
