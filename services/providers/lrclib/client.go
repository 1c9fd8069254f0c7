package lrclib

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lyrics-sync-go/logcolors"

	log "github.com/sirupsen/logrus"
)

const (
	// DefaultBaseURL is the public LRCLIB instance
	DefaultBaseURL = "https://lrclib.net"

	getPath = "/api/get"

	defaultTimeout = 10 * time.Second
)

// errNoRecord is returned by Get when the catalog answers 404
var errNoRecord = errors.New("no record")

// Client talks to an LRCLIB instance
type Client struct {
	baseURL    string
	clientID   string
	httpClient *http.Client
}

// NewClient creates a client. clientID is sent as both User-Agent and
// Lrclib-Client, e.g. "lyrics-sync-go v0.1.0".
func NewClient(baseURL, clientID string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		clientID:   clientID,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Get fetches the record for an exact artist/track pair
func (c *Client) Get(ctx context.Context, artist, track string) (*GetResponse, error) {
	params := url.Values{}
	params.Set("artist_name", artist)
	params.Set("track_name", track)

	requestURL := c.baseURL + getPath + "?" + params.Encode()

	log.Debugf("%s GET %s", logcolors.LogHTTP, requestURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.clientID)
	req.Header.Set("Lrclib-Client", c.clientID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, errNoRecord
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr ErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var record GetResponse
	if err := json.Unmarshal(body, &record); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &record, nil
}
