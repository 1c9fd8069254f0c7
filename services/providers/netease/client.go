package netease

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"lyrics-sync-go/logcolors"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the public NetEase Cloud Music endpoint
	DefaultBaseURL = "https://music.163.com"

	searchPath = "/api/search/get"
	lyricPath  = "/api/song/lyric"

	defaultTimeout = 10 * time.Second
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// Client talks to the NetEase API. Every outbound call waits on a shared
// limiter so bursts of lookups do not trip the catalog's throttling.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a client. perSecond <= 0 disables throttling.
func NewClient(baseURL string, timeout time.Duration, perSecond float64) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, 1),
	}
}

// SearchSong returns the first song matching keyword, or nil when there is none
func (c *Client) SearchSong(ctx context.Context, keyword string) (*Song, error) {
	params := url.Values{}
	params.Set("s", keyword)
	params.Set("type", "1")
	params.Set("limit", "1")
	params.Set("offset", "0")

	log.Debugf("%s [NetEase] Searching songs: %s", logcolors.LogSearch, keyword)

	var resp SearchResponse
	if err := c.get(ctx, searchPath, params, &resp); err != nil {
		return nil, err
	}
	if resp.Code != http.StatusOK {
		return nil, fmt.Errorf("API error (code: %d)", resp.Code)
	}
	if len(resp.Result.Songs) == 0 {
		return nil, nil
	}
	return &resp.Result.Songs[0], nil
}

// GetLyric fetches the lyric document for a song ID
func (c *Client) GetLyric(ctx context.Context, id int64) (*LyricResponse, error) {
	params := url.Values{}
	params.Set("id", strconv.FormatInt(id, 10))
	params.Set("lv", "-1")
	params.Set("kv", "-1")
	params.Set("tv", "-1")

	log.Debugf("%s [NetEase] Downloading lyrics ID: %d", logcolors.LogLyrics, id)

	var resp LyricResponse
	if err := c.get(ctx, lyricPath, params, &resp); err != nil {
		return nil, err
	}
	if resp.Code != http.StatusOK {
		return nil, fmt.Errorf("API error (code: %d)", resp.Code)
	}
	return &resp, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	requestURL := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", DefaultBaseURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
