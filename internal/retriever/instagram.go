package retriever

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const (
	DefaultLookupEndpoint  = "https://saveinsta.app/api/lookup/"
	DefaultLookupUserAgent = "Mozilla/5.0"
	DefaultLookupTimeout   = 15 * time.Second

	maxLookupBody = 1 << 20
)

// Instagram resolves a post link to a direct media URL through a third-party
// lookup API.
type Instagram struct {
	endpoint  string
	userAgent string
	timeout   time.Duration
	client    *http.Client
	logger    *slog.Logger
}

type InstagramConfig struct {
	Endpoint  string
	UserAgent string
	Timeout   time.Duration
	Client    *http.Client // optional; defaults to a pooled client with Timeout
	Logger    *slog.Logger
}

func NewInstagram(cfg InstagramConfig) *Instagram {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultLookupEndpoint
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultLookupUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultLookupTimeout
	}
	if cfg.Client == nil {
		cfg.Client = newHTTPClient(cfg.Timeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Instagram{
		endpoint:  cfg.Endpoint,
		userAgent: cfg.UserAgent,
		timeout:   cfg.Timeout,
		client:    cfg.Client,
		logger:    cfg.Logger,
	}
}

type lookupResponse struct {
	Media []struct {
		DownloadURL string `json:"downloadUrl"`
	} `json:"media"`
}

// Resolve returns the first media download URL for link, or "" when the
// lookup fails for any reason. It never returns an error: network, status
// and decoding failures are logged and folded into the empty result.
func (ig *Instagram) Resolve(ctx context.Context, link string) string {
	dl, err := ig.lookup(ctx, link)
	if err != nil {
		ig.logger.Error("instagram lookup failed", "url", link, "err", err)
		return ""
	}
	return dl
}

func (ig *Instagram) lookup(ctx context.Context, link string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, ig.timeout)
	defer cancel()

	endpoint, err := ig.lookupURL(link)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", ig.userAgent)

	resp, err := ig.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("lookup status %d", resp.StatusCode)
	}

	var body lookupResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxLookupBody)).Decode(&body); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(body.Media) == 0 {
		return "", fmt.Errorf("no media in response")
	}
	return body.Media[0].DownloadURL, nil
}

func (ig *Instagram) lookupURL(link string) (string, error) {
	u, err := url.Parse(ig.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("url", link)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
