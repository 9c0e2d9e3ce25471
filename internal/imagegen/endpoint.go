// Package imagegen renders planned assets into images through a text-to-image
// endpoint (stage 3).
package imagegen

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultPollinationsURL is the public Pollinations prompt endpoint.
const DefaultPollinationsURL = "https://image.pollinations.ai/prompt/"

const (
	defaultTimeout   = 60 * time.Second
	defaultUserAgent = "Mozilla/5.0 (compatible; TrialExplainer/1.0)"
	// maxImageBytes bounds a single response body.
	maxImageBytes = 32 << 20
)

// Endpoint turns a prompt into raw image bytes.
type Endpoint interface {
	Fetch(ctx context.Context, prompt string, width, height int) ([]byte, error)
}

// HTTPError is returned when the endpoint answers with a non-200 status.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("image endpoint returned HTTP %d", e.StatusCode)
}

// PollinationsEndpoint fetches images with a plain GET per prompt.
type PollinationsEndpoint struct {
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string
}

// NewPollinationsEndpoint returns an endpoint rooted at baseURL, or the public
// service when baseURL is empty.
func NewPollinationsEndpoint(baseURL string) *PollinationsEndpoint {
	if baseURL == "" {
		baseURL = DefaultPollinationsURL
	}
	return &PollinationsEndpoint{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
		UserAgent:  defaultUserAgent,
	}
}

// RequestURL builds the GET URL for a prompt.
func (p *PollinationsEndpoint) RequestURL(prompt string, width, height int) string {
	base := p.BaseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	q := url.Values{}
	if width > 0 {
		q.Set("width", fmt.Sprint(width))
	}
	if height > 0 {
		q.Set("height", fmt.Sprint(height))
	}
	q.Set("nologo", "true")
	return base + url.PathEscape(prompt) + "?" + q.Encode()
}

// Fetch implements Endpoint.
func (p *PollinationsEndpoint) Fetch(ctx context.Context, prompt string, width, height int) ([]byte, error) {
	reqURL := p.RequestURL(prompt, width, height)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build image request: %w", err)
	}
	if p.UserAgent != "" {
		req.Header.Set("User-Agent", p.UserAgent)
	}

	client := p.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: reqURL}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}
	return data, nil
}
