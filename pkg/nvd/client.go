// Package nvd fetches CVE records from the NVD CVE API 2.0.
// Data source: https://nvd.nist.gov/developers/vulnerabilities
package nvd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/exploopio/cvemap/pkg/core"
	cmerrors "github.com/exploopio/cvemap/pkg/errors"
)

const (
	// DefaultBaseURL is the NVD CVE API 2.0 endpoint.
	DefaultBaseURL = "https://services.nvd.nist.gov/rest/json/cves/2.0"

	// NVD allows 5 requests per rolling 30s window without a key, 50 with one.
	publicRateWindow = 30 * time.Second
	publicRateBurst  = 5
	keyedRateBurst   = 50

	userAgent = "cvemap/1.0"
)

// Config configures the NVD client.
type Config struct {
	// BaseURL overrides the API endpoint (tests, mirrors).
	BaseURL string `yaml:"base_url"`

	// APIKey is sent in the "apiKey" header when set.
	APIKey string `yaml:"api_key"`

	// Timeout is the HTTP client timeout. Zero leaves net/http's default (none).
	Timeout time.Duration `yaml:"timeout"`
}

// Client looks up a single CVE per call.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	logger  core.Logger
}

// NewClient creates a client. A nil cfg uses the public endpoint without a key.
func NewClient(cfg *Config, logger core.Logger) *Client {
	if cfg == nil {
		cfg = &Config{}
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	burst := publicRateBurst
	if cfg.APIKey != "" {
		burst = keyedRateBurst
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Every(publicRateWindow/time.Duration(burst)), burst),
		logger:  core.OrNop(logger),
	}
}

// Fetch retrieves the record for cveID. The id is sent verbatim.
//
// A transport failure, a non-200 status, an undecodable body and an empty
// result set all yield an error of kind KindNotFound; the wrapped error
// carries the detail.
func (c *Client) Fetch(ctx context.Context, cveID string) (*CVE, error) {
	const op = "nvd.Fetch"

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, cmerrors.E(cmerrors.KindNotFound, op, "rate limiter", err)
	}

	q := url.Values{}
	q.Set("cveId", cveID)
	reqURL := c.baseURL + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, cmerrors.E(cmerrors.KindNotFound, op, "build request", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apiKey", c.apiKey)
	}

	if c.apiKey != "" {
		c.logger.Debug("GET %s (apiKey %s)", reqURL, core.MaskAPIKey(c.apiKey))
	} else {
		c.logger.Debug("GET %s", reqURL)
	}
	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("NVD request for %s failed: %v", cveID, err)
		return nil, cmerrors.E(cmerrors.KindNotFound, op, "request failed", err)
	}
	defer resp.Body.Close()
	c.logger.Debug("NVD answered %d in %s", resp.StatusCode, time.Since(start).Round(time.Millisecond))

	if resp.StatusCode != http.StatusOK {
		apiErr := &cmerrors.APIError{
			StatusCode: resp.StatusCode,
			Message:    resp.Header.Get("message"),
			URL:        reqURL,
		}
		c.logger.Warn("NVD returned status %d for %s", resp.StatusCode, cveID)
		return nil, cmerrors.E(cmerrors.KindNotFound, op, fmt.Sprintf("status %d", resp.StatusCode), apiErr)
	}

	var body Response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, cmerrors.E(cmerrors.KindNotFound, op, "decode response", err)
	}

	if len(body.Vulnerabilities) == 0 {
		return nil, cmerrors.E(cmerrors.KindNotFound, op, "no matching vulnerability: "+cveID)
	}
	if len(body.Vulnerabilities) > 1 {
		c.logger.Warn("NVD returned %d vulnerabilities for %s, using the first", len(body.Vulnerabilities), cveID)
	}

	cve := body.Vulnerabilities[0].CVE
	return &cve, nil
}
