package nvd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cmerrors "github.com/exploopio/cvemap/pkg/errors"
)

func fixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/" + name)
	require.NoError(t, err)
	return data
}

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(&Config{BaseURL: srv.URL}, nil)
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(nil, nil)
	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Empty(t, c.apiKey)
	assert.Zero(t, c.client.Timeout)
	assert.Equal(t, publicRateBurst, c.limiter.Burst())

	keyed := NewClient(&Config{APIKey: "k"}, nil)
	assert.Equal(t, keyedRateBurst, keyed.limiter.Burst())
}

func TestFetch_Success(t *testing.T) {
	body := fixture(t, "CVE-2021-44228.json")
	var gotQuery, gotKey string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("cveId")
		gotKey = r.Header.Get("apiKey")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	c := NewClient(&Config{BaseURL: srv.URL, APIKey: "secret"}, nil)
	cve, err := c.Fetch(context.Background(), "CVE-2021-44228")
	require.NoError(t, err)

	assert.Equal(t, "CVE-2021-44228", gotQuery)
	assert.Equal(t, "secret", gotKey)

	assert.Equal(t, "CVE-2021-44228", cve.ID)
	assert.Contains(t, cve.Description(), "Apache Log4j2")

	score, ok := cve.BaseScoreV31()
	assert.True(t, ok)
	assert.InDelta(t, 10.0, score, 0.001)

	assert.Equal(t, []string{"CWE-502", "CWE-400", "CWE-20", "CWE-502"}, cve.WeaknessValues())
}

func TestFetch_IdentifierSentVerbatim(t *testing.T) {
	var got string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query().Get("cveId")
		_, _ = w.Write([]byte(`{"vulnerabilities":[]}`))
	})

	_, _ = c.Fetch(context.Background(), " cve-2021-44228&x=1")
	assert.Equal(t, " cve-2021-44228&x=1", got)
}

func TestFetch_NotFound(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "zero vulnerabilities",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"resultsPerPage":0,"totalResults":0,"vulnerabilities":[]}`))
			},
		},
		{
			name: "404 with message header",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("message", "Invalid cveId parameter")
				w.WriteHeader(http.StatusNotFound)
			},
		},
		{
			name: "503",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
		},
		{
			name: "garbage body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`<html>maintenance</html>`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestServer(t, tt.handler)

			cve, err := c.Fetch(context.Background(), "CVE-0000-0000")
			assert.Nil(t, cve)
			require.Error(t, err)
			assert.Equal(t, cmerrors.KindNotFound, cmerrors.GetKind(err), "got %v", err)
			assert.ErrorIs(t, err, cmerrors.ErrNotFound)
		})
	}
}

func TestFetch_APIErrorDetail(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("message", "Invalid apiKey")
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := c.Fetch(context.Background(), "CVE-2021-44228")
	apiErr, ok := cmerrors.IsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "Invalid apiKey", apiErr.Message)
}

func TestFetch_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(&Config{BaseURL: url}, nil)
	_, err := c.Fetch(context.Background(), "CVE-2021-44228")
	require.Error(t, err)
	assert.ErrorIs(t, err, cmerrors.ErrNotFound)
}

func TestFetch_ContextCancelled(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Fetch(ctx, "CVE-2021-44228")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCVE_Helpers(t *testing.T) {
	t.Run("nil record", func(t *testing.T) {
		var c *CVE
		assert.Empty(t, c.Description())
		_, ok := c.BaseScoreV31()
		assert.False(t, ok)
		assert.Empty(t, c.WeaknessValues())
	})

	t.Run("first description wins", func(t *testing.T) {
		c := &CVE{Descriptions: []Description{{Lang: "es", Value: "hola"}, {Lang: "en", Value: "hello"}}}
		assert.Equal(t, "hola", c.Description())
	})

	t.Run("empty values skipped", func(t *testing.T) {
		c := &CVE{Descriptions: []Description{{Lang: "en"}, {Lang: "fr", Value: "bonjour"}}}
		assert.Equal(t, "bonjour", c.Description())
	})

	t.Run("only v2 score", func(t *testing.T) {
		c := &CVE{Metrics: &Metrics{CvssMetricV2: []CvssMetric{{CvssData: CvssData{BaseScore: 5}}}}}
		_, ok := c.BaseScoreV31()
		assert.False(t, ok)
	})

	t.Run("free text weakness values are kept", func(t *testing.T) {
		c := &CVE{Weaknesses: []Weakness{{Description: []Description{{Value: "NVD-CWE-noinfo"}, {Value: "n/a"}}}}}
		assert.Equal(t, []string{"NVD-CWE-noinfo", "n/a"}, c.WeaknessValues())
	})
}
