package ingestion

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const trialPage = `<!DOCTYPE html>
<html>
<head><title>Study NCT01234567</title><script>var tracking = true;</script></head>
<body>
<nav>Home | Search</nav>
<main>
<h1>Heart Health Study</h1>
<p>This study   tests whether a new pill lowers blood pressure.</p>
<ul><li>Adults aged 40 to 75</li></ul>
</main>
<footer>Contact us</footer>
</body>
</html>`

func TestIngestFromURL_InvalidURL(t *testing.T) {
	for _, u := range []string{"", "not-a-url", "example.com", "http://"} {
		t.Run(u, func(t *testing.T) {
			_, _, err := IngestFromURL(context.Background(), u, nil, nil)
			assert.ErrorIs(t, err, ErrHTTPRequestFailed)
		})
	}
}

func TestIngestFromURL_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(trialPage))
	}))
	defer server.Close()

	text, metadata, err := IngestFromURL(context.Background(), server.URL, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "Heart Health Study\nThis study tests whether a new pill lowers blood pressure.\nAdults aged 40 to 75", text)
	require.NotNil(t, metadata)
	assert.Equal(t, server.URL, metadata.URL)
	assert.Equal(t, "unknown", metadata.Source)
	assert.Equal(t, "Heart Health Study", metadata.Title)
	assert.Equal(t, computeHash(text), metadata.Hash)
}

func TestIngestFromURL_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, _, err := IngestFromURL(context.Background(), server.URL, nil, nil)
	require.ErrorIs(t, err, ErrHTTPRequestFailed)
	assert.Contains(t, err.Error(), "404")
}

func TestIngestFromURL_EmptyPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><nav>Menu</nav><script>x()</script></body></html>`))
	}))
	defer server.Close()

	_, _, err := IngestFromURL(context.Background(), server.URL, nil, nil)
	assert.ErrorIs(t, err, ErrContentExtractionFailed)
	assert.ErrorIs(t, err, ErrEmptyContent)
}

func TestIngestFromURL_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	_, _, err := IngestFromURL(context.Background(), url, nil, nil)
	assert.ErrorIs(t, err, ErrHTTPRequestFailed)
}
