package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonathan/trial-explainer/internal/fetch"
	"github.com/jonathan/trial-explainer/internal/logging"
)

var (
	// ErrHTTPRequestFailed is returned when HTTP request fails
	ErrHTTPRequestFailed = errors.New("HTTP request failed")
	// ErrContentExtractionFailed is returned when content extraction fails
	ErrContentExtractionFailed = errors.New("content extraction failed")
)

// IngestFromURL fetches a trial page, extracts its main text with
// registry-specific selectors, and cleans it.
func IngestFromURL(ctx context.Context, urlStr string, opts *fetch.Options, logger *slog.Logger) (string, *Metadata, error) {
	log := logging.OrNop(logger)
	source := fetch.DetectSource(urlStr)
	log.Debug("fetching trial summary", "url", urlStr, "source", source)

	result, err := fetch.URL(ctx, urlStr, opts)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrHTTPRequestFailed, err)
	}
	log.Debug("fetched page", "bytes", len(result.HTML), "content_type", result.ContentType)

	text, err := fetch.ExtractMainText(result.HTML, fetch.ContentSelectors(source), fetch.NoiseSelectors(source)...)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrContentExtractionFailed, err)
	}

	cleanedText := CleanText(text)
	if cleanedText == "" {
		return "", nil, fmt.Errorf("%w: %s: %w", ErrContentExtractionFailed, urlStr, ErrEmptyContent)
	}
	log.Debug("extracted trial summary", "chars", len(cleanedText))

	metadata := NewMetadata(cleanedText, urlStr)
	metadata.Source = string(source)
	metadata.Title = fetch.Title(result.HTML)
	return cleanedText, metadata, nil
}
