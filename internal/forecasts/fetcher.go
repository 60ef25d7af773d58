package forecasts

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"forecasting/internal/types"
)

// SourceFetcher fetches a single forecast document.
type SourceFetcher interface {
	Fetch(ctx context.Context, src types.Source) (json.RawMessage, error)
}

// Fetcher routes each source to the HTTP client or the S3 archive by the
// scheme of its URL. Either backend may be nil; sources routed to a missing
// backend fail with config_invalid_value.
type Fetcher struct {
	http    SourceFetcher
	archive SourceFetcher
}

// NewFetcher creates a Fetcher.
func NewFetcher(http, archive SourceFetcher) *Fetcher {
	return &Fetcher{http: http, archive: archive}
}

// Fetch implements pipeline.FetchFunc.
func (f *Fetcher) Fetch(ctx context.Context, src types.Source) (json.RawMessage, error) {
	var backend SourceFetcher
	switch {
	case strings.HasPrefix(src.URL, "s3://"):
		backend = f.archive
	case strings.HasPrefix(src.URL, "http://"), strings.HasPrefix(src.URL, "https://"):
		backend = f.http
	}
	if backend == nil {
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeConfigInvalidValue,
			fmt.Sprintf("no fetcher for forecast url %q", src.URL),
			nil,
			map[string]any{"city": src.City},
		)
	}
	return backend.Fetch(ctx, src)
}
