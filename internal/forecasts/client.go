// Package forecasts turns city names into forecast documents and forecast
// documents into per-day summaries.
//
// It contains the three collaborators the ranking pipeline plugs in: the
// city Registry (name to source URL), the fetchers (HTTP weather API and S3
// forecast archive, selected per source by URL scheme) and Analyze, the
// CPU-bound transform run by the worker pool.
package forecasts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"forecasting/internal/config"
	"forecasting/internal/external"
	"forecasting/internal/types"
)

// APIKeyHeader carries the weather API key.
const APIKeyHeader = "X-Yandex-API-Key"

// MaxPayloadBytes caps the size of a single decoded forecast document.
const MaxPayloadBytes = 8 << 20

// Client fetches forecast documents from the weather HTTP API.
type Client struct {
	base   *external.BaseClient
	apiKey config.SecretString
	logger *slog.Logger
}

// NewClient creates a Client. The API key header is only sent when apiKey is
// non-empty.
func NewClient(base *external.BaseClient, apiKey config.SecretString, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{base: base, apiKey: apiKey, logger: logger}
}

// Fetch downloads and validates the forecast document for src. The returned
// document is a JSON value; its shape is checked later by Analyze.
func (c *Client) Fetch(ctx context.Context, src types.Source) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeConfigInvalidValue,
			fmt.Sprintf("invalid forecast url for %s", src.City),
			err,
			map[string]any{"city": src.City},
		)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(APIKeyHeader, c.apiKey.Unmask())
	}

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeUpstreamForecast,
			fmt.Sprintf("forecast for %s returned %d", src.City, resp.StatusCode),
			nil,
			map[string]any{"city": src.City, "status": resp.StatusCode},
		)
	}

	body, err := external.DecodeBody(resp)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamForecast, "failed to decode forecast body", err)
	}
	defer body.Close()

	payload, err := readPayload(body)
	if err != nil {
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeUpstreamForecast,
			fmt.Sprintf("failed to read forecast for %s", src.City),
			err,
			map[string]any{"city": src.City},
		)
	}

	c.logger.DebugContext(ctx, "forecast fetched",
		"city", src.City,
		"bytes", len(payload),
	)
	return payload, nil
}

// readPayload reads at most MaxPayloadBytes and checks that the result is
// well-formed JSON.
func readPayload(r io.Reader) (json.RawMessage, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxPayloadBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxPayloadBytes {
		return nil, fmt.Errorf("forecast document exceeds %d bytes", MaxPayloadBytes)
	}
	if !json.Valid(data) {
		return nil, types.NewAppError(types.ErrCodePayloadInvalid, "forecast document is not valid JSON", nil)
	}
	return json.RawMessage(data), nil
}
