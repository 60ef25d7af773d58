package forecasts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zstd"

	"forecasting/internal/types"
)

// S3GetClient abstracts the S3 GetObject operation for testability.
type S3GetClient interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ArchiveReader reads forecast documents stored as S3 objects, addressed as
// s3://bucket/key. Keys ending in ".zst" are zstd-decompressed.
type ArchiveReader struct {
	s3     S3GetClient
	logger *slog.Logger

	// decoderPool provides reusable zstd decoders to avoid repeated allocations.
	decoderPool sync.Pool
}

// NewArchiveReader creates an ArchiveReader backed by client.
func NewArchiveReader(client S3GetClient, logger *slog.Logger) *ArchiveReader {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArchiveReader{
		s3:     client,
		logger: logger,
		decoderPool: sync.Pool{
			New: func() any {
				d, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
				if err != nil {
					// This should never fail with nil input and default options.
					panic(fmt.Sprintf("failed to create zstd decoder: %v", err))
				}
				return d
			},
		},
	}
}

// Fetch reads the archived forecast document for src.
func (r *ArchiveReader) Fetch(ctx context.Context, src types.Source) (json.RawMessage, error) {
	bucket, key, err := parseS3URL(src.URL)
	if err != nil {
		return nil, err
	}

	out, err := r.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, &types.AppError{
			Code:    types.ErrCodeUpstreamForecast,
			Message: fmt.Sprintf("failed to fetch archived forecast %s", src.URL),
			Err:     err,
			Details: map[string]any{"city": src.City},
		}
	}
	defer out.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(out.Body, MaxPayloadBytes+1))
	if err != nil {
		return nil, &types.AppError{
			Code:    types.ErrCodeUpstreamForecast,
			Message: fmt.Sprintf("failed to read archived forecast %s", src.URL),
			Err:     err,
		}
	}

	if strings.HasSuffix(key, ".zst") {
		raw, err = r.decompressZstd(raw)
		if err != nil {
			return nil, &types.AppError{
				Code:    types.ErrCodePayloadInvalid,
				Message: fmt.Sprintf("failed to decompress archived forecast %s", src.URL),
				Err:     err,
			}
		}
	}

	payload, err := readPayload(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	r.logger.DebugContext(ctx, "archived forecast read",
		"city", src.City,
		"bucket", bucket,
		"key", key,
	)
	return payload, nil
}

// decompressZstd decompresses zstd-compressed data using pooled decoders.
func (r *ArchiveReader) decompressZstd(data []byte) ([]byte, error) {
	decoder := r.decoderPool.Get().(*zstd.Decoder)
	defer r.decoderPool.Put(decoder)

	result, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompression failed: %w", err)
	}
	return result, nil
}

func parseS3URL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "s3" || u.Host == "" || strings.TrimPrefix(u.Path, "/") == "" {
		return "", "", types.NewAppError(
			types.ErrCodeConfigInvalidValue,
			fmt.Sprintf("archived forecast location %q must look like s3://bucket/key", raw),
			err,
		)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}
