package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zstd"

	"forecasting/internal/types"
)

// zstdSuffix marks report destinations that are written zstd-compressed.
const zstdSuffix = ".zst"

// s3Scheme prefixes report destinations stored as S3 objects.
const s3Scheme = "s3://"

// Sink persists a finished report.
type Sink interface {
	Write(ctx context.Context, table Table) error
	// Location describes where the report ends up, for logs and events.
	Location() string
}

// S3PutClient abstracts the S3 PutObject operation for testability.
type S3PutClient interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Encode writes the table as comma-separated rows. When compress is true the
// CSV stream is zstd-compressed.
func Encode(w io.Writer, table Table, compress bool) error {
	if !compress {
		return writeCSV(w, table)
	}

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("creating zstd writer: %w", err)
	}
	if err := writeCSV(zw, table); err != nil {
		zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("flushing zstd writer: %w", err)
	}
	return nil
}

func writeCSV(w io.Writer, table Table) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(table); err != nil {
		return fmt.Errorf("writing csv rows: %w", err)
	}
	return nil
}

// NewSink picks a sink for dest: "s3://bucket/key" goes to S3 through
// client, anything else is a local file path. A zstd-compressed report is
// written when dest ends in ".zst".
func NewSink(dest string, client S3PutClient, logger *slog.Logger) (Sink, error) {
	if !strings.HasPrefix(dest, s3Scheme) {
		return NewFileSink(dest, logger), nil
	}

	bucket, key, ok := strings.Cut(strings.TrimPrefix(dest, s3Scheme), "/")
	if !ok || bucket == "" || key == "" {
		return nil, types.NewAppError(
			types.ErrCodeConfigInvalidValue,
			fmt.Sprintf("report destination %q must look like s3://bucket/key", dest),
			nil,
		)
	}
	if client == nil {
		return nil, types.NewAppError(
			types.ErrCodeConfigInvalidValue,
			"an S3 client is required for s3:// report destinations",
			nil,
		)
	}
	return NewS3Sink(client, bucket, key, logger), nil
}

// FileSink writes the report to a local file.
type FileSink struct {
	path   string
	logger *slog.Logger
}

// NewFileSink creates a FileSink writing to path.
func NewFileSink(path string, logger *slog.Logger) *FileSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSink{path: path, logger: logger}
}

// Location returns the file path.
func (s *FileSink) Location() string {
	return s.path
}

// reportFileMode is the permission of a written report file.
const reportFileMode = 0o644

// Write replaces the file with the encoded table. The file is written to a
// temporary sibling first and renamed into place.
func (s *FileSink) Write(ctx context.Context, table Table) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return reportWriteError(s.path, err)
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, table, strings.HasSuffix(s.path, zstdSuffix)); err != nil {
		tmp.Close()
		return reportWriteError(s.path, err)
	}
	if err := tmp.Chmod(reportFileMode); err != nil {
		tmp.Close()
		return reportWriteError(s.path, err)
	}
	if err := tmp.Close(); err != nil {
		return reportWriteError(s.path, err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return reportWriteError(s.path, err)
	}

	s.logger.InfoContext(ctx, "rating saved", "path", s.path, "rows", len(table))
	return nil
}

// S3Sink uploads the report as a single S3 object.
type S3Sink struct {
	client S3PutClient
	bucket string
	key    string
	logger *slog.Logger
}

// NewS3Sink creates an S3Sink writing to bucket/key.
func NewS3Sink(client S3PutClient, bucket, key string, logger *slog.Logger) *S3Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Sink{client: client, bucket: bucket, key: key, logger: logger}
}

// Location returns the s3:// URI of the object.
func (s *S3Sink) Location() string {
	return s3Scheme + s.bucket + "/" + s.key
}

// Write encodes the table in memory and uploads it.
func (s *S3Sink) Write(ctx context.Context, table Table) error {
	compress := strings.HasSuffix(s.key, zstdSuffix)

	var buf bytes.Buffer
	if err := Encode(&buf, table, compress); err != nil {
		return reportWriteError(s.Location(), err)
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("text/csv"),
	}
	if compress {
		input.ContentEncoding = aws.String("zstd")
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return reportWriteError(s.Location(), err)
	}

	s.logger.InfoContext(ctx, "rating uploaded",
		"location", s.Location(),
		"rows", len(table),
		"bytes", buf.Len(),
	)
	return nil
}

func reportWriteError(location string, err error) error {
	return types.NewAppErrorWithDetails(
		types.ErrCodeReportWrite,
		"failed to write rating report",
		err,
		map[string]any{"location": location},
	)
}

// MemorySink keeps the last written table in memory. The API uses it to
// serve a report without persisting it.
type MemorySink struct {
	mu    sync.Mutex
	table Table
}

// Location returns "memory".
func (s *MemorySink) Location() string {
	return "memory"
}

// Write stores table.
func (s *MemorySink) Write(_ context.Context, table Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table = table
	return nil
}

// Table returns the last written table, nil before the first Write.
func (s *MemorySink) Table() Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table
}
