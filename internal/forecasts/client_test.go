package forecasts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"forecasting/internal/config"
	"forecasting/internal/external"
	"forecasting/internal/types"
)

func newTestBase() *external.BaseClient {
	return external.NewBaseClient(
		&http.Client{Timeout: 5 * time.Second},
		external.BreakerSettings{Name: "forecast-test"},
		"Forecasting-Test/1.0",
	)
}

func TestClient_Fetch(t *testing.T) {
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get(APIKeyHeader)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"forecasts":[]}`))
	}))
	defer server.Close()

	client := NewClient(newTestBase(), config.SecretString("secret-key"), nil)
	payload, err := client.Fetch(context.Background(), types.Source{City: "MOSCOW", URL: server.URL})

	require.NoError(t, err)
	assert.JSONEq(t, `{"forecasts":[]}`, string(payload))
	assert.Equal(t, "secret-key", gotKey)
}

func TestClient_FetchWithoutKey(t *testing.T) {
	var present bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present = r.Header[http.CanonicalHeaderKey(APIKeyHeader)]
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	_, err := NewClient(newTestBase(), "", nil).Fetch(context.Background(), types.Source{City: "X", URL: server.URL})

	require.NoError(t, err)
	assert.False(t, present)
}

func TestClient_FetchCompressed(t *testing.T) {
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, _ = zw.Write([]byte(`{"forecasts":[{"date":"d","hours":[]}]}`))
	require.NoError(t, zw.Close())

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "zstd")
		w.Write(buf.Bytes())
	}))
	defer server.Close()

	payload, err := NewClient(newTestBase(), "", nil).Fetch(context.Background(), types.Source{City: "X", URL: server.URL})

	require.NoError(t, err)
	assert.JSONEq(t, `{"forecasts":[{"date":"d","hours":[]}]}`, string(payload))
}

func TestClient_FetchErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode types.ErrorCode
	}{
		{"not found", http.StatusNotFound, "", types.ErrCodeUpstreamForecast},
		{"server error", http.StatusInternalServerError, "", types.ErrCodeUpstreamUnavailable},
		{"invalid json", http.StatusOK, "<html>", types.ErrCodeUpstreamForecast},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewClient(newTestBase(), "", nil).Fetch(context.Background(), types.Source{City: "X", URL: server.URL})

			var appErr *types.AppError
			require.True(t, errors.As(err, &appErr), "got %v", err)
			assert.Equal(t, tt.wantCode, appErr.Code)
		})
	}
}

func TestClient_FetchInvalidJSONWrapsPayloadError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"unterminated":`))
	}))
	defer server.Close()

	_, err := NewClient(newTestBase(), "", nil).Fetch(context.Background(), types.Source{City: "X", URL: server.URL})

	var inner *types.AppError
	require.True(t, errors.As(errors.Unwrap(err), &inner))
	assert.Equal(t, types.ErrCodePayloadInvalid, inner.Code)
}

func TestClient_FetchBadURL(t *testing.T) {
	_, err := NewClient(newTestBase(), "", nil).Fetch(context.Background(), types.Source{City: "X", URL: "://bad"})

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeConfigInvalidValue, appErr.Code)
}

type mockS3Get struct {
	mock.Mock
}

func (m *mockS3Get) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, *params.Bucket, *params.Key)
	out, _ := args.Get(0).(*s3.GetObjectOutput)
	return out, args.Error(1)
}

func objectBody(data []byte) *s3.GetObjectOutput {
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}
}

func TestArchiveReader_Fetch(t *testing.T) {
	client := new(mockS3Get)
	client.On("GetObject", mock.Anything, "archive", "2022/moscow.json").
		Return(objectBody([]byte(`{"forecasts":[]}`)), nil).Once()

	payload, err := NewArchiveReader(client, nil).Fetch(context.Background(),
		types.Source{City: "MOSCOW", URL: "s3://archive/2022/moscow.json"})

	require.NoError(t, err)
	assert.JSONEq(t, `{"forecasts":[]}`, string(payload))
	client.AssertExpectations(t)
}

func TestArchiveReader_FetchZstd(t *testing.T) {
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	compressed := enc.EncodeAll([]byte(`{"forecasts":[{"date":"d"}]}`), nil)
	require.NoError(t, enc.Close())

	client := new(mockS3Get)
	client.On("GetObject", mock.Anything, "archive", "paris.json.zst").Return(objectBody(compressed), nil)

	payload, err := NewArchiveReader(client, nil).Fetch(context.Background(),
		types.Source{City: "PARIS", URL: "s3://archive/paris.json.zst"})

	require.NoError(t, err)
	assert.JSONEq(t, `{"forecasts":[{"date":"d"}]}`, string(payload))
}

func TestArchiveReader_Errors(t *testing.T) {
	client := new(mockS3Get)
	client.On("GetObject", mock.Anything, "archive", "missing.json").Return(nil, errors.New("NoSuchKey"))
	client.On("GetObject", mock.Anything, "archive", "corrupt.json.zst").Return(objectBody([]byte("not zstd")), nil)
	reader := NewArchiveReader(client, nil)

	tests := []struct {
		url      string
		wantCode types.ErrorCode
	}{
		{"s3://archive/missing.json", types.ErrCodeUpstreamForecast},
		{"s3://archive/corrupt.json.zst", types.ErrCodePayloadInvalid},
		{"s3://archive", types.ErrCodeConfigInvalidValue},
		{"s3:///key", types.ErrCodeConfigInvalidValue},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			_, err := reader.Fetch(context.Background(), types.Source{City: "X", URL: tt.url})

			var appErr *types.AppError
			require.True(t, errors.As(err, &appErr), "got %v", err)
			assert.Equal(t, tt.wantCode, appErr.Code)
		})
	}
}

type stubFetcher struct {
	name string
}

func (s stubFetcher) Fetch(_ context.Context, src types.Source) (json.RawMessage, error) {
	return json.RawMessage(fmt.Sprintf(`{"via":%q}`, s.name)), nil
}

func TestFetcher_RoutesByScheme(t *testing.T) {
	f := NewFetcher(stubFetcher{"http"}, stubFetcher{"archive"})

	tests := map[string]string{
		"https://forecast.example/x": `{"via":"http"}`,
		"http://localhost/x":         `{"via":"http"}`,
		"s3://bucket/x.json":         `{"via":"archive"}`,
	}
	for url, want := range tests {
		got, err := f.Fetch(context.Background(), types.Source{City: "X", URL: url})
		require.NoError(t, err, url)
		assert.JSONEq(t, want, string(got), url)
	}
}

func TestFetcher_MissingBackend(t *testing.T) {
	f := NewFetcher(stubFetcher{"http"}, nil)

	for _, url := range []string{"s3://bucket/x", "ftp://host/x"} {
		_, err := f.Fetch(context.Background(), types.Source{City: "X", URL: url})

		var appErr *types.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, types.ErrCodeConfigInvalidValue, appErr.Code)
		assert.True(t, strings.Contains(appErr.Message, url))
	}
}
