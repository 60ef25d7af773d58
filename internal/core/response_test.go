package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"forecasting/internal/types"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp APIErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("invalid error JSON: %v", err)
	}
	return resp.Error
}

func TestJSON_WritesBody(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusCreated, map[string]int{"n": 1})

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if strings.TrimSpace(rec.Body.String()) != `{"n":1}` {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestJSON_MarshalFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusOK, math.Inf(1))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if got := decodeError(t, rec); got.Code != string(types.ErrCodeInternalUnexpected) {
		t.Errorf("code = %q", got.Code)
	}
}

func TestError_AppError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(types.WithRequestID(req.Context(), "req-1"))
	appErr := types.NewAppErrorWithDetails(types.ErrCodeConfigUnknownCity,
		"please check that city ATLANTIS exists", nil,
		map[string]any{"cities": []string{"ATLANTIS"}})

	rec := httptest.NewRecorder()
	Error(rec, req, fmt.Errorf("resolving: %w", appErr))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	got := decodeError(t, rec)
	if got.Code != "config_unknown_city" || got.RequestID != "req-1" {
		t.Errorf("unexpected error: %+v", got)
	}
	if got.Details["cities"] == nil {
		t.Error("details were dropped")
	}
}

func TestError_UpstreamMapsToBadGateway(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, httptest.NewRequest(http.MethodGet, "/", nil),
		types.NewAppError(types.ErrCodeUpstreamUnavailable, "forecast API down", nil))

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestError_GenericErrorDoesNotLeak(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("dial tcp 10.0.0.1:5432"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "10.0.0.1") {
		t.Errorf("internal detail leaked: %s", rec.Body.String())
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Cities []string `json:"cities"`
	}

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "valid", body: `{"cities":["PARIS"]}`},
		{name: "empty", body: ``, wantErr: "must not be empty"},
		{name: "syntax", body: `{"cities":`, wantErr: "malformed JSON"},
		{name: "unknown field", body: `{"towns":[]}`, wantErr: "unknown field"},
		{name: "wrong type", body: `{"cities":"PARIS"}`, wantErr: "invalid value for field"},
		{name: "two values", body: `{} {}`, wantErr: "single JSON object"},
		{name: "too large", body: `{"cities":["` + strings.Repeat("A", maxRequestBodySize) + `"]}`, wantErr: "too large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst payload

			err := DecodeJSON(httptest.NewRecorder(), req, &dst)

			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if len(dst.Cities) != 1 || dst.Cities[0] != "PARIS" {
					t.Errorf("decoded %+v", dst)
				}
				return
			}
			var appErr *types.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("expected *types.AppError, got %v", err)
			}
			if appErr.Code != types.ErrCodeValidationInvalidJSON {
				t.Errorf("code = %s", appErr.Code)
			}
			if !strings.Contains(appErr.Message, tt.wantErr) {
				t.Errorf("message %q does not contain %q", appErr.Message, tt.wantErr)
			}
		})
	}
}
