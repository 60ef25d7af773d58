package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"forecasting/internal/config"
)

// mockSSMClient implements SSMClient and records every call.
type mockSSMClient struct {
	getParameterFn func(ctx context.Context, input *ssm.GetParameterInput) (*ssm.GetParameterOutput, error)
	putParameterFn func(ctx context.Context, input *ssm.PutParameterInput) (*ssm.PutParameterOutput, error)

	getCalls []*ssm.GetParameterInput
	putCalls []*ssm.PutParameterInput
}

func (m *mockSSMClient) GetParameter(ctx context.Context, params *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	m.getCalls = append(m.getCalls, params)
	if m.getParameterFn != nil {
		return m.getParameterFn(ctx, params)
	}
	return &ssm.GetParameterOutput{}, nil
}

func (m *mockSSMClient) PutParameter(ctx context.Context, params *ssm.PutParameterInput, _ ...func(*ssm.Options)) (*ssm.PutParameterOutput, error) {
	m.putCalls = append(m.putCalls, params)
	if m.putParameterFn != nil {
		return m.putParameterFn(ctx, params)
	}
	return &ssm.PutParameterOutput{Version: 1}, nil
}

// newMockSSMWithValues serves values keyed by full path and reports every
// other path as not found.
func newMockSSMWithValues(values map[string]string) *mockSSMClient {
	return &mockSSMClient{
		getParameterFn: func(_ context.Context, input *ssm.GetParameterInput) (*ssm.GetParameterOutput, error) {
			path := aws.ToString(input.Name)
			val, ok := values[path]
			if !ok {
				return nil, &ssmtypes.ParameterNotFound{Message: aws.String("not found: " + path)}
			}
			return &ssm.GetParameterOutput{
				Parameter: &ssmtypes.Parameter{Name: aws.String(path), Value: aws.String(val)},
			}, nil
		},
	}
}

func newTestSSMManager(mock *mockSSMClient, env string) *SSMManager {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewSSMManagerWithClient(mock, env, logger)
}

func TestPath(t *testing.T) {
	tests := []struct {
		env   string
		param config.Parameter
		want  string
	}{
		{"dev", config.ParamWeatherAPIKey, "/dev/forecasting/weather/api_key"},
		{"prod", config.ParamReportBucket, "/prod/forecasting/reports/bucket"},
		{"staging", config.ParamRankingQueueURL, "/staging/forecasting/queue/ranking_url"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			m := newTestSSMManager(&mockSSMClient{}, tt.env)
			if got := m.Path(tt.param); got != tt.want {
				t.Errorf("Path(%s) = %q, want %q", tt.param.EnvVar, got, tt.want)
			}
		})
	}
}

func TestExists(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		mock := newMockSSMWithValues(map[string]string{"/dev/forecasting/weather/api_key": "k"})
		exists, err := newTestSSMManager(mock, "dev").Exists(ctx, config.ParamWeatherAPIKey)
		if err != nil || !exists {
			t.Fatalf("Exists = %v, %v; want true, nil", exists, err)
		}
		if aws.ToBool(mock.getCalls[0].WithDecryption) {
			t.Error("existence check requested decryption")
		}
	})

	t.Run("not found", func(t *testing.T) {
		exists, err := newTestSSMManager(newMockSSMWithValues(nil), "dev").Exists(ctx, config.ParamReportBucket)
		if err != nil || exists {
			t.Fatalf("Exists = %v, %v; want false, nil", exists, err)
		}
	})

	t.Run("access denied", func(t *testing.T) {
		mock := &mockSSMClient{getParameterFn: func(context.Context, *ssm.GetParameterInput) (*ssm.GetParameterOutput, error) {
			return nil, errors.New("AccessDeniedException")
		}}
		_, err := newTestSSMManager(mock, "dev").Exists(ctx, config.ParamReportBucket)
		if err == nil || !strings.Contains(err.Error(), "AccessDeniedException") {
			t.Fatalf("Exists error = %v, want wrapped AccessDeniedException", err)
		}
	})
}

func TestWrite_Secure(t *testing.T) {
	mock := &mockSSMClient{}
	logs := &bytes.Buffer{}
	m := NewSSMManagerWithClient(mock, "dev", slog.New(slog.NewTextHandler(logs, nil)))

	if err := m.Write(context.Background(), config.ParamWeatherAPIKey, "secret-value", false); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if len(mock.putCalls) != 1 {
		t.Fatalf("PutParameter calls = %d, want 1", len(mock.putCalls))
	}
	call := mock.putCalls[0]
	if aws.ToString(call.Name) != "/dev/forecasting/weather/api_key" {
		t.Errorf("Name = %q", aws.ToString(call.Name))
	}
	if call.Type != ssmtypes.ParameterTypeSecureString {
		t.Errorf("Type = %s, want SecureString", call.Type)
	}
	if aws.ToBool(call.Overwrite) {
		t.Error("Overwrite = true, want false")
	}
	if aws.ToString(call.Value) != "secret-value" {
		t.Errorf("Value = %q", aws.ToString(call.Value))
	}
	if strings.Contains(logs.String(), "secret-value") || !strings.Contains(logs.String(), "value_length=12") {
		t.Errorf("secure write log = %q, want only the value length", logs.String())
	}
}

func TestWrite_AlreadyExists(t *testing.T) {
	mock := &mockSSMClient{putParameterFn: func(context.Context, *ssm.PutParameterInput) (*ssm.PutParameterOutput, error) {
		return nil, &ssmtypes.ParameterAlreadyExists{Message: aws.String("exists")}
	}}

	err := newTestSSMManager(mock, "dev").Write(context.Background(), config.ParamWeatherAPIKey, "v", false)

	var alreadyExists *ssmtypes.ParameterAlreadyExists
	if !errors.As(err, &alreadyExists) {
		t.Fatalf("Write error = %v, want ParameterAlreadyExists", err)
	}
}

func TestWrite_PlainAlwaysOverwrites(t *testing.T) {
	mock := &mockSSMClient{}

	if err := newTestSSMManager(mock, "dev").Write(context.Background(), config.ParamReportBucket, "ratings", false); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if mock.putCalls[0].Type != ssmtypes.ParameterTypeString || !aws.ToBool(mock.putCalls[0].Overwrite) {
		t.Errorf("put = %+v, want String with overwrite", mock.putCalls[0])
	}
}

func TestWrite_RejectsEmptyValue(t *testing.T) {
	mock := &mockSSMClient{}

	if err := newTestSSMManager(mock, "dev").Write(context.Background(), config.ParamReportBucket, "", true); err == nil {
		t.Error("empty value accepted")
	}
	if len(mock.putCalls) != 0 {
		t.Errorf("PutParameter called %d times, want 0", len(mock.putCalls))
	}
}

func TestRead(t *testing.T) {
	ctx := context.Background()
	mock := newMockSSMWithValues(map[string]string{
		"/dev/forecasting/weather/api_key": "k",
		"/dev/forecasting/reports/bucket":  "ratings",
	})
	m := newTestSSMManager(mock, "dev")

	value, err := m.Read(ctx, config.ParamWeatherAPIKey)
	if err != nil || value != "k" {
		t.Fatalf("Read = %q, %v", value, err)
	}
	if !aws.ToBool(mock.getCalls[0].WithDecryption) {
		t.Error("secure parameter read without decryption")
	}

	if _, err := m.Read(ctx, config.ParamReportBucket); err != nil {
		t.Fatalf("Read bucket: %v", err)
	}
	if aws.ToBool(mock.getCalls[1].WithDecryption) {
		t.Error("plain parameter read with decryption")
	}

	if _, err := m.Read(ctx, config.ParamRankingQueueURL); !errors.Is(err, errNotStored) {
		t.Errorf("Read missing = %v, want errNotStored", err)
	}

	if _, err := newTestSSMManager(&mockSSMClient{}, "dev").Read(ctx, config.ParamReportBucket); err == nil {
		t.Error("parameter without value accepted")
	}
}
