package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kailas-cloud/flagsearch/internal/domain"
	"github.com/kailas-cloud/flagsearch/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterEncoderMetrics()
	os.Exit(m.Run())
}

type embeddingDatum struct {
	Object    string    `json:"object"`
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// embeddingResponse mirrors the OpenAI-compatible API embedding response.
type embeddingResponse struct {
	Object string           `json:"object"`
	Data   []embeddingDatum `json:"data"`
	Model  string           `json:"model"`
	Usage  struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

func embeddingServer(t *testing.T, vecs [][]float32, tokens int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		resp := embeddingResponse{Object: "list", Model: "clip-text"}
		for i, v := range vecs {
			resp.Data = append(resp.Data, embeddingDatum{Object: "embedding", Embedding: v, Index: i})
		}
		resp.Usage.PromptTokens = tokens
		resp.Usage.TotalTokens = tokens

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func newTestEncoder(url string, dims int) *Encoder {
	return NewEncoder(&Config{
		APIKey:     "test-key",
		BaseURL:    url,
		Model:      "clip-text",
		Dimensions: dims,
		Provider:   "test",
		Logger:     zap.NewNop(),
	})
}

func TestEncoder_EncodeText(t *testing.T) {
	expected := []float32{0.1, 0.2, 0.3, 0.4}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Input) != 1 || req.Input[0] != "red circle on white" {
			t.Errorf("unexpected input: %v", req.Input)
		}
		if req.Model != "clip-text" {
			t.Errorf("unexpected model: %s", req.Model)
		}

		resp := embeddingResponse{Object: "list", Model: "clip-text"}
		resp.Data = []embeddingDatum{{Object: "embedding", Embedding: expected}}
		resp.Usage.TotalTokens = 7
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	enc := newTestEncoder(server.URL, 4)
	before := testutil.ToFloat64(metrics.EncoderRequestsTotal.WithLabelValues("test", "text", "success"))

	res, err := enc.EncodeText(context.Background(), "red circle on white")
	if err != nil {
		t.Fatalf("EncodeText failed: %v", err)
	}
	if len(res.Embedding) != len(expected) {
		t.Fatalf("expected %d dimensions, got %d", len(expected), len(res.Embedding))
	}
	for i, v := range res.Embedding {
		if v != expected[i] {
			t.Errorf("vec[%d] = %f, expected %f", i, v, expected[i])
		}
	}
	if res.TotalTokens != 7 {
		t.Errorf("TotalTokens = %d, expected 7", res.TotalTokens)
	}

	after := testutil.ToFloat64(metrics.EncoderRequestsTotal.WithLabelValues("test", "text", "success"))
	if after != before+1 {
		t.Errorf("expected success counter to increase by 1, got %v -> %v", before, after)
	}
}

func TestEncoder_EmptyResponse(t *testing.T) {
	server := embeddingServer(t, nil, 0)
	defer server.Close()

	_, err := newTestEncoder(server.URL, 0).EncodeText(context.Background(), "hello")
	if !errors.Is(err, domain.ErrEncoderFailure) {
		t.Fatalf("expected ErrEncoderFailure, got %v", err)
	}
}

func TestEncoder_DimensionMismatch(t *testing.T) {
	server := embeddingServer(t, [][]float32{{0.1, 0.2}}, 3)
	defer server.Close()

	_, err := newTestEncoder(server.URL, 512).EncodeText(context.Background(), "hello")
	if !errors.Is(err, domain.ErrEncoderFailure) {
		t.Fatalf("expected ErrEncoderFailure, got %v", err)
	}
	if !strings.Contains(err.Error(), "returned 2 dimensions") {
		t.Errorf("expected dimensions in message, got %q", err.Error())
	}
}

func TestEncoder_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"message": "rate limit exceeded",
				"type":    "rate_limit_error",
			},
		})
	}))
	defer server.Close()

	_, err := newTestEncoder(server.URL, 0).EncodeText(context.Background(), "hello")
	if !errors.Is(err, domain.ErrEncoderFailure) {
		t.Fatalf("expected ErrEncoderFailure for 429 response, got %v", err)
	}
}

func TestEncoder_DetailError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":"input too long"}`))
	}))
	defer server.Close()

	_, err := newTestEncoder(server.URL, 0).EncodeText(context.Background(), "hello")
	if !errors.Is(err, domain.ErrEncoderFailure) {
		t.Fatalf("expected ErrEncoderFailure, got %v", err)
	}
}

func TestEncoder_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[]}`))
	}))
	defer server.Close()

	if err := newTestEncoder(server.URL, 0).HealthCheck(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestExtractDetail(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"detail":"bad input"}`, "bad input"},
		{`{"error":"x"}`, ""},
		{`not json`, ""},
	}
	for _, tc := range tests {
		if got := extractDetail([]byte(tc.body)); got != tc.want {
			t.Errorf("extractDetail(%q) = %q, want %q", tc.body, got, tc.want)
		}
	}
}

func TestNewEncoder_Defaults(t *testing.T) {
	enc := NewEncoder(&Config{Model: "m"})
	if enc.provider != "openai" {
		t.Errorf("expected default provider openai, got %q", enc.provider)
	}
	if enc.Model() != "m" {
		t.Errorf("expected model m, got %q", enc.Model())
	}
}
