package embcache

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kailas-cloud/flagsearch/internal/domain"
)

func TestEncodeText_MissThenHit(t *testing.T) {
	inner := &mockEncoder{result: domain.EncodingResult{
		Embedding:   []float32{0.1, 0.2, 0.3},
		TotalTokens: 6,
	}}
	ce, ms := newTestEncoder(inner, Options{Model: "clip", TTL: time.Hour})
	ctx := context.Background()

	first, err := ce.EncodeText(ctx, "blue cross")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.TotalTokens != 6 {
		t.Errorf("expected TotalTokens=6 on miss, got %d", first.TotalTokens)
	}
	if ms.sets != 1 || ms.lastTTL != time.Hour {
		t.Errorf("expected one write with ttl 1h, got %d writes ttl %v", ms.sets, ms.lastTTL)
	}

	second, err := ce.EncodeText(ctx, "blue cross")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected inner encoder called once, got %d", inner.calls)
	}
	if !slices.Equal(second.Embedding, first.Embedding) {
		t.Errorf("cached vector %v differs from %v", second.Embedding, first.Embedding)
	}
	if second.TotalTokens != 0 {
		t.Errorf("expected TotalTokens=0 on hit, got %d", second.TotalTokens)
	}
}

func TestEncodeText_InnerError(t *testing.T) {
	inner := &mockEncoder{err: domain.ErrEncoderFailure}
	ce, ms := newTestEncoder(inner, Options{})

	_, err := ce.EncodeText(context.Background(), "x")
	if !errors.Is(err, domain.ErrEncoderFailure) {
		t.Fatalf("expected ErrEncoderFailure, got %v", err)
	}
	if ms.sets != 0 {
		t.Errorf("errors must not be cached, got %d writes", ms.sets)
	}
}

func TestEncodeText_StoreErrorsAreNotFatal(t *testing.T) {
	inner := &mockEncoder{result: domain.EncodingResult{Embedding: []float32{1}}}
	ce, ms := newTestEncoder(inner, Options{})
	ms.getErr = errors.New("connection refused")
	ms.setErr = errors.New("connection refused")

	res, err := ce.EncodeText(context.Background(), "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embedding) != 1 {
		t.Errorf("expected inner result, got %v", res.Embedding)
	}
}

func TestEncodeText_CorruptEntryIsMiss(t *testing.T) {
	inner := &mockEncoder{result: domain.EncodingResult{Embedding: []float32{1, 2}}}
	ce, ms := newTestEncoder(inner, Options{})
	ms.data[ce.cacheKey("x")] = []byte{1, 2, 3}

	if _, err := ce.EncodeText(context.Background(), "x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected fallthrough to inner encoder, got %d calls", inner.calls)
	}
}

func TestEncodeText_WrongDimensionIsMiss(t *testing.T) {
	inner := &mockEncoder{result: domain.EncodingResult{Embedding: []float32{1, 2, 3, 4}}}
	ce, ms := newTestEncoder(inner, Options{Dimensions: 4})
	ms.data[ce.cacheKey("x")] = vectorToBytes([]float32{1, 2})

	res, err := ce.EncodeText(context.Background(), "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embedding) != 4 || inner.calls != 1 {
		t.Errorf("expected fresh 4-dim encoding, got %v after %d calls", res.Embedding, inner.calls)
	}
}

func TestEncodeText_EvictsUnusableEntries(t *testing.T) {
	tests := []struct {
		name  string
		entry []byte
	}{
		{"corrupt", []byte{1, 2, 3}},
		{"wrong dimension", vectorToBytes([]float32{1, 2})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := &mockEncoder{err: errors.New("backend down")}
			ce, ms := newTestEncoder(inner, Options{Dimensions: 4})
			key := ce.cacheKey("x")
			ms.data[key] = tt.entry

			if _, err := ce.EncodeText(context.Background(), "x"); err == nil {
				t.Fatal("expected inner error")
			}
			if len(ms.deleted) != 1 || ms.deleted[0] != key {
				t.Errorf("deleted = %v, want [%s]", ms.deleted, key)
			}
			if _, ok := ms.data[key]; ok {
				t.Error("unusable entry still cached")
			}
		})
	}
}

func TestEncodeText_EvictErrorIsNotFatal(t *testing.T) {
	inner := &mockEncoder{result: domain.EncodingResult{Embedding: []float32{1, 2}}}
	ce, ms := newTestEncoder(inner, Options{})
	ms.delErr = errors.New("connection reset")
	ms.data[ce.cacheKey("x")] = []byte{1, 2, 3}

	res, err := ce.EncodeText(context.Background(), "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embedding) != 2 || ms.sets != 1 {
		t.Errorf("expected fresh encoding cached once, got %v after %d sets", res.Embedding, ms.sets)
	}
}

func TestCacheKey_IncludesModel(t *testing.T) {
	a := New(&mockEncoder{}, newMockKVStore(), Options{Model: "clip-a"}, nil)
	b := New(&mockEncoder{}, newMockKVStore(), Options{Model: "clip-b"}, nil)

	if a.cacheKey("red") == b.cacheKey("red") {
		t.Error("expected different keys for different models")
	}
	if a.cacheKey("red") == a.cacheKey("blue") {
		t.Error("expected different keys for different texts")
	}
	if got := a.cacheKey("red"); len(got) != len(cacheKeyPrefix)+64 {
		t.Errorf("unexpected key %q", got)
	}
}

func TestEncodeText_CacheCounter(t *testing.T) {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_cache_total"}, []string{"result"})
	inner := &mockEncoder{result: domain.EncodingResult{Embedding: []float32{1}}}
	ce, _ := newTestEncoder(inner, Options{CacheTotal: counter})

	for i := 0; i < 3; i++ {
		if _, err := ce.EncodeText(context.Background(), "x"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if v := testutil.ToFloat64(counter.WithLabelValues("miss")); v != 1 {
		t.Errorf("expected 1 miss, got %v", v)
	}
	if v := testutil.ToFloat64(counter.WithLabelValues("hit")); v != 2 {
		t.Errorf("expected 2 hits, got %v", v)
	}
}

func TestHealthCheck_Delegates(t *testing.T) {
	inner := &mockEncoder{healthErr: errors.New("down")}
	ce, _ := newTestEncoder(inner, Options{})

	if err := ce.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected inner health error")
	}
}

func TestVectorBytes_RoundTrip(t *testing.T) {
	in := []float32{0, -1.5, 3.25, 1e-7}
	out, err := bytesToVector(vectorToBytes(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(in, out) {
		t.Errorf("round trip = %v, want %v", out, in)
	}
}
