package encoding

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kailas-cloud/flagsearch/internal/domain"
	"github.com/kailas-cloud/flagsearch/internal/logger"
)

// --- Mocks ---

type mockText struct {
	result   domain.EncodingResult
	err      error
	deadline bool
}

func (m *mockText) EncodeText(ctx context.Context, _ string) (domain.EncodingResult, error) {
	_, m.deadline = ctx.Deadline()
	return m.result, m.err
}

type mockImage struct {
	result domain.EncodingResult
	err    error
	block  bool
}

func (m *mockImage) EncodeImage(ctx context.Context, _ []byte) (domain.EncodingResult, error) {
	if m.block {
		<-ctx.Done()
		return domain.EncodingResult{}, ctx.Err()
	}
	return m.result, m.err
}

// --- Tests ---

func TestEncodeText_Success(t *testing.T) {
	inner := &mockText{result: domain.EncodingResult{Embedding: []float32{0.1, 0.2}, TotalTokens: 3}}
	p := NewInstrumented(inner, nil, "test", time.Second, zap.NewNop())

	res, err := p.EncodeText(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embedding) != 2 || res.TotalTokens != 3 {
		t.Errorf("unexpected result: %+v", res)
	}
	if !inner.deadline {
		t.Error("expected a deadline on the inner context")
	}
}

func TestEncodeText_NoTimeout(t *testing.T) {
	inner := &mockText{result: domain.EncodingResult{Embedding: []float32{1}}}
	p := NewInstrumented(inner, nil, "test", 0, zap.NewNop())

	if _, err := p.EncodeText(context.Background(), "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.deadline {
		t.Error("expected no deadline when timeout is 0")
	}
}

func TestEncodeText_ErrorIsWrappedAndLogged(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	inner := &mockText{err: domain.ErrEncoderFailure}
	p := NewInstrumented(inner, nil, "test", time.Second, zap.New(core))

	_, err := p.EncodeText(context.Background(), "hello")
	if !errors.Is(err, domain.ErrEncoderFailure) {
		t.Fatalf("expected ErrEncoderFailure, got %v", err)
	}
	if logs.FilterMessage("Encoding request failed").Len() != 1 {
		t.Errorf("expected one error log, got %d", logs.Len())
	}
}

func TestEncode_UsesRequestLogger(t *testing.T) {
	fallbackCore, fallbackLogs := observer.New(zap.DebugLevel)
	reqCore, reqLogs := observer.New(zap.DebugLevel)
	inner := &mockText{result: domain.EncodingResult{Embedding: []float32{1}}}
	p := NewInstrumented(inner, nil, "test", 0, zap.New(fallbackCore))

	ctx := logger.ContextWithLogger(context.Background(), zap.New(reqCore))
	if _, err := p.EncodeText(ctx, "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reqLogs.Len() != 1 || fallbackLogs.Len() != 0 {
		t.Errorf("expected the request logger to be used, got req=%d fallback=%d", reqLogs.Len(), fallbackLogs.Len())
	}
}

func TestEncodeImage_Timeout(t *testing.T) {
	p := NewInstrumented(nil, &mockImage{block: true}, "test", 20*time.Millisecond, zap.NewNop())

	_, err := p.EncodeImage(context.Background(), []byte{1})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestMissingEncoders(t *testing.T) {
	p := NewInstrumented(nil, nil, "test", 0, zap.NewNop())

	if p.Text() != nil || p.Image() != nil {
		t.Fatal("expected nil encoders when none are configured")
	}
	if _, err := p.EncodeText(context.Background(), "x"); !errors.Is(err, domain.ErrEncoderUnavailable) {
		t.Errorf("expected ErrEncoderUnavailable, got %v", err)
	}
	if _, err := p.EncodeImage(context.Background(), []byte{1}); !errors.Is(err, domain.ErrEncoderUnavailable) {
		t.Errorf("expected ErrEncoderUnavailable, got %v", err)
	}
}

func TestAccessorsDelegate(t *testing.T) {
	p := NewInstrumented(
		&mockText{result: domain.EncodingResult{Embedding: []float32{1}}},
		&mockImage{result: domain.EncodingResult{Embedding: []float32{2, 3}}},
		"test", 0, zap.NewNop(),
	)

	res, err := p.Text().EncodeText(context.Background(), "x")
	if err != nil || len(res.Embedding) != 1 {
		t.Errorf("text: got %v, %v", res.Embedding, err)
	}
	res, err = p.Image().EncodeImage(context.Background(), []byte{1})
	if err != nil || len(res.Embedding) != 2 {
		t.Errorf("image: got %v, %v", res.Embedding, err)
	}
}
