package embcache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/flagsearch/internal/db"
	"github.com/kailas-cloud/flagsearch/internal/domain"
)

type mockEncoder struct {
	result    domain.EncodingResult
	err       error
	calls     int
	healthErr error
}

func (m *mockEncoder) EncodeText(_ context.Context, _ string) (domain.EncodingResult, error) {
	m.calls++
	return m.result, m.err
}

func (m *mockEncoder) HealthCheck(_ context.Context) error { return m.healthErr }

// mockKVStore is an in-memory store recording the last write.
type mockKVStore struct {
	data    map[string][]byte
	getErr  error
	setErr  error
	delErr  error
	lastTTL time.Duration
	sets    int
	deleted []string
}

func newMockKVStore() *mockKVStore {
	return &mockKVStore{data: make(map[string][]byte)}
}

func (m *mockKVStore) Get(_ context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *mockKVStore) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.sets++
	m.lastTTL = ttl
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	return nil
}

func (m *mockKVStore) Del(_ context.Context, key string) error {
	m.deleted = append(m.deleted, key)
	if m.delErr != nil {
		return m.delErr
	}
	delete(m.data, key)
	return nil
}

func newTestEncoder(inner *mockEncoder, opts Options) (*CachedTextEncoder, *mockKVStore) {
	ms := newMockKVStore()
	return New(inner, ms, opts, zap.NewNop()), ms
}
