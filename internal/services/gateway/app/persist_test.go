package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/louisbranch/broadcast.space/internal/services/gateway/metrics"
	"github.com/louisbranch/broadcast.space/internal/services/gateway/storage"
)

type gatedMessageStore struct {
	release chan struct{}
	err     error

	mu    sync.Mutex
	saved []storage.Message
}

func (s *gatedMessageStore) SaveMessage(ctx context.Context, msg storage.Message) error {
	if s.release != nil {
		<-s.release
	}
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, msg)
	return nil
}

func (s *gatedMessageStore) ListRoomMessages(context.Context, string, string, int) ([]storage.Message, error) {
	return nil, nil
}

func (s *gatedMessageStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

func TestNewPersisterWithoutStore(t *testing.T) {
	p := newPersister(nil, 0, zap.NewNop(), metrics.New())
	assert.Nil(t, p)
	assert.False(t, p.enqueue(storage.Message{}))
	p.close()
}

func TestPersisterCloseDrainsQueue(t *testing.T) {
	store := &gatedMessageStore{}
	p := newPersister(store, 8, zap.NewNop(), metrics.New())

	for i := 0; i < 5; i++ {
		require.True(t, p.enqueue(storage.Message{TenantID: "x", Type: "chat", Text: "m"}))
	}
	p.close()

	assert.Equal(t, 5, store.count())
	assert.False(t, p.enqueue(storage.Message{TenantID: "x"}))
	p.close()
}

func TestPersisterDropsWhenFull(t *testing.T) {
	store := &gatedMessageStore{release: make(chan struct{})}
	m := metrics.New()
	p := newPersister(store, 1, zap.NewNop(), m)

	// The first message occupies the writer, the second the queue.
	require.True(t, p.enqueue(storage.Message{TenantID: "x"}))
	require.Eventually(t, func() bool { return len(p.queue) == 0 }, 2*time.Second, 5*time.Millisecond)
	require.True(t, p.enqueue(storage.Message{TenantID: "x"}))
	assert.False(t, p.enqueue(storage.Message{TenantID: "x"}))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PersistenceFailures))

	close(store.release)
	p.close()
	assert.Equal(t, 2, store.count())
}

func TestPersisterCountsStoreFailures(t *testing.T) {
	store := &gatedMessageStore{err: errors.New("disk full")}
	m := metrics.New()
	p := newPersister(store, 4, zap.NewNop(), m)

	require.True(t, p.enqueue(storage.Message{TenantID: "x"}))
	p.close()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PersistenceFailures))
	assert.Zero(t, store.count())
}
